package box

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"m7s.live/mp4probe/pkg/codec"
)

// 44.1kHz stereo AAC LC
var aacLC = []byte{0x12, 0x10}

func TestParseStsdAudio(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		stsd := MakeStsdBox(MakeAudioSampleEntry(TypeMP4A, 1, 16, 22050, MakeEsdsBox(ObjectTypeAAC, aacLC)))
		entries, err := ParseStsd(leafOf(t, stsd), false)
		if err != nil {
			t.Fatal(err)
		}
		entry := entries[0]
		if !entry.IsAudio() || entry.ObjectTypeIndication != ObjectTypeAAC {
			t.Fatalf("unexpected entry %+v", entry)
		}
		// the AudioSpecificConfig overrides the sample entry
		if entry.SampleRate != 44100 || entry.ChannelCount != 2 {
			t.Fatalf("rate %d channels %d", entry.SampleRate, entry.ChannelCount)
		}
		if entry.Codec.Codecs() != "mp4a.40.2" || entry.AvgBitrate != 96000 {
			t.Fatalf("codecs %s bitrate %d", entry.Codec.Codecs(), entry.AvgBitrate)
		}
	})
	t.Run("pcm", func(t *testing.T) {
		stsd := MakeStsdBox(MakeAudioSampleEntry(TypeSOWT, 2, 16, 48000))
		entries, err := ParseStsd(leafOf(t, stsd), false)
		if err != nil {
			t.Fatal(err)
		}
		ctx, ok := entries[0].Codec.(*codec.AudioCtx)
		if !ok || ctx.SampleRate != 48000 || ctx.Channels != 2 || ctx.SampleSize != 16 {
			t.Fatalf("unexpected codec %+v", entries[0].Codec)
		}
	})
	t.Run("quicktime v1 with wave", func(t *testing.T) {
		entry := MakeAudioSampleEntry(TypeMP4A, 2, 16, 44100,
			make([]byte, 16),
			MakeBox(TypeWAVE, MakeBox(BoxType{'f', 'r', 'm', 'a'}, TypeMP4A[:]), MakeEsdsBox(ObjectTypeAAC, aacLC)))
		// sound description version 1 lives in the first reserved field
		binary.BigEndian.PutUint16(entry[16:], 1)
		entries, err := ParseStsd(leafOf(t, MakeStsdBox(entry)), true)
		if err != nil {
			t.Fatal(err)
		}
		if entries[0].Codec.Codecs() != "mp4a.40.2" {
			t.Fatalf("esds inside wave not found: %+v", entries[0])
		}
	})
	t.Run("quicktime v2", func(t *testing.T) {
		body := make([]byte, 8+8+16+32)
		binary.BigEndian.PutUint16(body[6:], 1)
		binary.BigEndian.PutUint16(body[8:], 2)
		binary.BigEndian.PutUint64(body[32:], math.Float64bits(96000))
		binary.BigEndian.PutUint32(body[40:], 6)
		binary.BigEndian.PutUint32(body[48:], 24)
		entries, err := ParseStsd(leafOf(t, MakeStsdBox(MakeBox(TypeLPCM, body))), true)
		if err != nil {
			t.Fatal(err)
		}
		if e := entries[0]; e.SampleRate != 96000 || e.ChannelCount != 6 || e.SampleSize != 24 {
			t.Fatalf("unexpected %+v", e)
		}
	})
}

func TestParseStsdVideo(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		// no parameter sets, so dimensions stay those of the sample entry
		avcC := MakeBox(TypeAVCC, []byte{1, 0x64, 0, 0x28, 0xFF, 0xE0, 0})
		pasp := MakeBox(TypePASP, []byte{0, 0, 0, 4, 0, 0, 0, 3})
		stsd := MakeStsdBox(MakeVisualSampleEntry(TypeAVC1, 1280, 720, avcC, pasp))
		entries, err := ParseStsd(leafOf(t, stsd), false)
		if err != nil {
			t.Fatal(err)
		}
		e := entries[0]
		if !e.IsVideo() || e.Width != 1280 || e.Height != 720 || e.NalLengthSize != 4 {
			t.Fatalf("unexpected %+v", e)
		}
		if e.PixelAspectRatio != float32(4)/3 || e.Codec.Codecs() != "avc1.640028" {
			t.Fatalf("par %v codecs %s", e.PixelAspectRatio, e.Codec.Codecs())
		}
	})
	t.Run("nal length size 3", func(t *testing.T) {
		avcC := MakeBox(TypeAVCC, []byte{1, 0x64, 0, 0x28, 0xFE, 0xE0, 0})
		_, err := ParseStsd(leafOf(t, MakeStsdBox(MakeVisualSampleEntry(TypeAVC1, 16, 16, avcC))), false)
		if !errors.Is(err, ErrBadBoxContent) || !errors.Is(err, codec.ErrNalLengthSize) {
			t.Fatalf("want nal length size error, got %v", err)
		}
	})
	t.Run("empty stsd", func(t *testing.T) {
		if _, err := ParseStsd(leafOf(t, MakeStsdBox()), false); !errors.Is(err, ErrMissingBox) {
			t.Fatalf("want missing box, got %v", err)
		}
	})
}

func TestParseEsds(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		esds, err := ParseEsds(leafOf(t, MakeEsdsBox(ObjectTypeMP3, nil)))
		if err != nil {
			t.Fatal(err)
		}
		if esds.ObjectTypeIndication != ObjectTypeMP3 || esds.StreamType != 5 || esds.MaxBitrate != 128000 || len(esds.DecoderSpecificInfo) != 0 {
			t.Fatalf("unexpected %+v", esds)
		}
	})
	t.Run("truncated", func(t *testing.T) {
		full := MakeEsdsBox(ObjectTypeAAC, aacLC)
		cut := MakeFullBox(TypeESDS, 0, 0, full[12:20])
		if _, err := ParseEsds(leafOf(t, cut)); !errors.Is(err, ErrBadBoxContent) {
			t.Fatalf("want bad box content, got %v", err)
		}
	})
}

func TestFindEsdsDepth(t *testing.T) {
	wrap := func(n int) []Box {
		data := MakeEsdsBox(ObjectTypeAAC, aacLC)
		for i := 0; i < n; i++ {
			data = MakeBox(TypeWAVE, data)
		}
		boxes, err := ParseTree(data, 0, len(data))
		if err != nil {
			t.Fatal(err)
		}
		return boxes
	}
	t.Run(t.Name(), func(t *testing.T) {
		if findEsds(wrap(3), 0) == nil {
			t.Fatal("esds three waves deep not found")
		}
		if findEsds(wrap(MaxDepth+8), 0) != nil {
			t.Fatal("esds found past the depth limit")
		}
	})
}
