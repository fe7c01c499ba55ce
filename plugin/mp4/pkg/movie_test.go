package mp4

import (
	"errors"
	"testing"

	. "m7s.live/mp4probe/plugin/mp4/pkg/box"
)

func TestParseMovie(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		video := uniform(3, 1000)
		audio := audioTicks()
		audio.id = 2
		text := uniform(2, 1000)
		text.id = 3
		text.handler = BoxType{'t', 'e', 'x', 't'}
		movie, err := ParseMovie(parseMoov(t, makeMoov(1000, video.build(), audio.build(), text.build())), nil, ParseOptions{}, discard)
		if err != nil {
			t.Fatal(err)
		}
		if len(movie.Tracks) != 2 {
			t.Fatalf("got %d tracks", len(movie.Tracks))
		}
		if movie.Tracks[0].Track.Type != TrackTypeVideo || movie.Tracks[1].Track.Type != TrackTypeAudio {
			t.Fatalf("unexpected track order %v %v", movie.Tracks[0].Track.Type, movie.Tracks[1].Track.Type)
		}
		// mvhd declares no duration, so the longest track wins
		if movie.DurationUs != 10000000 {
			t.Fatalf("duration %d", movie.DurationUs)
		}
	})
	t.Run("malformed track is dropped", func(t *testing.T) {
		good := uniform(3, 1000)
		bad := uniform(3, 1000)
		bad.id = 2
		bad.stsc = []StscEntry{{FirstChunk: 2, SamplesPerChunk: 1, SampleDescriptionIndex: 1}}
		movie, err := ParseMovie(parseMoov(t, makeMoov(1000, bad.build(), good.build())), nil, ParseOptions{}, discard)
		if err != nil {
			t.Fatal(err)
		}
		if len(movie.Tracks) != 1 || movie.Tracks[0].Track.ID != 1 {
			t.Fatalf("unexpected tracks %+v", movie.Tracks)
		}
	})
	t.Run("missing structural box fails the movie", func(t *testing.T) {
		for _, drop := range []BoxType{TypeMDIA, TypeMINF, TypeSTBL, TypeSTSD} {
			broken := uniform(3, 1000)
			broken.drop = drop
			good := uniform(3, 1000)
			good.id = 2
			movie, err := ParseMovie(parseMoov(t, makeMoov(1000, good.build(), broken.build())), nil, ParseOptions{}, discard)
			if !errors.Is(err, ErrMalformedContainer) || !errors.Is(err, ErrMissingBox) || movie != nil {
				t.Fatalf("drop %s: got %v", drop, err)
			}
		}
	})
	t.Run("missing mvhd", func(t *testing.T) {
		moov := MakeBox(TypeMOOV, uniform(1, 1).build())
		if _, err := ParseMovie(parseMoov(t, moov), nil, ParseOptions{}, discard); !errors.Is(err, ErrMalformedContainer) {
			t.Fatalf("want malformed container, got %v", err)
		}
	})
	t.Run("non structural box drops the track", func(t *testing.T) {
		for _, drop := range []BoxType{TypeTKHD, TypeHDLR, TypeSTSC, TypeSTTS, TypeSTSZ, TypeSTCO} {
			broken := uniform(3, 1000)
			broken.drop = drop
			movie, err := ParseMovie(parseMoov(t, makeMoov(1000, broken.build())), nil, ParseOptions{}, discard)
			if err != nil {
				t.Fatalf("drop %s: %v", drop, err)
			}
			if len(movie.Tracks) != 0 {
				t.Fatalf("drop %s: track kept", drop)
			}
		}
	})
	t.Run("strict mode", func(t *testing.T) {
		f := uniform(3, 1000)
		f.stts = []Run{{5, 1000}}
		moov := makeMoov(1000, f.build())
		movie, err := ParseMovie(parseMoov(t, moov), nil, ParseOptions{}, discard)
		if err != nil || len(movie.Tracks) != 1 || !movie.Tracks[0].Inconsistent {
			t.Fatalf("lenient parse: %v %+v", err, movie)
		}
		movie, err = ParseMovie(parseMoov(t, moov), nil, ParseOptions{Strict: true}, discard)
		if err != nil || len(movie.Tracks) != 0 {
			t.Fatalf("strict parse should drop the inconsistent track: %v", err)
		}
		tkhdFlags := uniform(3, 1000)
		stco := MakeStcoBox(false, tkhdFlags.offsets...)
		stco[11] = 1
		tree := parseMoov(t, makeMoov(1000, tkhdFlags.build()))
		stbl := tree.Containers(TypeTRAK)[0].Container(TypeMDIA).Container(TypeMINF).Container(TypeSTBL)
		stbl.Leaf(TypeSTCO).Data = stco[8:]
		movie, err = ParseMovie(tree, nil, ParseOptions{Strict: true}, discard)
		if err != nil || len(movie.Tracks) != 0 {
			t.Fatalf("strict parse should reject stco flags: %v", err)
		}
		if _, err = BuildTrack(tree.Containers(TypeTRAK)[0], MovieHeaderBox{Timescale: 1000}, false, ParseOptions{Strict: true}); !errors.Is(err, ErrFlagsNotZero) {
			t.Fatalf("want flags not zero, got %v", err)
		}
	})
}

func TestBuildTrack(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		f := audioTicks()
		f.language = "fra"
		f.entry = MakeAudioSampleEntry(TypeMP4A, 1, 16, 22050, MakeEsdsBox(ObjectTypeAAC, []byte{0x12, 0x10}))
		f.elst = []ELSTEntry{{SegmentDuration: 500, MediaTime: 1024, MediaRateInteger: 1}}
		trak := parseMoov(t, makeMoov(600, f.build())).Containers(TypeTRAK)[0]
		track, err := BuildTrack(trak, MovieHeaderBox{Timescale: 600}, false, ParseOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if track.Type != TrackTypeAudio || track.Timescale != 1000 || track.MovieTimescale != 600 || track.DurationUs != TimeUnset {
			t.Fatalf("unexpected %+v", track)
		}
		format := track.Format
		if format.Codecs != "mp4a.40.2" || format.SampleRate != 44100 || format.ChannelCount != 2 {
			t.Fatalf("unexpected format %+v", format)
		}
		if format.Language != "fra" || format.LanguageName() != "French" {
			t.Fatalf("language %q %q", format.Language, format.LanguageName())
		}
		if track.EditList == nil || track.EditList.Durations[0] != 500 || track.EditList.MediaTimes[0] != 1024 {
			t.Fatalf("edit list %+v", track.EditList)
		}
	})
	t.Run("rotation", func(t *testing.T) {
		f := uniform(1, 1)
		f.matrix = [9]int32{0, 0x10000, 0, -0x10000, 0, 0, 0, 0, 0x40000000}
		trak := parseMoov(t, makeMoov(1000, f.build())).Containers(TypeTRAK)[0]
		track, err := BuildTrack(trak, MovieHeaderBox{Timescale: 1000}, false, ParseOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if track.Format.RotationDegrees != 90 || track.Format.Codecs != "avc1" || track.Format.LanguageName() != "" {
			t.Fatalf("unexpected format %+v", track.Format)
		}
	})
	t.Run("unsupported media rate", func(t *testing.T) {
		f := uniform(1, 1)
		f.elst = []ELSTEntry{{SegmentDuration: 1, MediaRateInteger: 2}}
		trak := parseMoov(t, makeMoov(1000, f.build())).Containers(TypeTRAK)[0]
		if _, err := BuildTrack(trak, MovieHeaderBox{Timescale: 1000}, false, ParseOptions{}); !errors.Is(err, ErrBadBoxContent) {
			t.Fatalf("want bad box content, got %v", err)
		}
	})
}
