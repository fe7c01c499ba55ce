package box

import (
	"math"

	"m7s.live/mp4probe/pkg/codec"
	"m7s.live/mp4probe/pkg/util"
)

const (
	visualSampleEntryLen = 78
	audioSampleEntryLen  = 28
)

// SampleEntry is one decoded sample description.
type SampleEntry struct {
	Type             BoxType
	DataRefIndex     uint16
	Width, Height    int
	PixelAspectRatio float32
	ChannelCount     int
	SampleSize       int
	SampleRate       int
	// ObjectTypeIndication and the bitrates come from esds.
	ObjectTypeIndication uint8
	MaxBitrate           uint32
	AvgBitrate           uint32
	DecoderConfig        []byte
	NalLengthSize        int
	Codec                codec.ICodecCtx
}

func (e *SampleEntry) IsVideo() bool {
	switch e.Type {
	case TypeAVC1, TypeAVC3, TypeHVC1, TypeHEV1, TypeENCV, TypeMP4V, TypeAV01, TypeVP09:
		return true
	}
	return false
}

func (e *SampleEntry) IsAudio() bool {
	switch e.Type {
	case TypeMP4A, TypeENCA, TypeULAW, TypeALAW, TypeOPUS, TypeFLAC, TypeAC3, TypeEC3,
		TypeLPCM, TypeSOWT, TypeTWOS, TypeMP3:
		return true
	}
	return false
}

// aligned(8) class SampleDescriptionBox (unsigned int(32) handler_type) extends FullBox('stsd', version, 0){
// 	int i ;
// 	unsigned int(32) entry_count;
// 	   for (i = 1 ; i <= entry_count ; i++){
// 		  SampleEntry();
// 	   }
// }

// ParseStsd decodes every sample entry. isQuickTime selects the QuickTime sound description layout.
func ParseStsd(leaf *LeafBox, isQuickTime bool) (entries []*SampleEntry, err error) {
	_, b, err := leaf.FullBox()
	if err != nil {
		return
	}
	if !b.CanReadN(4) {
		return nil, truncated(TypeSTSD)
	}
	count := int(b.ReadUint32())
	data := b.Bytes()
	for pos := 0; len(entries) < count; {
		var header BasicBox
		if header, err = ReadHeader(data, pos, len(data)); err != nil {
			return nil, err
		}
		var entry *SampleEntry
		if entry, err = parseSampleEntry(header, data[header.PayloadOffset():header.End()], isQuickTime); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		pos = header.End()
	}
	// an stsd without entries describes nothing, same as a missing one
	if len(entries) == 0 {
		return nil, &MissingBoxError{Type: TypeSTSD}
	}
	return
}

// aligned(8) abstract class SampleEntry (unsigned int(32) format) extends Box(format){
// 	const unsigned int(8)[6] reserved = 0;
// 	unsigned int(16) data_reference_index;
// }

func parseSampleEntry(header BasicBox, payload util.Buffer, isQuickTime bool) (entry *SampleEntry, err error) {
	entry = &SampleEntry{Type: header.Type, PixelAspectRatio: 1}
	if !payload.CanReadN(8) {
		return nil, truncated(header.Type)
	}
	payload.Skip(6)
	entry.DataRefIndex = payload.ReadUint16()
	switch {
	case entry.IsVideo():
		err = entry.parseVisual(payload)
	case entry.IsAudio():
		err = entry.parseAudio(payload, isQuickTime)
	}
	if err != nil {
		return nil, err
	}
	return
}

// class VisualSampleEntry(codingname) extends SampleEntry (codingname){
// 	unsigned int(16) pre_defined = 0;
// 	const unsigned int(16) reserved = 0;
// 	unsigned int(32)[3] pre_defined = 0;
// 	unsigned int(16) width;
// 	unsigned int(16) height;
// 	template unsigned int(32) horizresolution = 0x00480000; // 72 dpi
// 	template unsigned int(32) vertresolution = 0x00480000; // 72 dpi
// 	const unsigned int(32) reserved = 0;
// 	template unsigned int(16) frame_count = 1;
// 	string[32] compressorname;
// 	template unsigned int(16) depth = 0x0018;
// 	int(16) pre_defined = -1;
// }

func (entry *SampleEntry) parseVisual(b util.Buffer) (err error) {
	if !b.CanReadN(visualSampleEntryLen - 8) {
		return truncated(entry.Type)
	}
	b.Skip(16)
	entry.Width = int(b.ReadUint16())
	entry.Height = int(b.ReadUint16())
	b.Skip(50)
	children, err := ParseTree(b, 0, b.Len())
	if err != nil {
		return
	}
	for _, child := range children {
		leaf, ok := child.(*LeafBox)
		if !ok {
			continue
		}
		switch leaf.Type {
		case TypeAVCC:
			if entry.Type != TypeAVC1 && entry.Type != TypeAVC3 && entry.Type != TypeENCV {
				continue
			}
			var ctx *codec.H264Ctx
			if ctx, err = codec.NewH264Ctx(leaf.Data); err != nil {
				return &BadBoxContentError{Type: TypeAVCC, Err: err}
			}
			entry.Codec, entry.DecoderConfig, entry.NalLengthSize = ctx, leaf.Data, ctx.NalLengthSize
			if sps := ctx.SPS; sps != nil {
				entry.Width, entry.Height, entry.PixelAspectRatio = sps.Width, sps.Height, sps.PixelAspectRatio
			}
		case TypeHVCC:
			var ctx *codec.H265Ctx
			if ctx, err = codec.NewH265Ctx(codec.FourCC(entry.Type), leaf.Data); err != nil {
				return &BadBoxContentError{Type: TypeHVCC, Err: err}
			}
			entry.Codec, entry.DecoderConfig, entry.NalLengthSize = ctx, leaf.Data, ctx.NalLengthSize
			if ctx.Width > 0 && ctx.Height > 0 {
				entry.Width, entry.Height = ctx.Width, ctx.Height
			}
		case TypePASP:
			if leaf.Data.Len() >= 8 {
				h, v := leaf.Data.Uint32At(0), leaf.Data.Uint32At(4)
				if h > 0 && v > 0 {
					entry.PixelAspectRatio = float32(h) / float32(v)
				}
			}
		}
	}
	return
}

// class AudioSampleEntry(codingname) extends SampleEntry (codingname){
// 	const unsigned int(32)[2] reserved = 0;
// 	template unsigned int(16) channelcount = 2;
// 	template unsigned int(16) samplesize = 16;
// 	unsigned int(16) pre_defined = 0;
// 	const unsigned int(16) reserved = 0 ;
// 	template unsigned int(32) samplerate = { default samplerate of media}<<16;
// }
//
// QuickTime movies reuse the first reserved field as a sound description version:
// version 1 appends 16 bytes, version 2 replaces the body with a float64 rate.

func (entry *SampleEntry) parseAudio(b util.Buffer, isQuickTime bool) (err error) {
	if !b.CanReadN(audioSampleEntryLen - 8) {
		return truncated(entry.Type)
	}
	var version uint16
	if isQuickTime {
		version = b.ReadUint16()
		b.Skip(6)
	} else {
		b.Skip(8)
	}
	switch version {
	case 0, 1:
		entry.ChannelCount = int(b.ReadUint16())
		entry.SampleSize = int(b.ReadUint16())
		b.Skip(4)
		entry.SampleRate = int(b.ReadUint32() >> 16)
		if version == 1 && !b.Skip(16) {
			return truncated(entry.Type)
		}
	case 2:
		if !b.Skip(16) || !b.CanReadN(32) {
			return truncated(entry.Type)
		}
		entry.SampleRate = int(math.Round(math.Float64frombits(b.ReadUint64())))
		entry.ChannelCount = int(b.ReadUint32())
		b.Skip(4) // always 0x7F000000
		entry.SampleSize = int(b.ReadUint32())
		b.Skip(12)
	default:
		return &BadBoxContentError{Type: entry.Type, Reason: "unsupported sound description version"}
	}
	children, err := ParseTree(b, 0, b.Len())
	if err != nil {
		return
	}
	if esds := findEsds(children, 0); esds != nil {
		if err = entry.applyEsds(esds); err != nil {
			return
		}
	}
	if entry.Codec == nil {
		entry.Codec = codec.NewAudioCtx(codec.FourCC(entry.Type), entry.SampleRate, entry.ChannelCount, entry.SampleSize)
	}
	return
}

// findEsds looks at the entry's children and inside a QuickTime wave box.
func findEsds(children []Box, depth int) *LeafBox {
	for _, child := range children {
		leaf, ok := child.(*LeafBox)
		if !ok {
			continue
		}
		switch leaf.Type {
		case TypeESDS:
			return leaf
		case TypeWAVE:
			if depth+1 >= MaxDepth {
				continue
			}
			if inner, err := parseTree(leaf.Data, 0, leaf.Data.Len(), depth+1); err == nil {
				if esds := findEsds(inner, depth+1); esds != nil {
					return esds
				}
			}
		}
	}
	return nil
}

func (entry *SampleEntry) applyEsds(leaf *LeafBox) error {
	esds, err := ParseEsds(leaf)
	if err != nil {
		return err
	}
	entry.ObjectTypeIndication = esds.ObjectTypeIndication
	entry.MaxBitrate, entry.AvgBitrate = esds.MaxBitrate, esds.AvgBitrate
	entry.DecoderConfig = esds.DecoderSpecificInfo
	if esds.ObjectTypeIndication != ObjectTypeAAC || len(esds.DecoderSpecificInfo) == 0 {
		return nil
	}
	ctx, err := codec.NewAACCtx(esds.DecoderSpecificInfo)
	if err != nil {
		return &BadBoxContentError{Type: TypeESDS, Reason: "audio specific config", Err: err}
	}
	entry.Codec = ctx
	entry.SampleRate, entry.ChannelCount = ctx.GetSampleRate(), ctx.GetChannels()
	return nil
}
