package mp4

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"m7s.live/mp4probe/pkg/codec"
	"m7s.live/mp4probe/pkg/util"
	. "m7s.live/mp4probe/plugin/mp4/pkg/box"
)

// TimeUnset marks a duration the file does not declare.
const TimeUnset int64 = math.MinInt64 + 1

const microsPerSecond = 1000000

type TrackType int

const (
	TrackTypeUnknown TrackType = iota
	TrackTypeAudio
	TrackTypeVideo
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeAudio:
		return "audio"
	case TrackTypeVideo:
		return "video"
	}
	return "unknown"
}

type (
	ParseOptions struct {
		IgnoreEditLists bool
		// Strict rejects non-zero flags and inconsistent sample tables.
		Strict bool
	}
	// EditList durations are in movie ticks, media times in track ticks.
	EditList struct {
		Durations  []uint64
		MediaTimes []int64
	}
	Format struct {
		SampleEntry       string
		Codecs            string
		Codec             codec.ICodecCtx `json:"-"`
		Width, Height     int
		RotationDegrees   int
		PixelAspectRatio  float32
		SampleRate        int
		ChannelCount      int
		Language          string
		InitData          []byte `json:"-"`
		AvgBitrate        uint32
		HasPrerollSamples bool
	}
	Track struct {
		ID              uint32
		Type            TrackType
		Timescale       uint32
		MovieTimescale  uint32
		DurationUs      int64
		MediaDurationUs int64
		EditList        *EditList
		Format          Format
		NalLengthSize   int
		stbl            *ContainerBox
	}
)

// LanguageName is the English display name of the track language, empty when undetermined.
func (f *Format) LanguageName() string {
	if f.Language == "" || f.Language == "und" {
		return ""
	}
	tag, err := language.Parse(f.Language)
	if err != nil {
		return ""
	}
	return display.English.Languages().Name(tag)
}

func trackType(handler BoxType) TrackType {
	switch handler {
	case TypeSOUN:
		return TrackTypeAudio
	case TypeVIDE:
		return TrackTypeVideo
	}
	return TrackTypeUnknown
}

var strictZeroFlags = []BoxType{TypeSTSD, TypeSTTS, TypeSTSS, TypeSTSZ, TypeSTSC, TypeSTCO, TypeCO64}

// BuildTrack reads the headers of one trak. A nil track with a nil error means the
// handler type is not audio or video.
func BuildTrack(trak *ContainerBox, mvhd MovieHeaderBox, isQuickTime bool, opts ParseOptions) (*Track, error) {
	mdia, err := trak.RequireContainer(TypeMDIA)
	if err != nil {
		return nil, err
	}
	hdlrBox, err := mdia.RequireLeaf(TypeHDLR)
	if err != nil {
		return nil, err
	}
	hdlr, err := ParseHdlr(hdlrBox)
	if err != nil {
		return nil, err
	}
	track := &Track{Type: trackType(hdlr.HandlerType), MovieTimescale: mvhd.Timescale}
	if track.Type == TrackTypeUnknown {
		return nil, nil
	}
	minf, err := mdia.RequireContainer(TypeMINF)
	if err != nil {
		return nil, err
	}
	if track.stbl, err = minf.RequireContainer(TypeSTBL); err != nil {
		return nil, err
	}
	stsdBox, err := track.stbl.RequireLeaf(TypeSTSD)
	if err != nil {
		return nil, err
	}
	if opts.Strict {
		checks := []*LeafBox{hdlrBox}
		for _, t := range strictZeroFlags {
			if leaf := track.stbl.Leaf(t); leaf != nil {
				checks = append(checks, leaf)
			}
		}
		for _, leaf := range checks {
			if err = leaf.CheckZeroFlags(); err != nil {
				return nil, err
			}
		}
	}

	tkhdBox, err := trak.RequireLeaf(TypeTKHD)
	if err != nil {
		return nil, err
	}
	tkhd, err := ParseTkhd(tkhdBox)
	if err != nil {
		return nil, err
	}
	track.ID = tkhd.TrackID
	track.DurationUs = TimeUnset
	if !tkhd.DurationUnset {
		track.DurationUs = util.ScaleTimestamp(int64(tkhd.Duration), microsPerSecond, uint64(mvhd.Timescale))
	}

	mdhdBox, err := mdia.RequireLeaf(TypeMDHD)
	if err != nil {
		return nil, err
	}
	if opts.Strict {
		if err = mdhdBox.CheckZeroFlags(); err != nil {
			return nil, err
		}
	}
	mdhd, err := ParseMdhd(mdhdBox)
	if err != nil {
		return nil, err
	}
	track.Timescale = mdhd.Timescale
	track.MediaDurationUs = TimeUnset
	if !mdhd.DurationUnset {
		track.MediaDurationUs = util.ScaleTimestamp(int64(mdhd.Duration), microsPerSecond, uint64(mdhd.Timescale))
	}

	entries, err := ParseStsd(stsdBox, isQuickTime)
	if err != nil {
		return nil, err
	}
	track.Format = newFormat(entries[0], tkhd, mdhd)
	track.NalLengthSize = entries[0].NalLengthSize

	if !opts.IgnoreEditLists {
		if edts := trak.Container(TypeEDTS); edts != nil {
			if elstBox := edts.Leaf(TypeELST); elstBox != nil {
				elst, err := ParseElst(elstBox)
				if err != nil {
					return nil, err
				}
				track.EditList = newEditList(elst)
			}
		}
	}
	return track, nil
}

func newFormat(entry *SampleEntry, tkhd TrackHeaderBox, mdhd MediaHeaderBox) (f Format) {
	f = Format{
		SampleEntry:      entry.Type.String(),
		Codecs:           entry.Type.String(),
		Codec:            entry.Codec,
		Width:            entry.Width,
		Height:           entry.Height,
		RotationDegrees:  tkhd.RotationDegrees,
		PixelAspectRatio: entry.PixelAspectRatio,
		SampleRate:       entry.SampleRate,
		ChannelCount:     entry.ChannelCount,
		Language:         mdhd.Language,
		InitData:         entry.DecoderConfig,
		AvgBitrate:       entry.AvgBitrate,
	}
	if entry.Codec != nil {
		f.Codecs = entry.Codec.Codecs()
	}
	return
}

func newEditList(elst EditListBox) *EditList {
	if len(elst.Entries) == 0 {
		return nil
	}
	list := &EditList{
		Durations:  make([]uint64, len(elst.Entries)),
		MediaTimes: make([]int64, len(elst.Entries)),
	}
	for i, e := range elst.Entries {
		list.Durations[i] = e.SegmentDuration
		list.MediaTimes[i] = e.MediaTime
	}
	return list
}
