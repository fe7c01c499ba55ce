package box

import (
	"math"

	"github.com/yapingcat/gomedia/go-codec"
	"m7s.live/mp4probe/pkg/util"
)

// aligned(8) class MovieHeaderBox extends FullBox('mvhd', version, 0) {
// 	if (version==1) {
// 	   unsigned int(64)  creation_time;
// 	   unsigned int(64)  modification_time;
// 	   unsigned int(32)  timescale;
// 	   unsigned int(64)  duration;
// 	} else { // version==0
// 	   unsigned int(32)  creation_time;
// 	   unsigned int(32)  modification_time;
// 	   unsigned int(32)  timescale;
// 	   unsigned int(32)  duration;
// 	}
// 	...
// }

type MovieHeaderBox struct {
	Version          uint8
	CreationTime     uint64
	ModificationTime uint64
	Timescale        uint32
	Duration         uint64
	DurationUnset    bool
	NextTrackID      uint32
}

func ParseMvhd(leaf *LeafBox) (mvhd MovieHeaderBox, err error) {
	fb, b, err := leaf.FullBox()
	if err != nil {
		return
	}
	mvhd.Version = fb.Version
	if fb.Version == 1 {
		if !b.CanReadN(28) {
			return mvhd, truncated(TypeMVHD)
		}
		mvhd.CreationTime = b.ReadUint64()
		mvhd.ModificationTime = b.ReadUint64()
		mvhd.Timescale = b.ReadUint32()
		mvhd.Duration = b.ReadUint64()
		mvhd.DurationUnset = mvhd.Duration == math.MaxUint64
	} else {
		if !b.CanReadN(16) {
			return mvhd, truncated(TypeMVHD)
		}
		mvhd.CreationTime = uint64(b.ReadUint32())
		mvhd.ModificationTime = uint64(b.ReadUint32())
		mvhd.Timescale = b.ReadUint32()
		d := b.ReadUint32()
		mvhd.Duration = uint64(d)
		mvhd.DurationUnset = d == math.MaxUint32
	}
	if mvhd.Timescale == 0 {
		return mvhd, &BadBoxContentError{Type: TypeMVHD, Reason: "zero timescale"}
	}
	// rate(4) volume(2) reserved(10) matrix(36) pre_defined(24)
	if b.Skip(76) && b.CanReadN(4) {
		mvhd.NextTrackID = b.ReadUint32()
	}
	return
}

// aligned(8) class TrackHeaderBox extends FullBox('tkhd', version, flags){
// 	if (version==1) {
// 	   unsigned int(64)  creation_time;
// 	   unsigned int(64)  modification_time;
// 	   unsigned int(32)  track_ID;
// 	   const unsigned int(32)  reserved = 0;
// 	   unsigned int(64)  duration;
// 	} else { // version==0
// 	   unsigned int(32)  creation_time;
// 	   unsigned int(32)  modification_time;
// 	   unsigned int(32)  track_ID;
// 	   const unsigned int(32)  reserved = 0;
// 	   unsigned int(32)  duration;
// 	}
// 	const unsigned int(32)[2]  reserved = 0;
// 	template int(16) layer = 0;
// 	template int(16) alternate_group = 0;
// 	template int(16) volume = {if track_is_audio 0x0100 else 0};
// 	const unsigned int(16)  reserved = 0;
// 	template int(32)[9] matrix= { 0x00010000,0,0,0,0x00010000,0,0,0,0x40000000 };
// 	unsigned int(32) width;
// 	unsigned int(32) height;
// }

type TrackHeaderBox struct {
	Version         uint8
	Flags           uint32
	TrackID         uint32
	Duration        uint64
	DurationUnset   bool
	Matrix          [9]int32
	Width           float64
	Height          float64
	RotationDegrees int
}

func ParseTkhd(leaf *LeafBox) (tkhd TrackHeaderBox, err error) {
	fb, b, err := leaf.FullBox()
	if err != nil {
		return
	}
	tkhd.Version, tkhd.Flags = fb.Version, fb.Flags
	if fb.Version == 1 {
		if !b.CanReadN(32) {
			return tkhd, truncated(TypeTKHD)
		}
		b.Skip(16)
		tkhd.TrackID = b.ReadUint32()
		b.Skip(4)
		tkhd.Duration = b.ReadUint64()
		tkhd.DurationUnset = tkhd.Duration == math.MaxUint64 || tkhd.Duration == 0
	} else {
		if !b.CanReadN(20) {
			return tkhd, truncated(TypeTKHD)
		}
		b.Skip(8)
		tkhd.TrackID = b.ReadUint32()
		b.Skip(4)
		d := b.ReadUint32()
		tkhd.Duration = uint64(d)
		tkhd.DurationUnset = d == math.MaxUint32 || d == 0
	}
	if !b.Skip(16) || !b.CanReadN(44) {
		return tkhd, truncated(TypeTKHD)
	}
	for i := range tkhd.Matrix {
		tkhd.Matrix[i] = int32(b.ReadUint32())
	}
	tkhd.Width = float64(b.ReadUint32()) / 65536
	tkhd.Height = float64(b.ReadUint32()) / 65536
	tkhd.RotationDegrees = rotation(tkhd.Matrix)
	return
}

// rotation derives the display rotation from the 16.16 a/b matrix entries.
// Only multiples of 90 are reported; anything else is treated as unrotated.
func rotation(m [9]int32) int {
	a, b := float64(m[0])/65536, float64(m[1])/65536
	scale := math.Hypot(a, b)
	if scale == 0 {
		return 0
	}
	deg := math.Atan2(b/scale, a/scale) * 180 / math.Pi
	snapped := math.Round(deg/90) * 90
	if math.Abs(deg-snapped) > 0.01 {
		return 0
	}
	return (int(snapped)%360 + 360) % 360
}

// aligned(8) class MediaHeaderBox extends FullBox('mdhd', version, 0) {
// 	if (version==1) {
// 	   unsigned int(64)  creation_time;
// 	   unsigned int(64)  modification_time;
// 	   unsigned int(32)  timescale;
// 	   unsigned int(64)  duration;
// 	} else { // version==0
// 	   unsigned int(32)  creation_time;
// 	   unsigned int(32)  modification_time;
// 	   unsigned int(32)  timescale;
// 	   unsigned int(32)  duration;
// 	}
// 	bit(1) pad = 0;
// 	unsigned int(5)[3] language; // ISO-639-2/T language code
// 	unsigned int(16) pre_defined = 0;
// }

type MediaHeaderBox struct {
	Version       uint8
	Timescale     uint32
	Duration      uint64
	DurationUnset bool
	Language      string
}

func ParseMdhd(leaf *LeafBox) (mdhd MediaHeaderBox, err error) {
	fb, b, err := leaf.FullBox()
	if err != nil {
		return
	}
	mdhd.Version = fb.Version
	if fb.Version == 1 {
		if !b.CanReadN(30) {
			return mdhd, truncated(TypeMDHD)
		}
		b.Skip(16)
		mdhd.Timescale = b.ReadUint32()
		mdhd.Duration = b.ReadUint64()
		mdhd.DurationUnset = mdhd.Duration == math.MaxUint64 || mdhd.Duration == 0
	} else {
		if !b.CanReadN(18) {
			return mdhd, truncated(TypeMDHD)
		}
		b.Skip(8)
		mdhd.Timescale = b.ReadUint32()
		d := b.ReadUint32()
		mdhd.Duration = uint64(d)
		mdhd.DurationUnset = d == math.MaxUint32 || d == 0
	}
	if mdhd.Timescale == 0 {
		return mdhd, &BadBoxContentError{Type: TypeMDHD, Reason: "zero timescale"}
	}
	mdhd.Language = unpackLanguage(b.ReadN(2))
	return
}

func unpackLanguage(packed []byte) string {
	if len(packed) < 2 || util.ReadBE[uint16](packed)&0x7FFF == 0 {
		return "und"
	}
	bs := codec.NewBitStream(packed)
	bs.GetBit()
	var lang [3]byte
	for i := range lang {
		lang[i] = bs.Uint8(5) + 0x60
	}
	return string(lang[:])
}

// aligned(8) class HandlerBox extends FullBox('hdlr', version = 0, 0) {
// 	unsigned int(32) pre_defined = 0;
// 	unsigned int(32) handler_type;
// 	const unsigned int(32)[3] reserved = 0;
// 	string   name;
// }

type HandlerBox struct {
	HandlerType BoxType
	Name        string
}

func ParseHdlr(leaf *LeafBox) (hdlr HandlerBox, err error) {
	_, b, err := leaf.FullBox()
	if err != nil {
		return
	}
	if !b.Skip(4) || !b.CanReadN(4) {
		return hdlr, truncated(TypeHDLR)
	}
	copy(hdlr.HandlerType[:], b.ReadN(4))
	if b.Skip(12) {
		name := b.Bytes()
		for i, c := range name {
			if c == 0 {
				name = name[:i]
				break
			}
		}
		hdlr.Name = string(name)
	}
	return
}

type FileTypeBox struct {
	MajorBrand       BoxType
	MinorVersion     uint32
	CompatibleBrands []BoxType
}

func ParseFtyp(leaf *LeafBox) (ftyp FileTypeBox, err error) {
	b := leaf.Data
	if !b.CanReadN(8) {
		return ftyp, truncated(TypeFTYP)
	}
	copy(ftyp.MajorBrand[:], b.ReadN(4))
	ftyp.MinorVersion = b.ReadUint32()
	for b.CanReadN(4) {
		var brand BoxType
		copy(brand[:], b.ReadN(4))
		ftyp.CompatibleBrands = append(ftyp.CompatibleBrands, brand)
	}
	return
}

// IsQuickTime reports a QuickTime movie, which changes the sound description layout.
func (ftyp FileTypeBox) IsQuickTime() bool {
	return ftyp.MajorBrand == TypeQT
}

// aligned(8) class EditListBox extends FullBox('elst', version, 0) {
// 	unsigned int(32) entry_count;
// 	for (i=1; i <= entry_count; i++) {
// 	   if (version==1) {
// 		  unsigned int(64) segment_duration;
// 		  int(64) media_time;
// 	   } else { // version==0
// 		  unsigned int(32) segment_duration;
// 		  int(32)  media_time;
// 	   }
// 	   int(16) media_rate_integer;
// 	   int(16) media_rate_fraction = 0;
// 	}
// }

type ELSTEntry struct {
	SegmentDuration   uint64
	MediaTime         int64
	MediaRateInteger  int16
	MediaRateFraction int16
}

type EditListBox struct {
	Version uint8
	Entries []ELSTEntry
}

func ParseElst(leaf *LeafBox) (elst EditListBox, err error) {
	fb, b, err := leaf.FullBox()
	if err != nil {
		return
	}
	elst.Version = fb.Version
	if !b.CanReadN(4) {
		return elst, truncated(TypeELST)
	}
	count := int(b.ReadUint32())
	entrySize := 12
	if fb.Version == 1 {
		entrySize = 20
	}
	if count > b.Len()/entrySize {
		return elst, &BadBoxContentError{Type: TypeELST, Reason: "entry count exceeds box"}
	}
	elst.Entries = make([]ELSTEntry, count)
	for i := range elst.Entries {
		entry := &elst.Entries[i]
		if fb.Version == 1 {
			entry.SegmentDuration = b.ReadUint64()
			entry.MediaTime = int64(b.ReadUint64())
		} else {
			entry.SegmentDuration = uint64(b.ReadUint32())
			entry.MediaTime = int64(int32(b.ReadUint32()))
		}
		entry.MediaRateInteger = int16(b.ReadUint16())
		entry.MediaRateFraction = int16(b.ReadUint16())
		if entry.MediaRateInteger != 1 {
			return elst, &BadBoxContentError{Type: TypeELST, Reason: "unsupported media rate"}
		}
	}
	return
}
