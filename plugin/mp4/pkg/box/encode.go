package box

import (
	"math"

	"m7s.live/mp4probe/pkg/util"
)

// Box writers for building moov fixtures.

var IdentityMatrix = [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000}

// Run is one (count, value) entry of stts or ctts.
type Run struct {
	Count uint32
	Value int32
}

type StscEntry struct {
	FirstChunk             uint32
	SamplesPerChunk        uint32
	SampleDescriptionIndex uint32
}

func MakeBox(t BoxType, payload ...[]byte) []byte {
	size := BasicBoxLen
	for _, p := range payload {
		size += len(p)
	}
	b := make(util.Buffer, 0, size)
	b.WriteUint32(uint32(size))
	b.Write(t[:])
	for _, p := range payload {
		b.Write(p)
	}
	return b
}

func MakeFullBox(t BoxType, version uint8, flags uint32, payload ...[]byte) []byte {
	var header util.Buffer
	header.WriteByte(version)
	header.WriteUint24(flags)
	return MakeBox(t, append([][]byte{header}, payload...)...)
}

func makeRuns(t BoxType, version uint8, runs []Run) []byte {
	var b util.Buffer
	b.WriteUint32(uint32(len(runs)))
	for _, run := range runs {
		b.WriteUint32(run.Count)
		b.WriteUint32(uint32(run.Value))
	}
	return MakeFullBox(t, version, 0, b)
}

func MakeSttsBox(runs ...Run) []byte {
	return makeRuns(TypeSTTS, 0, runs)
}

func MakeCttsBox(runs ...Run) []byte {
	return makeRuns(TypeCTTS, 1, runs)
}

func MakeStscBox(entries ...StscEntry) []byte {
	var b util.Buffer
	b.WriteUint32(uint32(len(entries)))
	for _, e := range entries {
		b.WriteUint32(e.FirstChunk)
		b.WriteUint32(e.SamplesPerChunk)
		b.WriteUint32(e.SampleDescriptionIndex)
	}
	return MakeFullBox(TypeSTSC, 0, 0, b)
}

// MakeStcoBox writes co64 when large is set, stco otherwise.
func MakeStcoBox(large bool, offsets ...uint64) []byte {
	var b util.Buffer
	b.WriteUint32(uint32(len(offsets)))
	for _, o := range offsets {
		if large {
			b.WriteUint64(o)
		} else {
			b.WriteUint32(uint32(o))
		}
	}
	if large {
		return MakeFullBox(TypeCO64, 0, 0, b)
	}
	return MakeFullBox(TypeSTCO, 0, 0, b)
}

// MakeStszBox writes a fixed size when fixed is nonzero, the explicit sizes otherwise.
func MakeStszBox(fixed uint32, count int, sizes ...uint32) []byte {
	var b util.Buffer
	b.WriteUint32(fixed)
	if fixed == 0 {
		count = len(sizes)
	}
	b.WriteUint32(uint32(count))
	if fixed == 0 {
		for _, s := range sizes {
			b.WriteUint32(s)
		}
	}
	return MakeFullBox(TypeSTSZ, 0, 0, b)
}

func MakeStz2Box(fieldSize int, sizes ...uint32) []byte {
	var b util.Buffer
	b.WriteUint24(0)
	b.WriteByte(byte(fieldSize))
	b.WriteUint32(uint32(len(sizes)))
	b.Write(PackStz2(fieldSize, sizes))
	return MakeFullBox(TypeSTZ2, 0, 0, b)
}

// PackStz2 encodes sizes at the given field width; an odd nibble count pads with zero.
func PackStz2(fieldSize int, sizes []uint32) (b util.Buffer) {
	switch fieldSize {
	case 4:
		for i := 0; i < len(sizes); i += 2 {
			v := byte(sizes[i]&0x0F) << 4
			if i+1 < len(sizes) {
				v |= byte(sizes[i+1] & 0x0F)
			}
			b.WriteByte(v)
		}
	case 8:
		for _, s := range sizes {
			b.WriteByte(byte(s))
		}
	case 16:
		for _, s := range sizes {
			b.WriteUint16(uint16(s))
		}
	}
	return
}

func MakeStssBox(sampleNumbers ...uint32) []byte {
	var b util.Buffer
	b.WriteUint32(uint32(len(sampleNumbers)))
	for _, n := range sampleNumbers {
		b.WriteUint32(n)
	}
	return MakeFullBox(TypeSTSS, 0, 0, b)
}

// MakeElstBox returns the elst already wrapped in its edts container.
func MakeElstBox(version uint8, entries ...ELSTEntry) []byte {
	var b util.Buffer
	b.WriteUint32(uint32(len(entries)))
	for _, e := range entries {
		if version == 1 {
			b.WriteUint64(e.SegmentDuration)
			b.WriteUint64(uint64(e.MediaTime))
		} else {
			b.WriteUint32(uint32(e.SegmentDuration))
			b.WriteUint32(uint32(e.MediaTime))
		}
		b.WriteUint16(uint16(e.MediaRateInteger))
		b.WriteUint16(uint16(e.MediaRateFraction))
	}
	return MakeBox(TypeEDTS, MakeFullBox(TypeELST, version, 0, b))
}

func MakeMvhdBox(version uint8, timescale uint32, duration uint64) []byte {
	var b util.Buffer
	if version == 1 {
		b.WriteUint64(0)
		b.WriteUint64(0)
		b.WriteUint32(timescale)
		b.WriteUint64(duration)
	} else {
		b.WriteUint32(0)
		b.WriteUint32(0)
		b.WriteUint32(timescale)
		b.WriteUint32(uint32(duration))
	}
	b.WriteUint32(0x00010000) // rate
	b.WriteUint16(0x0100)     // volume
	b.Write(make([]byte, 10))
	for _, m := range IdentityMatrix {
		b.WriteUint32(uint32(m))
	}
	b.Write(make([]byte, 24))
	b.WriteUint32(math.MaxUint32)
	return MakeFullBox(TypeMVHD, version, 0, b)
}

func MakeTkhdBox(version uint8, trackID uint32, duration uint64, matrix [9]int32, width, height uint32) []byte {
	var b util.Buffer
	if version == 1 {
		b.WriteUint64(0)
		b.WriteUint64(0)
		b.WriteUint32(trackID)
		b.WriteUint32(0)
		b.WriteUint64(duration)
	} else {
		b.WriteUint32(0)
		b.WriteUint32(0)
		b.WriteUint32(trackID)
		b.WriteUint32(0)
		b.WriteUint32(uint32(duration))
	}
	b.Write(make([]byte, 16))
	for _, m := range matrix {
		b.WriteUint32(uint32(m))
	}
	b.WriteUint32(width << 16)
	b.WriteUint32(height << 16)
	return MakeFullBox(TypeTKHD, version, 3, b)
}

func MakeMdhdBox(version uint8, timescale uint32, duration uint64, language string) []byte {
	var b util.Buffer
	if version == 1 {
		b.WriteUint64(0)
		b.WriteUint64(0)
		b.WriteUint32(timescale)
		b.WriteUint64(duration)
	} else {
		b.WriteUint32(0)
		b.WriteUint32(0)
		b.WriteUint32(timescale)
		b.WriteUint32(uint32(duration))
	}
	var packed uint16
	if len(language) == 3 {
		for i := 0; i < 3; i++ {
			packed |= uint16(language[i]-0x60) << (10 - 5*i)
		}
	}
	b.WriteUint16(packed)
	b.WriteUint16(0)
	return MakeFullBox(TypeMDHD, version, 0, b)
}

func MakeHdlrBox(handlerType BoxType, name string) []byte {
	var b util.Buffer
	b.WriteUint32(0)
	b.Write(handlerType[:])
	b.Write(make([]byte, 12))
	b.WriteString(name)
	b.WriteByte(0)
	return MakeFullBox(TypeHDLR, 0, 0, b)
}

func MakeFtypBox(major BoxType, minor uint32, compatibleBrands ...BoxType) []byte {
	var b util.Buffer
	b.Write(major[:])
	b.WriteUint32(minor)
	for _, brand := range compatibleBrands {
		b.Write(brand[:])
	}
	return MakeBox(TypeFTYP, b)
}

func MakeStsdBox(entries ...[]byte) []byte {
	var b util.Buffer
	b.WriteUint32(uint32(len(entries)))
	for _, e := range entries {
		b.Write(e)
	}
	return MakeFullBox(TypeSTSD, 0, 0, b)
}

func MakeVisualSampleEntry(t BoxType, width, height uint16, children ...[]byte) []byte {
	var b util.Buffer
	b.Write(make([]byte, 6))
	b.WriteUint16(1)
	b.Write(make([]byte, 16))
	b.WriteUint16(width)
	b.WriteUint16(height)
	b.WriteUint32(0x00480000)
	b.WriteUint32(0x00480000)
	b.WriteUint32(0)
	b.WriteUint16(1)
	b.Write(make([]byte, 32))
	b.WriteUint16(0x0018)
	b.WriteUint16(0xFFFF)
	return MakeBox(t, append([][]byte{b}, children...)...)
}

func MakeAudioSampleEntry(t BoxType, channels, sampleSize uint16, sampleRate uint32, children ...[]byte) []byte {
	var b util.Buffer
	b.Write(make([]byte, 6))
	b.WriteUint16(1)
	b.Write(make([]byte, 8))
	b.WriteUint16(channels)
	b.WriteUint16(sampleSize)
	b.WriteUint32(0)
	b.WriteUint32(sampleRate << 16)
	return MakeBox(t, append([][]byte{b}, children...)...)
}

// MakeEsdsBox writes an ES_Descriptor with a single DecoderSpecificInfo.
func MakeEsdsBox(objectType uint8, asc []byte) []byte {
	var dsi util.Buffer
	dsi.WriteByte(decSpecificInfoTag)
	dsi.WriteByte(byte(len(asc)))
	dsi.Write(asc)

	var dcd util.Buffer
	dcd.WriteByte(decoderConfigDescrTag)
	dcd.WriteByte(byte(13 + len(dsi)))
	dcd.WriteByte(objectType)
	dcd.WriteByte(0x15) // audio stream
	dcd.WriteUint24(0)
	dcd.WriteUint32(128000)
	dcd.WriteUint32(96000)
	dcd.Write(dsi)

	var es util.Buffer
	es.WriteByte(esDescrTag)
	// expandable size, always four bytes like most muxers
	size := 3 + len(dcd) + 3
	es.Write([]byte{0x80, 0x80, 0x80, byte(size)})
	es.WriteUint16(1) // ES_ID
	es.WriteByte(0)
	es.Write(dcd)
	es.Write([]byte{0x06, 0x01, 0x02}) // SLConfigDescriptor
	return MakeFullBox(TypeESDS, 0, 0, es)
}
