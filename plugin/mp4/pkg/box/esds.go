package box

import (
	"errors"

	"m7s.live/mp4probe/pkg/util"
)

const (
	esDescrTag            = 0x03
	decoderConfigDescrTag = 0x04
	decSpecificInfoTag    = 0x05

	ObjectTypeAAC = 0x40
	ObjectTypeMP3 = 0x6B
)

var errShortDescriptor = errors.New("short descriptor")

// EsdsBox keeps the decoder configuration fields of an ES_Descriptor.
type EsdsBox struct {
	ObjectTypeIndication uint8
	StreamType           uint8
	MaxBitrate           uint32
	AvgBitrate           uint32
	DecoderSpecificInfo  []byte
}

// ParseEsds walks ES_Descriptor > DecoderConfigDescriptor > DecoderSpecificInfo.
func ParseEsds(leaf *LeafBox) (esds EsdsBox, err error) {
	_, b, err := leaf.FullBox()
	if err != nil {
		return
	}
	fail := func() (EsdsBox, error) {
		return esds, &BadBoxContentError{Type: TypeESDS, Err: errShortDescriptor}
	}
	if _, ok := readDescriptorHeader(&b, esDescrTag); !ok {
		return fail()
	}
	if !b.Skip(2) || !b.CanRead() {
		return fail()
	}
	flags := b.ReadByte()
	if flags&0x80 != 0 && !b.Skip(2) {
		return fail()
	}
	if flags&0x40 != 0 {
		if !b.CanRead() || !b.Skip(int(b.ReadByte())) {
			return fail()
		}
	}
	if flags&0x20 != 0 && !b.Skip(2) {
		return fail()
	}
	if _, ok := readDescriptorHeader(&b, decoderConfigDescrTag); !ok || !b.CanReadN(13) {
		return fail()
	}
	esds.ObjectTypeIndication = b.ReadByte()
	esds.StreamType = b.ReadByte() >> 2
	b.Skip(3)
	esds.MaxBitrate = b.ReadUint32()
	esds.AvgBitrate = b.ReadUint32()
	size, ok := readDescriptorHeader(&b, decSpecificInfoTag)
	if !ok {
		// decoder specific info is optional
		return esds, nil
	}
	if !b.CanReadN(size) {
		return fail()
	}
	esds.DecoderSpecificInfo = b.ReadN(size)
	return
}

// readDescriptorHeader consumes a tag byte and its expandable size.
func readDescriptorHeader(b *util.Buffer, tag byte) (size int, ok bool) {
	if !b.CanRead() || b.ReadByte() != tag {
		return 0, false
	}
	for i := 0; i < 4; i++ {
		if !b.CanRead() {
			return 0, false
		}
		c := b.ReadByte()
		size = size<<7 | int(c&0x7F)
		if c&0x80 == 0 {
			return size, true
		}
	}
	return size, true
}
