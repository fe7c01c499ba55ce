package box

import "m7s.live/mp4probe/pkg/util"

// SampleSizeSource yields sample sizes in decode order.
type SampleSizeSource interface {
	SampleCount() int
	// FixedSampleSize reports a constant size shared by every sample.
	FixedSampleSize() (uint32, bool)
	ReadNextSampleSize() uint32
}

// aligned(8) class SampleSizeBox extends FullBox('stsz', version = 0, 0) {
// 	unsigned int(32)  sample_size;
// 	unsigned int(32)  sample_count;
// 	if (sample_size==0) {
// 	   for (i=1; i <= sample_count; i++) {
// 		  unsigned int(32)  entry_size;
// 	   }
// 	}
// }

type stszSource struct {
	fixed uint32
	count int
	sizes util.Buffer
	reads int
}

// aligned(8) class CompactSampleSizeBox extends FullBox('stz2', version = 0, 0) {
// 	unsigned int(24)  reserved = 0;
// 	unisgned int(8)   field_size;
// 	unsigned int(32)  sample_count;
// 	for (i=1; i <= sample_count; i++) {
// 	   unsigned int(field_size)   entry_size;
// 	}
// }

type stz2Source struct {
	fieldSize int
	count     int
	sizes     util.Buffer
	calls     int
	cached    byte
	reads     int
}

// NewSampleSizeSource builds the size source for an stsz or stz2 box.
func NewSampleSizeSource(leaf *LeafBox) (SampleSizeSource, error) {
	_, b, err := leaf.FullBox()
	if err != nil {
		return nil, err
	}
	if !b.CanReadN(8) {
		return nil, truncated(leaf.Type)
	}
	switch leaf.Type {
	case TypeSTSZ:
		s := &stszSource{fixed: b.ReadUint32(), count: int(b.ReadUint32())}
		if s.fixed == 0 {
			if s.count > b.Len()/4 {
				return nil, &BadBoxContentError{Type: TypeSTSZ, Reason: "sample count exceeds box"}
			}
			s.sizes = b
		}
		return s, nil
	case TypeSTZ2:
		b.Skip(3)
		s := &stz2Source{fieldSize: int(b.ReadByte()), count: int(b.ReadUint32()), sizes: b}
		switch s.fieldSize {
		case 4, 8, 16:
		default:
			return nil, &BadBoxContentError{Type: TypeSTZ2, Reason: "unsupported field size"}
		}
		if need := (s.count*s.fieldSize + 7) / 8; need > b.Len() {
			return nil, &BadBoxContentError{Type: TypeSTZ2, Reason: "sample count exceeds box"}
		}
		return s, nil
	}
	return nil, &BadBoxContentError{Type: leaf.Type, Reason: "not a sample size box"}
}

func (s *stszSource) SampleCount() int {
	return s.count
}

func (s *stszSource) FixedSampleSize() (uint32, bool) {
	return s.fixed, s.fixed != 0
}

func (s *stszSource) ReadNextSampleSize() uint32 {
	if s.fixed != 0 {
		return s.fixed
	}
	s.reads++
	return s.sizes.ReadUint32()
}

func (s *stz2Source) SampleCount() int {
	return s.count
}

func (s *stz2Source) FixedSampleSize() (uint32, bool) {
	return 0, false
}

func (s *stz2Source) ReadNextSampleSize() (size uint32) {
	switch s.fieldSize {
	case 8:
		s.reads++
		return uint32(s.sizes.ReadByte())
	case 16:
		s.reads++
		return uint32(s.sizes.ReadUint16())
	}
	// two samples per byte, high nibble first
	if s.calls%2 == 0 {
		s.reads++
		s.cached = s.sizes.ReadByte()
		size = uint32(s.cached >> 4)
	} else {
		size = uint32(s.cached & 0x0F)
	}
	s.calls++
	return
}
