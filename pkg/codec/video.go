package codec

import "encoding/binary"

type FourCC [4]byte

var (
	FourCC_H264 = FourCC{'a', 'v', 'c', '1'}
	FourCC_AVC3 = FourCC{'a', 'v', 'c', '3'}
	FourCC_H265 = FourCC{'h', 'v', 'c', '1'}
	FourCC_HEV1 = FourCC{'h', 'e', 'v', '1'}
	FourCC_MP4A = FourCC{'m', 'p', '4', 'a'}
	FourCC_OPUS = FourCC{'O', 'p', 'u', 's'}
	FourCC_ALAW = FourCC{'a', 'l', 'a', 'w'}
	FourCC_ULAW = FourCC{'u', 'l', 'a', 'w'}
)

func (f FourCC) String() string {
	return string(f[:])
}

func (f FourCC) Uint32() uint32 {
	return binary.BigEndian.Uint32(f[:])
}

// ColorSpace, ColorRange and ColorTransfer use 0 for "not signalled".
type (
	ColorSpace    int
	ColorRange    int
	ColorTransfer int
)

const (
	ColorSpaceUnset ColorSpace = iota
	ColorSpaceBT709
	ColorSpaceBT601
	ColorSpaceBT2020
)

const (
	ColorRangeUnset ColorRange = iota
	ColorRangeFull
	ColorRangeLimited
)

const (
	ColorTransferUnset ColorTransfer = iota
	ColorTransferSDR
	ColorTransferSRGB
	ColorTransferST2084
	ColorTransferHLG
)

// ColorSpaceFromISO maps ISO/IEC 23001-8 colour_primaries.
func ColorSpaceFromISO(primaries uint32) ColorSpace {
	switch primaries {
	case 1:
		return ColorSpaceBT709
	case 4, 5, 6, 7:
		return ColorSpaceBT601
	case 9:
		return ColorSpaceBT2020
	}
	return ColorSpaceUnset
}

// ColorTransferFromISO maps ISO/IEC 23001-8 transfer_characteristics.
func ColorTransferFromISO(transfer uint32) ColorTransfer {
	switch transfer {
	case 1, 6, 7:
		return ColorTransferSDR
	case 13:
		return ColorTransferSRGB
	case 16:
		return ColorTransferST2084
	case 18:
		return ColorTransferHLG
	}
	return ColorTransferUnset
}

func (c ColorSpace) String() string {
	return [...]string{"", "bt709", "bt601", "bt2020"}[c]
}

func (c ColorRange) String() string {
	return [...]string{"", "full", "limited"}[c]
}

func (c ColorTransfer) String() string {
	return [...]string{"", "sdr", "srgb", "st2084", "hlg"}[c]
}
