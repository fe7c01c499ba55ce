package codec

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"m7s.live/mp4probe/pkg/util"
)

type H265NALUType byte

func ParseH265NALUType(b byte) H265NALUType {
	return H265NALUType(b & 0x7E >> 1)
}

const (
	NAL_UNIT_VPS H265NALUType = 32
	NAL_UNIT_SPS H265NALUType = 33
	NAL_UNIT_PPS H265NALUType = 34
)

// HEVCDecoderConfigurationRecord is the payload of an hvcC box.
type HEVCDecoderConfigurationRecord struct {
	GeneralProfileSpace              uint8
	GeneralTierFlag                  bool
	GeneralProfileIdc                uint8
	GeneralProfileCompatibilityFlags uint32
	GeneralConstraintIndicatorFlags  [6]byte
	GeneralLevelIdc                  uint8
	NalLengthSize                    int
	Arrays                           map[H265NALUType][][]byte
}

//	aligned(8) class HEVCDecoderConfigurationRecord {
//		unsigned int(8) configurationVersion = 1;
//		unsigned int(2) general_profile_space;
//		unsigned int(1) general_tier_flag;
//		unsigned int(5) general_profile_idc;
//		unsigned int(32) general_profile_compatibility_flags;
//		unsigned int(48) general_constraint_indicator_flags;
//		unsigned int(8) general_level_idc;
//		... 9 bytes of segmentation, chroma, bit depth and frame rate fields
//		bit(2) constantFrameRate;
//		bit(3) numTemporalLayers;
//		bit(1) temporalIdNested;
//		unsigned int(2) lengthSizeMinusOne;
//		unsigned int(8) numOfArrays;
//		for (j=0; j < numOfArrays; j++) {
//			bit(1) array_completeness;
//			unsigned int(1) reserved = 0;
//			unsigned int(6) NAL_unit_type;
//			unsigned int(16) numNalus;
//			for (i=0; i< numNalus; i++) {
//				unsigned int(16) nalUnitLength;
//				bit(8*nalUnitLength) nalUnit;
//			}
//		}
//	}
func ParseHEVCDecoderConfigurationRecord(record []byte) (*HEVCDecoderConfigurationRecord, error) {
	b := util.Buffer(record)
	if !b.CanReadN(23) {
		return nil, ErrShortRecord
	}
	var hvcc HEVCDecoderConfigurationRecord
	b.ReadByte()
	v := b.ReadByte()
	hvcc.GeneralProfileSpace = v >> 6
	hvcc.GeneralTierFlag = v&0x20 != 0
	hvcc.GeneralProfileIdc = v & 0x1F
	hvcc.GeneralProfileCompatibilityFlags = b.ReadUint32()
	copy(hvcc.GeneralConstraintIndicatorFlags[:], b.ReadN(6))
	hvcc.GeneralLevelIdc = b.ReadByte()
	b.Skip(8)
	hvcc.NalLengthSize = int(b.ReadByte()&0x03) + 1
	if hvcc.NalLengthSize == 3 {
		return nil, fmt.Errorf("%w: %d", ErrNalLengthSize, hvcc.NalLengthSize)
	}
	numOfArrays := int(b.ReadByte())
	hvcc.Arrays = make(map[H265NALUType][][]byte, numOfArrays)
	for i := 0; i < numOfArrays; i++ {
		if !b.CanReadN(3) {
			return nil, ErrShortRecord
		}
		typ := H265NALUType(b.ReadByte() & 0x3F)
		sets, err := readParameterSets(&b, int(b.ReadUint16()))
		if err != nil {
			return nil, err
		}
		hvcc.Arrays[typ] = append(hvcc.Arrays[typ], sets...)
	}
	return &hvcc, nil
}

func readParameterSets(b *util.Buffer, count int) (sets [][]byte, err error) {
	for i := 0; i < count; i++ {
		if !b.CanReadN(2) {
			return nil, ErrShortRecord
		}
		size := int(b.ReadUint16())
		if !b.CanReadN(size) {
			return nil, ErrShortRecord
		}
		sets = append(sets, b.ReadN(size))
	}
	return
}

// Codecs builds the ISO/IEC 14496-15 Annex E codecs string.
func (hvcc *HEVCDecoderConfigurationRecord) Codecs(fourcc FourCC) string {
	var sb strings.Builder
	sb.WriteString(fourcc.String())
	sb.WriteByte('.')
	if hvcc.GeneralProfileSpace > 0 {
		sb.WriteByte('A' + hvcc.GeneralProfileSpace - 1)
	}
	fmt.Fprintf(&sb, "%d.%X.", hvcc.GeneralProfileIdc, bits.Reverse32(hvcc.GeneralProfileCompatibilityFlags))
	if hvcc.GeneralTierFlag {
		sb.WriteByte('H')
	} else {
		sb.WriteByte('L')
	}
	fmt.Fprintf(&sb, "%d", hvcc.GeneralLevelIdc)
	last := len(hvcc.GeneralConstraintIndicatorFlags) - 1
	for last >= 0 && hvcc.GeneralConstraintIndicatorFlags[last] == 0 {
		last--
	}
	for _, c := range hvcc.GeneralConstraintIndicatorFlags[:last+1] {
		fmt.Fprintf(&sb, ".%X", c)
	}
	return sb.String()
}

type H265Ctx struct {
	*HEVCDecoderConfigurationRecord
	Record        []byte
	Width, Height int
	fourcc        FourCC
}

// NewH265Ctx parses an hvcC payload. Picture dimensions come from the first SPS.
func NewH265Ctx(fourcc FourCC, record []byte) (*H265Ctx, error) {
	hvcc, err := ParseHEVCDecoderConfigurationRecord(record)
	if err != nil {
		return nil, err
	}
	ctx := &H265Ctx{HEVCDecoderConfigurationRecord: hvcc, Record: record, fourcc: fourcc}
	if spss := hvcc.Arrays[NAL_UNIT_SPS]; len(spss) > 0 {
		var sps h265.SPS
		if err = sps.Unmarshal(spss[0]); err != nil {
			return nil, fmt.Errorf("h265 sps: %w", err)
		}
		ctx.Width, ctx.Height = sps.Width(), sps.Height()
	}
	return ctx, nil
}

func (ctx *H265Ctx) FourCC() FourCC {
	return ctx.fourcc
}

func (ctx *H265Ctx) Codecs() string {
	return ctx.HEVCDecoderConfigurationRecord.Codecs(ctx.fourcc)
}

func (ctx *H265Ctx) GetInfo() string {
	return fmt.Sprintf("codecs: %s, resolution: %dx%d", ctx.Codecs(), ctx.Width, ctx.Height)
}
