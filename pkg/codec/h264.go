package codec

import (
	"errors"
	"fmt"

	"github.com/deepch/vdk/codec/h264parser"

	"m7s.live/mp4probe/pkg/util"
)

type H264NALUType byte

func ParseH264NALUType(b byte) H264NALUType {
	return H264NALUType(b & 0x1F)
}

const (
	NALU_Non_IDR_Picture H264NALUType = 1
	NALU_IDR_Picture     H264NALUType = 5
	NALU_SEI             H264NALUType = 6
	NALU_SPS             H264NALUType = 7
	NALU_PPS             H264NALUType = 8
)

var (
	ErrNalLengthSize = errors.New("unsupported nal length size")
	ErrShortRecord   = errors.New("decoder configuration record truncated")
	ErrNotSPS        = errors.New("nal unit is not a sequence parameter set")
)

const extendedSAR = 255

// Table E-1, indexed by aspect_ratio_idc. Entry 0 is unspecified and treated as square.
var aspectRatioIdcValues = [17]float32{
	1, 1, 12. / 11, 10. / 11, 16. / 11, 40. / 33, 24. / 11, 20. / 11, 32. / 11,
	80. / 33, 18. / 11, 15. / 11, 64. / 33, 160. / 99, 4. / 3, 3. / 2, 2,
}

// SpsData holds the fields of an H.264 sequence parameter set that matter to a demuxer.
type SpsData struct {
	ProfileIdc          uint8
	ConstraintFlags     uint8
	LevelIdc            uint8
	SeqParameterSetID   uint32
	ChromaFormatIdc     uint32
	Width, Height       int
	BitDepthLuma        int
	BitDepthChroma      int
	PixelAspectRatio    float32
	FrameNumLength      int
	PicOrderCountType   uint32
	FrameMbsOnly        bool
	ColorSpace          ColorSpace
	ColorRange          ColorRange
	ColorTransfer       ColorTransfer
	MaxNumReorderFrames uint32
}

// Codecs returns the RFC 6381 codecs string, e.g. avc1.64001F.
func (sps *SpsData) Codecs() string {
	return fmt.Sprintf("avc1.%02X%02X%02X", sps.ProfileIdc, sps.ConstraintFlags, sps.LevelIdc)
}

func isHighProfile(profileIdc uint8) bool {
	switch profileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138:
		return true
	}
	return false
}

// ParseSPS decodes an SPS NAL unit, header byte included.
func ParseSPS(nalu []byte) (*SpsData, error) {
	if len(nalu) < 2 {
		return nil, ErrShortRecord
	}
	if ParseH264NALUType(nalu[0]) != NALU_SPS {
		return nil, ErrNotSPS
	}
	r := util.NewBitCursor(nalu, 1, len(nalu))
	sps := &SpsData{
		ChromaFormatIdc:  1,
		BitDepthLuma:     8,
		BitDepthChroma:   8,
		PixelAspectRatio: 1,
	}
	sps.ProfileIdc = uint8(r.ReadBits(8))
	sps.ConstraintFlags = uint8(r.ReadBits(8))
	sps.LevelIdc = uint8(r.ReadBits(8))
	sps.SeqParameterSetID = r.ReadUE()

	separateColourPlane := false
	if isHighProfile(sps.ProfileIdc) {
		sps.ChromaFormatIdc = r.ReadUE()
		if sps.ChromaFormatIdc == 3 {
			separateColourPlane = r.ReadBit()
		}
		sps.BitDepthLuma = int(r.ReadUE()) + 8
		sps.BitDepthChroma = int(r.ReadUE()) + 8
		r.SkipBit() // qpprime_y_zero_transform_bypass_flag
		if r.ReadBit() { // seq_scaling_matrix_present_flag
			limit := 8
			if sps.ChromaFormatIdc == 3 {
				limit = 12
			}
			for i := 0; i < limit; i++ {
				if r.ReadBit() {
					size := 64
					if i < 6 {
						size = 16
					}
					skipScalingList(r, size)
				}
			}
		}
	}
	sps.FrameNumLength = int(r.ReadUE()) + 4
	sps.PicOrderCountType = r.ReadUE()
	switch sps.PicOrderCountType {
	case 0:
		r.ReadUE() // log2_max_pic_order_cnt_lsb_minus4
	case 1:
		r.SkipBit() // delta_pic_order_always_zero_flag
		r.ReadSE()  // offset_for_non_ref_pic
		r.ReadSE()  // offset_for_top_to_bottom_field
		n := r.ReadUE()
		for i := uint32(0); i < n && r.Err() == nil; i++ {
			r.ReadSE() // offset_for_ref_frame
		}
	}
	r.ReadUE()  // max_num_ref_frames
	r.SkipBit() // gaps_in_frame_num_value_allowed_flag
	picWidthInMbs := int(r.ReadUE()) + 1
	picHeightInMapUnits := int(r.ReadUE()) + 1
	sps.FrameMbsOnly = r.ReadBit()
	frameMbsOnly := 0
	if sps.FrameMbsOnly {
		frameMbsOnly = 1
	} else {
		r.SkipBit() // mb_adaptive_frame_field_flag
	}
	r.SkipBit() // direct_8x8_inference_flag
	sps.Width = picWidthInMbs * 16
	sps.Height = (2 - frameMbsOnly) * picHeightInMapUnits * 16
	if r.ReadBit() { // frame_cropping_flag
		left, right := int(r.ReadUE()), int(r.ReadUE())
		top, bottom := int(r.ReadUE()), int(r.ReadUE())
		var cropUnitX, cropUnitY int
		if chromaArrayType := sps.ChromaFormatIdc; chromaArrayType == 0 || separateColourPlane {
			cropUnitX, cropUnitY = 1, 2-frameMbsOnly
		} else {
			subWidthC, subHeightC := 2, 1
			if chromaArrayType == 3 {
				subWidthC = 1
			}
			if chromaArrayType == 1 {
				subHeightC = 2
			}
			cropUnitX, cropUnitY = subWidthC, subHeightC*(2-frameMbsOnly)
		}
		sps.Width -= (left + right) * cropUnitX
		sps.Height -= (top + bottom) * cropUnitY
	}

	// E.2.1: MaxDpbFrames is approximated by its ceiling of 16.
	sps.MaxNumReorderFrames = 16
	switch sps.ProfileIdc {
	case 44, 86, 100, 110, 122, 244:
		if sps.ConstraintFlags&0x10 != 0 {
			sps.MaxNumReorderFrames = 0
		}
	}
	if r.ReadBit() { // vui_parameters_present_flag
		parseVUI(r, sps)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("sps: %w", err)
	}
	return sps, nil
}

func skipScalingList(r *util.BitCursor, size int) {
	lastScale, nextScale := int32(8), int32(8)
	for i := 0; i < size && r.Err() == nil; i++ {
		if nextScale != 0 {
			deltaScale := r.ReadSE()
			nextScale = (lastScale + deltaScale + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
}

func parseVUI(r *util.BitCursor, sps *SpsData) {
	if r.ReadBit() { // aspect_ratio_info_present_flag
		aspectRatioIdc := r.ReadBits(8)
		if aspectRatioIdc == extendedSAR {
			sarWidth, sarHeight := r.ReadBits(16), r.ReadBits(16)
			if sarWidth != 0 && sarHeight != 0 {
				sps.PixelAspectRatio = float32(sarWidth) / float32(sarHeight)
			}
		} else if int(aspectRatioIdc) < len(aspectRatioIdcValues) {
			sps.PixelAspectRatio = aspectRatioIdcValues[aspectRatioIdc]
		}
	}
	if r.ReadBit() { // overscan_info_present_flag
		r.SkipBit()
	}
	if r.ReadBit() { // video_signal_type_present_flag
		r.SkipBits(3) // video_format
		if r.ReadBit() {
			sps.ColorRange = ColorRangeFull
		} else {
			sps.ColorRange = ColorRangeLimited
		}
		if r.ReadBit() { // colour_description_present_flag
			primaries := r.ReadBits(8)
			transfer := r.ReadBits(8)
			r.SkipBits(8) // matrix_coefficients
			sps.ColorSpace = ColorSpaceFromISO(primaries)
			sps.ColorTransfer = ColorTransferFromISO(transfer)
		}
	}
	if r.ReadBit() { // chroma_loc_info_present_flag
		r.ReadUE()
		r.ReadUE()
	}
	if r.ReadBit() { // timing_info_present_flag
		r.SkipBits(32) // num_units_in_tick
		r.SkipBits(32) // time_scale
		r.SkipBit()    // fixed_frame_rate_flag
	}
	nalHrd := r.ReadBit()
	if nalHrd {
		skipHRD(r)
	}
	vclHrd := r.ReadBit()
	if vclHrd {
		skipHRD(r)
	}
	if nalHrd || vclHrd {
		r.SkipBit() // low_delay_hrd_flag
	}
	r.SkipBit() // pic_struct_present_flag
	if r.ReadBit() { // bitstream_restriction_flag
		r.SkipBit() // motion_vectors_over_pic_boundaries_flag
		r.ReadUE()  // max_bytes_per_pic_denom
		r.ReadUE()  // max_bits_per_mb_denom
		r.ReadUE()  // log2_max_mv_length_horizontal
		r.ReadUE()  // log2_max_mv_length_vertical
		sps.MaxNumReorderFrames = r.ReadUE()
		r.ReadUE() // max_dec_frame_buffering
	}
}

func skipHRD(r *util.BitCursor) {
	cpbCount := r.ReadUE() + 1
	r.SkipBits(8) // bit_rate_scale, cpb_size_scale
	for i := uint32(0); i < cpbCount && r.Err() == nil; i++ {
		r.ReadUE()  // bit_rate_value_minus1
		r.ReadUE()  // cpb_size_value_minus1
		r.SkipBit() // cbr_flag
	}
	r.SkipBits(20) // four 5-bit length fields
}

// AVCDecoderConfigurationRecord is the payload of an avcC box.
type AVCDecoderConfigurationRecord struct {
	h264parser.AVCDecoderConfRecord
	NalLengthSize int
}

//	aligned(8) class AVCDecoderConfigurationRecord {
//		unsigned int(8) configurationVersion = 1;
//		unsigned int(8) AVCProfileIndication;
//		unsigned int(8) profile_compatibility;
//		unsigned int(8) AVCLevelIndication;
//		bit(6) reserved = '111111'b;
//		unsigned int(2) lengthSizeMinusOne;
//		bit(3) reserved = '111'b;
//		unsigned int(5) numOfSequenceParameterSets;
//		...
//	}
func ParseAVCDecoderConfigurationRecord(record []byte) (*AVCDecoderConfigurationRecord, error) {
	var avcc AVCDecoderConfigurationRecord
	if _, err := avcc.Unmarshal(record); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShortRecord, err)
	}
	// a 3-byte length field has no sample layout
	avcc.NalLengthSize = int(avcc.LengthSizeMinusOne) + 1
	if avcc.NalLengthSize == 3 {
		return nil, fmt.Errorf("%w: %d", ErrNalLengthSize, avcc.NalLengthSize)
	}
	return &avcc, nil
}

type H264Ctx struct {
	*AVCDecoderConfigurationRecord
	Record []byte
	SPS    *SpsData
}

// NewH264Ctx parses an avcC payload and its first SPS.
func NewH264Ctx(record []byte) (*H264Ctx, error) {
	avcc, err := ParseAVCDecoderConfigurationRecord(record)
	if err != nil {
		return nil, err
	}
	ctx := &H264Ctx{AVCDecoderConfigurationRecord: avcc, Record: record}
	if len(avcc.SPS) > 0 {
		if ctx.SPS, err = ParseSPS(avcc.SPS[0]); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

func (*H264Ctx) FourCC() FourCC {
	return FourCC_H264
}

func (ctx *H264Ctx) Codecs() string {
	if ctx.SPS != nil {
		return ctx.SPS.Codecs()
	}
	return fmt.Sprintf("avc1.%02X%02X%02X", ctx.AVCProfileIndication, ctx.ProfileCompatibility, ctx.AVCLevelIndication)
}

func (ctx *H264Ctx) GetInfo() string {
	if ctx.SPS == nil {
		return "codecs: " + ctx.Codecs()
	}
	return fmt.Sprintf("codecs: %s, resolution: %dx%d", ctx.Codecs(), ctx.SPS.Width, ctx.SPS.Height)
}
