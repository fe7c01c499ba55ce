package mp4

import (
	"errors"
	"log/slog"

	. "m7s.live/mp4probe/plugin/mp4/pkg/box"
)

var ErrInconsistentTable = errors.New("inconsistent sample table")

// RawSampleArrays holds per-sample data in decode order with timestamps in track ticks.
type RawSampleArrays struct {
	Offsets      []uint64
	Sizes        []uint32
	Timestamps   []int64
	Flags        []SampleFlag
	MaximumSize  uint32
	Duration     int64
	Inconsistent bool
}

func (raw *RawSampleArrays) Len() int {
	return len(raw.Offsets)
}

// BuildRawSamples co-iterates the stbl tables into flat per-sample arrays.
func BuildRawSamples(stbl *ContainerBox, logger *slog.Logger) (raw *RawSampleArrays, err error) {
	sizeBox := stbl.Leaf(TypeSTSZ)
	if sizeBox == nil {
		if sizeBox = stbl.Leaf(TypeSTZ2); sizeBox == nil {
			return nil, &MissingBoxError{Type: TypeSTSZ, Parent: TypeSTBL}
		}
	}
	sizes, err := NewSampleSizeSource(sizeBox)
	if err != nil {
		return nil, err
	}
	raw = &RawSampleArrays{}
	sampleCount := sizes.SampleCount()
	if sampleCount == 0 {
		return
	}

	offsetBox := stbl.Leaf(TypeSTCO)
	if offsetBox == nil {
		if offsetBox = stbl.Leaf(TypeCO64); offsetBox == nil {
			return nil, &MissingBoxError{Type: TypeSTCO, Parent: TypeSTBL}
		}
	}
	stscBox, err := stbl.RequireLeaf(TypeSTSC)
	if err != nil {
		return nil, err
	}
	sttsBox, err := stbl.RequireLeaf(TypeSTTS)
	if err != nil {
		return nil, err
	}
	chunks, err := NewChunkIterator(stscBox, offsetBox)
	if err != nil {
		return nil, err
	}
	stts, err := NewSttsTable(sttsBox)
	if err != nil {
		return nil, err
	}
	var ctts *CttsTable
	if leaf := stbl.Leaf(TypeCTTS); leaf != nil {
		if ctts, err = NewCttsTable(leaf); err != nil {
			return nil, err
		}
	}
	var stss *StssTable
	if leaf := stbl.Leaf(TypeSTSS); leaf != nil {
		if stss, err = NewStssTable(leaf); err != nil {
			return nil, err
		}
	}

	raw.Offsets = make([]uint64, 0, sampleCount)
	raw.Sizes = make([]uint32, 0, sampleCount)
	raw.Timestamps = make([]int64, 0, sampleCount)
	raw.Flags = make([]SampleFlag, 0, sampleCount)
	var (
		offset           uint64
		remainingInChunk uint32
		decodeTime       int64
		compositionDelta int64
	)
	for i := 0; i < sampleCount; i++ {
		for remainingInChunk == 0 && chunks.MoveNext() {
			offset = chunks.Offset
			remainingInChunk = chunks.NumSamples
		}
		if remainingInChunk == 0 {
			logger.Warn("unexpected end of chunk data", "declared", sampleCount, "built", i)
			break
		}
		if ctts != nil {
			compositionDelta = ctts.Next()
		}
		size := sizes.ReadNextSampleSize()
		raw.MaximumSize = max(raw.MaximumSize, size)
		flag := FlagKeyFrame
		if stss != nil && !stss.IsSync(i) {
			flag = 0
		}
		raw.Offsets = append(raw.Offsets, offset)
		raw.Sizes = append(raw.Sizes, size)
		raw.Timestamps = append(raw.Timestamps, decodeTime+compositionDelta)
		raw.Flags = append(raw.Flags, flag)

		decodeTime += stts.Delta()
		stts.Advance()
		offset += uint64(size)
		remainingInChunk--
	}
	raw.Duration = decodeTime + compositionDelta

	var cttsLeft uint64
	if ctts != nil {
		cttsLeft = ctts.Remaining()
	}
	var stssLeft int
	if stss != nil {
		stssLeft = stss.Remaining()
	}
	stscLeft := chunks.RemainingRuns()
	if remainingInChunk != 0 || stts.Remaining() != 0 || cttsLeft != 0 || stssLeft != 0 || stscLeft != 0 {
		raw.Inconsistent = true
		logger.Warn("inconsistent stbl box",
			"chunk", remainingInChunk, "stts", stts.Remaining(), "ctts", cttsLeft, "stss", stssLeft, "stsc", stscLeft)
	}
	return
}
