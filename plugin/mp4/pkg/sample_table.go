package mp4

import "sort"

type SampleFlag uint8

const (
	FlagKeyFrame SampleFlag = 1 << iota
	// FlagLastSample marks the final sample of a table.
	FlagLastSample
)

func (f SampleFlag) IsKeyFrame() bool {
	return f&FlagKeyFrame != 0
}

type (
	Sample struct {
		Offset uint64
		Size   uint32
		TimeUs int64
		Flags  SampleFlag
	}
	// GaplessInfo counts samples at the track sample rate to drop from the start and end.
	GaplessInfo struct {
		EncoderDelay   int
		EncoderPadding int
	}
	TrackSampleTable struct {
		Track        *Track
		SampleCount  int
		MaximumSize  uint32
		DurationUs   int64
		Samples      []Sample
		Gapless      *GaplessInfo
		Inconsistent bool
	}
)

func newTrackSampleTable(track *Track, offsets []uint64, sizes []uint32, maximumSize uint32, timestampsUs []int64, flags []SampleFlag, durationUs int64) *TrackSampleTable {
	table := &TrackSampleTable{
		Track:       track,
		SampleCount: len(offsets),
		MaximumSize: maximumSize,
		DurationUs:  durationUs,
		Samples:     make([]Sample, len(offsets)),
	}
	for i := range table.Samples {
		table.Samples[i] = Sample{Offset: offsets[i], Size: sizes[i], TimeUs: timestampsUs[i], Flags: flags[i]}
	}
	if n := len(table.Samples); n > 0 {
		table.Samples[n-1].Flags |= FlagLastSample
	}
	return table
}

// floorIndex returns the last sample with TimeUs <= timeUs, or -1.
func (t *TrackSampleTable) floorIndex(timeUs int64) int {
	return sort.Search(len(t.Samples), func(i int) bool {
		return t.Samples[i].TimeUs > timeUs
	}) - 1
}

// IndexOfEarlierOrEqualSyncSample returns the closest sync sample at or before timeUs, or -1.
func (t *TrackSampleTable) IndexOfEarlierOrEqualSyncSample(timeUs int64) int {
	for i := t.floorIndex(timeUs); i >= 0; i-- {
		if t.Samples[i].Flags.IsKeyFrame() {
			return i
		}
	}
	return -1
}

// IndexOfLaterOrEqualSyncSample returns the closest sync sample at or after timeUs, or -1.
func (t *TrackSampleTable) IndexOfLaterOrEqualSyncSample(timeUs int64) int {
	start := sort.Search(len(t.Samples), func(i int) bool {
		return t.Samples[i].TimeUs >= timeUs
	})
	for i := start; i < len(t.Samples); i++ {
		if t.Samples[i].Flags.IsKeyFrame() {
			return i
		}
	}
	return -1
}

// SampleIndexAt returns the sample playing at timeUs, clamped to the table.
func (t *TrackSampleTable) SampleIndexAt(timeUs int64) int {
	if len(t.Samples) == 0 {
		return -1
	}
	return max(t.floorIndex(timeUs), 0)
}

// SyncSampleCount counts keyframes.
func (t *TrackSampleTable) SyncSampleCount() (n int) {
	for _, s := range t.Samples {
		if s.Flags.IsKeyFrame() {
			n++
		}
	}
	return
}
