package mp4

import (
	"math"
	"sort"

	"m7s.live/mp4probe/pkg/util"
)

// maxGaplessTrimSamples bounds how many samples a gapless trim may cut at each end.
const maxGaplessTrimSamples = 4

// editStrategy returns ok=false when it does not apply and the next one should run.
type editStrategy func(track *Track, raw *RawSampleArrays) (table *TrackSampleTable, ok bool)

var editStrategies = []editStrategy{
	gaplessTrim,
	zeroDurationEdit,
	generalEdit,
}

// ResolveEditList applies the track edit list to raw samples.
func ResolveEditList(track *Track, raw *RawSampleArrays) (table *TrackSampleTable) {
	if track.EditList == nil {
		timestamps := append([]int64(nil), raw.Timestamps...)
		util.ScaleTimestamps(timestamps, microsPerSecond, uint64(track.Timescale))
		durationUs := util.ScaleTimestamp(raw.Duration, microsPerSecond, uint64(track.Timescale))
		table = newTrackSampleTable(track, raw.Offsets, raw.Sizes, raw.MaximumSize, timestamps, raw.Flags, durationUs)
	} else {
		for _, strategy := range editStrategies {
			var ok bool
			if table, ok = strategy(track, raw); ok {
				break
			}
		}
	}
	table.Inconsistent = raw.Inconsistent
	return
}

// gaplessTrim handles a single audio edit that only trims encoder delay and padding.
func gaplessTrim(track *Track, raw *RawSampleArrays) (*TrackSampleTable, bool) {
	edits := track.EditList
	n := raw.Len()
	if track.Type != TrackTypeAudio || len(edits.Durations) != 1 || n < 2 || track.Format.SampleRate <= 0 {
		return nil, false
	}
	ts := raw.Timestamps
	editStart := edits.MediaTimes[0]
	editEnd := editStart + util.ScaleTimestamp(int64(edits.Durations[0]), uint64(track.Timescale), uint64(track.MovieTimescale))
	latestDelayIndex := util.Clamp(maxGaplessTrimSamples, 0, n-1)
	earliestPaddingIndex := util.Clamp(n-maxGaplessTrimSamples, 0, n-1)
	if !(ts[0] <= editStart && editStart < ts[latestDelayIndex] &&
		ts[earliestPaddingIndex] < editEnd && editEnd <= raw.Duration) {
		return nil, false
	}
	sampleRate := uint64(track.Format.SampleRate)
	delay := util.ScaleTimestamp(editStart-ts[0], sampleRate, uint64(track.Timescale))
	padding := util.ScaleTimestamp(raw.Duration-editEnd, sampleRate, uint64(track.Timescale))
	if (delay == 0 && padding == 0) || delay > math.MaxInt32 || padding > math.MaxInt32 {
		return nil, false
	}
	timestamps := append([]int64(nil), ts...)
	util.ScaleTimestamps(timestamps, microsPerSecond, uint64(track.Timescale))
	durationUs := util.ScaleTimestamp(int64(edits.Durations[0]), microsPerSecond, uint64(track.MovieTimescale))
	table := newTrackSampleTable(track, raw.Offsets, raw.Sizes, raw.MaximumSize, timestamps, raw.Flags, durationUs)
	table.Gapless = &GaplessInfo{EncoderDelay: int(delay), EncoderPadding: int(padding)}
	return table, true
}

// zeroDurationEdit keeps every sample and shifts the timeline to the edit's media time.
func zeroDurationEdit(track *Track, raw *RawSampleArrays) (*TrackSampleTable, bool) {
	edits := track.EditList
	if len(edits.Durations) != 1 || edits.Durations[0] != 0 {
		return nil, false
	}
	start := edits.MediaTimes[0]
	timestamps := make([]int64, raw.Len())
	for i, ts := range raw.Timestamps {
		timestamps[i] = util.ScaleTimestamp(ts-start, microsPerSecond, uint64(track.Timescale))
	}
	durationUs := util.ScaleTimestamp(raw.Duration-start, microsPerSecond, uint64(track.Timescale))
	return newTrackSampleTable(track, raw.Offsets, raw.Sizes, raw.MaximumSize, timestamps, raw.Flags, durationUs), true
}

type segmentRange struct {
	edit       int
	start, end int // sample indices, end exclusive
}

// segmentRanges finds the samples each non-empty edit covers. Every range starts on a
// keyframe when the segment has one.
func segmentRanges(track *Track, raw *RawSampleArrays) (ranges []segmentRange) {
	edits := track.EditList
	ts := raw.Timestamps
	n := raw.Len()
	// audio drops samples that would only start at the segment end
	omitZeroDuration := track.Type == TrackTypeAudio
	for i, mediaTime := range edits.MediaTimes {
		if mediaTime == -1 {
			continue
		}
		segEnd := mediaTime + util.ScaleTimestamp(int64(edits.Durations[i]), uint64(track.Timescale), uint64(track.MovieTimescale))
		start := sort.Search(n, func(j int) bool { return ts[j] >= mediaTime })
		// a sample that begins before the segment but is still playing at its start belongs to it
		if start == n || ts[start] > mediaTime {
			start = max(start-1, 0)
		}
		end := sort.Search(n, func(j int) bool {
			if omitZeroDuration {
				return ts[j] >= segEnd
			}
			return ts[j] > segEnd
		})
		first := start
		for start >= 0 && start < n && !raw.Flags[start].IsKeyFrame() {
			start--
		}
		if start < 0 || start >= n {
			start = first
			for start < end && !raw.Flags[start].IsKeyFrame() {
				start++
			}
		}
		if track.Type == TrackTypeVideo && start != end {
			// tolerate reordered samples just past the boundary
			for end < n-1 && ts[end+1] <= segEnd {
				end++
			}
		}
		ranges = append(ranges, segmentRange{edit: i, start: start, end: max(start, end)})
	}
	return
}

// generalEdit concatenates the samples of every segment onto the presentation timeline.
func generalEdit(track *Track, raw *RawSampleArrays) (*TrackSampleTable, bool) {
	edits := track.EditList
	ranges := segmentRanges(track, raw)
	editedCount := 0
	copyMetadata := false
	nextSampleIndex := 0
	for _, r := range ranges {
		editedCount += r.end - r.start
		copyMetadata = copyMetadata || nextSampleIndex != r.start
		nextSampleIndex = r.end
	}
	copyMetadata = copyMetadata || editedCount != raw.Len()

	offsets, sizes, flags := raw.Offsets, raw.Sizes, raw.Flags
	maximumSize := raw.MaximumSize
	if copyMetadata {
		offsets = make([]uint64, 0, editedCount)
		sizes = make([]uint32, 0, editedCount)
		flags = make([]SampleFlag, 0, editedCount)
		maximumSize = 0
		for _, r := range ranges {
			offsets = append(offsets, raw.Offsets[r.start:r.end]...)
			sizes = append(sizes, raw.Sizes[r.start:r.end]...)
			flags = append(flags, raw.Flags[r.start:r.end]...)
			for _, size := range raw.Sizes[r.start:r.end] {
				maximumSize = max(maximumSize, size)
			}
		}
	}

	timestamps := make([]int64, 0, editedCount)
	hasPreroll := false
	var pts uint64 // movie ticks of the segments already placed
	next := 0
	for i, duration := range edits.Durations {
		if next < len(ranges) && ranges[next].edit == i {
			r := ranges[next]
			mediaTime := edits.MediaTimes[i]
			ptsUs := util.ScaleTimestamp(int64(pts), microsPerSecond, uint64(track.MovieTimescale))
			for _, ts := range raw.Timestamps[r.start:r.end] {
				timeInSegmentUs := util.ScaleTimestamp(ts-mediaTime, microsPerSecond, uint64(track.Timescale))
				if timeInSegmentUs < 0 {
					hasPreroll = true
				}
				timestamps = append(timestamps, ptsUs+timeInSegmentUs)
			}
			next++
		}
		pts += duration
	}
	durationUs := util.ScaleTimestamp(int64(pts), microsPerSecond, uint64(track.MovieTimescale))
	if hasPreroll {
		prerolled := *track
		prerolled.Format.HasPrerollSamples = true
		track = &prerolled
	}
	return newTrackSampleTable(track, offsets, sizes, maximumSize, timestamps, flags, durationUs), true
}
