package mp4

import (
	"errors"
	"fmt"
	"log/slog"

	"m7s.live/mp4probe/pkg/util"
	. "m7s.live/mp4probe/plugin/mp4/pkg/box"
)

var ErrMalformedContainer = errors.New("unsupported or malformed container")

// a missing box of these types fails the whole file
var structuralBoxes = map[BoxType]bool{
	TypeMOOV: true,
	TypeMVHD: true,
	TypeMDIA: true,
	TypeMINF: true,
	TypeSTBL: true,
	TypeSTSD: true,
}

type Movie struct {
	Timescale   uint32
	DurationUs  int64
	Brand       string
	IsQuickTime bool
	Tracks      []*TrackSampleTable
}

func isStructural(err error) bool {
	var missing *MissingBoxError
	return errors.As(err, &missing) && structuralBoxes[missing.Type]
}

// ParseMovie builds a sample table for every playable track in moov.
// Tracks that fail to parse are left out; a missing structural box fails the whole movie.
func ParseMovie(moov *ContainerBox, ftyp *FileTypeBox, opts ParseOptions, logger *slog.Logger) (movie *Movie, err error) {
	movie = &Movie{DurationUs: TimeUnset}
	if ftyp != nil {
		movie.Brand = ftyp.MajorBrand.String()
		movie.IsQuickTime = ftyp.IsQuickTime()
	}
	mvhdBox, err := moov.RequireLeaf(TypeMVHD)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedContainer, err)
	}
	if opts.Strict {
		if err = mvhdBox.CheckZeroFlags(); err != nil {
			return nil, err
		}
	}
	mvhd, err := ParseMvhd(mvhdBox)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedContainer, err)
	}
	movie.Timescale = mvhd.Timescale
	if !mvhd.DurationUnset && mvhd.Duration > 0 {
		movie.DurationUs = util.ScaleTimestamp(int64(mvhd.Duration), microsPerSecond, uint64(mvhd.Timescale))
	}
	for i, trak := range moov.Containers(TypeTRAK) {
		trakLogger := logger.With("trak", i)
		var track *Track
		if track, err = BuildTrack(trak, mvhd, movie.IsQuickTime, opts); err != nil {
			if isStructural(err) {
				return nil, fmt.Errorf("%w: %w", ErrMalformedContainer, err)
			}
			trakLogger.Warn("skip track", "error", err)
			continue
		}
		if track == nil {
			trakLogger.Debug("skip track with unsupported handler")
			continue
		}
		trakLogger = trakLogger.With("track", track.ID, "type", track.Type)
		var table *TrackSampleTable
		if table, err = BuildSampleTable(track, opts, trakLogger); err != nil {
			if isStructural(err) {
				return nil, fmt.Errorf("%w: %w", ErrMalformedContainer, err)
			}
			trakLogger.Warn("skip track", "error", err)
			continue
		}
		if table.SampleCount == 0 {
			trakLogger.Debug("skip track without samples")
			continue
		}
		trakLogger.Debug("track parsed", "samples", table.SampleCount, "durationUs", table.DurationUs, "codecs", track.Format.Codecs)
		movie.Tracks = append(movie.Tracks, table)
	}
	err = nil
	if movie.DurationUs == TimeUnset {
		for _, table := range movie.Tracks {
			movie.DurationUs = max(movie.DurationUs, table.DurationUs)
		}
	}
	return
}

// BuildSampleTable runs the stbl tables and the edit list of one track.
func BuildSampleTable(track *Track, opts ParseOptions, logger *slog.Logger) (*TrackSampleTable, error) {
	raw, err := BuildRawSamples(track.stbl, logger)
	if err != nil {
		return nil, err
	}
	if raw.Inconsistent && opts.Strict {
		return nil, ErrInconsistentTable
	}
	return ResolveEditList(track, raw), nil
}
