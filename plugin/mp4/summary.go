package plugin_mp4

import (
	mp4 "m7s.live/mp4probe/plugin/mp4/pkg"
)

type (
	TrackSummary struct {
		ID               uint32           `json:"id"`
		Type             string           `json:"type"`
		SampleEntry      string           `json:"sampleEntry"`
		Codecs           string           `json:"codecs,omitempty"`
		Timescale        uint32           `json:"timescale"`
		DurationUs       *int64           `json:"durationUs,omitempty"`
		TableDurationUs  int64            `json:"tableDurationUs"`
		SampleCount      int              `json:"sampleCount"`
		SyncSampleCount  int              `json:"syncSampleCount"`
		MaximumSize      uint32           `json:"maximumSize"`
		Width            int              `json:"width,omitempty"`
		Height           int              `json:"height,omitempty"`
		RotationDegrees  int              `json:"rotationDegrees,omitempty"`
		PixelAspectRatio float32          `json:"pixelAspectRatio,omitempty"`
		SampleRate       int              `json:"sampleRate,omitempty"`
		ChannelCount     int              `json:"channelCount,omitempty"`
		Language         string           `json:"language,omitempty"`
		LanguageName     string           `json:"languageName,omitempty"`
		AvgBitrate       uint32           `json:"avgBitrate,omitempty"`
		EditList         *mp4.EditList    `json:"editList,omitempty"`
		Gapless          *mp4.GaplessInfo `json:"gapless,omitempty"`
		HasPreroll       bool             `json:"hasPreroll,omitempty"`
		Inconsistent     bool             `json:"inconsistent,omitempty"`
	}
	MovieSummary struct {
		Path        string          `json:"path"`
		Size        int64           `json:"size"`
		Brand       string          `json:"brand,omitempty"`
		IsQuickTime bool            `json:"isQuickTime,omitempty"`
		Timescale   uint32          `json:"timescale"`
		DurationUs  *int64          `json:"durationUs,omitempty"`
		MdatRanges  []mp4.ByteRange `json:"mdatRanges"`
		Tracks      []TrackSummary  `json:"tracks"`
		Cached      bool            `json:"cached,omitempty"`
	}
)

func knownTime(us int64) *int64 {
	if us == mp4.TimeUnset {
		return nil
	}
	return &us
}

func NewTrackSummary(table *mp4.TrackSampleTable) TrackSummary {
	track := table.Track
	format := &track.Format
	return TrackSummary{
		ID:               track.ID,
		Type:             track.Type.String(),
		SampleEntry:      format.SampleEntry,
		Codecs:           format.Codecs,
		Timescale:        track.Timescale,
		DurationUs:       knownTime(track.DurationUs),
		TableDurationUs:  table.DurationUs,
		SampleCount:      table.SampleCount,
		SyncSampleCount:  table.SyncSampleCount(),
		MaximumSize:      table.MaximumSize,
		Width:            format.Width,
		Height:           format.Height,
		RotationDegrees:  format.RotationDegrees,
		PixelAspectRatio: format.PixelAspectRatio,
		SampleRate:       format.SampleRate,
		ChannelCount:     format.ChannelCount,
		Language:         format.Language,
		LanguageName:     format.LanguageName(),
		AvgBitrate:       format.AvgBitrate,
		EditList:         track.EditList,
		Gapless:          table.Gapless,
		HasPreroll:       format.HasPrerollSamples,
		Inconsistent:     table.Inconsistent,
	}
}

func NewMovieSummary(pf *ProbeFile) *MovieSummary {
	movie := pf.Movie
	summary := &MovieSummary{
		Path:        pf.Path,
		Size:        pf.Info.Size(),
		Brand:       movie.Brand,
		IsQuickTime: movie.IsQuickTime,
		Timescale:   movie.Timescale,
		DurationUs:  knownTime(movie.DurationUs),
		MdatRanges:  pf.MdatRanges,
		Tracks:      make([]TrackSummary, 0, len(movie.Tracks)),
	}
	for _, table := range movie.Tracks {
		summary.Tracks = append(summary.Tracks, NewTrackSummary(table))
	}
	return summary
}
