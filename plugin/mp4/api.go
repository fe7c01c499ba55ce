package plugin_mp4

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"m7s.live/mp4probe"
	"m7s.live/mp4probe/pkg"
	"m7s.live/mp4probe/pkg/util"
	mp4 "m7s.live/mp4probe/plugin/mp4/pkg"
	"m7s.live/mp4probe/plugin/mp4/pkg/box"
)

const defaultSampleWindow = 100

type (
	BatchRequest struct {
		Paths []string `json:"paths"`
	}
	BatchResult struct {
		Path    string        `json:"path"`
		Summary *MovieSummary `json:"summary,omitempty"`
		Error   string        `json:"error,omitempty"`
	}
	SampleInfo struct {
		Index    int    `json:"index"`
		Offset   uint64 `json:"offset"`
		Size     uint32 `json:"size"`
		TimeUs   int64  `json:"timeUs"`
		KeyFrame bool   `json:"keyFrame"`
	}
	SampleWindow struct {
		Track       uint32       `json:"track"`
		SampleCount int          `json:"sampleCount"`
		Samples     []SampleInfo `json:"samples"`
	}
	SeekResult struct {
		Track     uint32 `json:"track"`
		TimeUs    int64  `json:"timeUs"`
		Index     int    `json:"index"`
		Earlier   int    `json:"earlierSync"`
		Later     int    `json:"laterSync"`
		EarlierUs *int64 `json:"earlierSyncUs,omitempty"`
		LaterUs   *int64 `json:"laterSyncUs,omitempty"`
	}
)

// statusOf maps probe errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, pkg.ErrNotFound), errors.Is(err, pkg.ErrTrackMissing):
		return http.StatusNotFound
	case errors.Is(err, pkg.ErrBadQuery), errors.Is(err, pkg.ErrOutsideRoot), errors.Is(err, pkg.ErrNotFile):
		return http.StatusBadRequest
	case errors.Is(err, mp4.ErrMalformedContainer), errors.Is(err, mp4.ErrMoovTooLarge),
		errors.Is(err, mp4.ErrInconsistentTable), errors.Is(err, box.ErrBadBoxContent),
		errors.Is(err, box.ErrBadBoxExtra), errors.Is(err, box.ErrFlagsNotZero), errors.Is(err, box.ErrMissingBox):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pkg.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusOf(err))
}

func queryTrack(r *http.Request) (uint32, error) {
	id, err := strconv.ParseUint(r.URL.Query().Get("track"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: track: %w", pkg.ErrBadQuery, err)
	}
	return uint32(id), nil
}

func (p *MP4Plugin) API_probe(w http.ResponseWriter, r *http.Request) {
	summary, err := p.Probe(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	mp4probe.WriteJSON(w, summary)
}

// API_batch probes many files in parallel. With ?stream=true every result is
// sent as a server-sent event as soon as it is ready.
func (p *MP4Plugin) API_batch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req BatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %w", pkg.ErrBadQuery, err))
		return
	}
	var sse *util.SSE
	if r.URL.Query().Get("stream") == "true" {
		sse = util.NewSSE(w, r.Context())
	}
	results := p.Batch(r.Context(), req.Paths, func(result BatchResult) {
		if sse != nil {
			if err := sse.WriteEventJSON("probe", result); err != nil {
				p.Debug("batch stream closed", "error", err)
			}
		}
	})
	if sse != nil {
		sse.WriteEvent("done", []byte(strconv.Itoa(len(results))))
		return
	}
	mp4probe.WriteJSON(w, results)
}

// Batch probes paths with at most Concurrency files open at once. Results keep
// the order of paths; onResult, when set, sees them in completion order.
func (p *MP4Plugin) Batch(ctx context.Context, paths []string, onResult func(BatchResult)) []BatchResult {
	opts := p.options()
	results := make([]BatchResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			result := BatchResult{Path: path}
			summary, err := p.probe(gctx, &opts, path)
			if err != nil {
				result.Error = err.Error()
			} else {
				result.Summary = summary
			}
			results[i] = result
			if onResult != nil {
				onResult(result)
			}
			return nil
		})
	}
	g.Wait()
	return results
}

func (p *MP4Plugin) API_samples(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id, err := queryTrack(r)
	if err != nil {
		writeError(w, err)
		return
	}
	window := util.Range[int]{0, defaultSampleWindow - 1}
	if s := query.Get("range"); s != "" {
		if err = window.Resolve(s); err != nil {
			writeError(w, fmt.Errorf("%w: %w", pkg.ErrBadQuery, err))
			return
		}
	}
	pf, err := p.Open(r.Context(), query.Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer pf.Close()
	table, err := pf.Track(id)
	if err != nil {
		writeError(w, err)
		return
	}
	mp4probe.WriteJSON(w, NewSampleWindow(table, window))
}

// NewSampleWindow lists the samples whose indices fall in window, clipped to the table.
func NewSampleWindow(table *mp4.TrackSampleTable, window util.Range[int]) SampleWindow {
	result := SampleWindow{Track: table.Track.ID, SampleCount: table.SampleCount, Samples: []SampleInfo{}}
	if table.SampleCount == 0 || window[0] >= table.SampleCount {
		return result
	}
	from := util.Clamp(window[0], 0, table.SampleCount-1)
	to := util.Clamp(window[1], from, table.SampleCount-1)
	for i := from; i <= to; i++ {
		sample := table.Samples[i]
		result.Samples = append(result.Samples, SampleInfo{
			Index:    i,
			Offset:   sample.Offset,
			Size:     sample.Size,
			TimeUs:   sample.TimeUs,
			KeyFrame: sample.Flags.IsKeyFrame(),
		})
	}
	return result
}

func (p *MP4Plugin) API_seek(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id, err := queryTrack(r)
	if err != nil {
		writeError(w, err)
		return
	}
	timeUs, err := strconv.ParseInt(query.Get("time"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: time: %w", pkg.ErrBadQuery, err))
		return
	}
	pf, err := p.Open(r.Context(), query.Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer pf.Close()
	table, err := pf.Track(id)
	if err != nil {
		writeError(w, err)
		return
	}
	mp4probe.WriteJSON(w, NewSeekResult(table, timeUs))
}

func NewSeekResult(table *mp4.TrackSampleTable, timeUs int64) SeekResult {
	result := SeekResult{
		Track:   table.Track.ID,
		TimeUs:  timeUs,
		Index:   table.SampleIndexAt(timeUs),
		Earlier: table.IndexOfEarlierOrEqualSyncSample(timeUs),
		Later:   table.IndexOfLaterOrEqualSyncSample(timeUs),
	}
	if result.Earlier >= 0 {
		result.EarlierUs = &table.Samples[result.Earlier].TimeUs
	}
	if result.Later >= 0 {
		result.LaterUs = &table.Samples[result.Later].TimeUs
	}
	return result
}

func (p *MP4Plugin) API_history(w http.ResponseWriter, r *http.Request) {
	limit := p.options().historyLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit %q", pkg.ErrBadQuery, s))
			return
		}
		limit = min(n, limit)
	}
	records, err := p.History(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	mp4probe.WriteJSON(w, records)
}

func (p *MP4Plugin) RegisterHandler() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"GET /api/sample/{track}/{index}": p.sampleData,
	}
}

// sampleData streams the bytes of one sample.
func (p *MP4Plugin) sampleData(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("track"), 10, 32)
	if err != nil {
		writeError(w, fmt.Errorf("%w: track: %w", pkg.ErrBadQuery, err))
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: index: %w", pkg.ErrBadQuery, err))
		return
	}
	pf, err := p.Open(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer pf.Close()
	table, err := pf.Track(uint32(id))
	if err != nil {
		writeError(w, err)
		return
	}
	if index < 0 || index >= table.SampleCount {
		writeError(w, fmt.Errorf("%w: sample %d of %d", pkg.ErrNotFound, index, table.SampleCount))
		return
	}
	data, err := pf.ReadSample(table, index)
	if err != nil {
		writeError(w, err)
		return
	}
	sample := table.Samples[index]
	header := w.Header()
	header.Set("Content-Type", "application/octet-stream")
	header.Set("X-Sample-Time-Us", strconv.FormatInt(sample.TimeUs, 10))
	header.Set("X-Sample-Key-Frame", strconv.FormatBool(sample.Flags.IsKeyFrame()))
	w.Write(data)
}
