package mp4probe

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProbeStats accumulates what the probe plugins report.
type ProbeStats struct {
	Probes, Failures, CacheHits, Samples atomic.Uint64
	Duration                             prometheus.Histogram
	mu                                   sync.Mutex
	tracks                               map[string]uint64
}

func (ps *ProbeStats) init() {
	ps.tracks = make(map[string]uint64)
	ps.Duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mp4probe_probe_duration_seconds",
		Help:    "Time spent reading and indexing one file",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	})
}

// Observe records one finished probe. trackTypes is nil on failure.
func (ps *ProbeStats) Observe(elapsed time.Duration, trackTypes []string, samples int, err error) {
	ps.Probes.Add(1)
	if ps.Duration != nil {
		ps.Duration.Observe(elapsed.Seconds())
	}
	if err != nil {
		ps.Failures.Add(1)
		return
	}
	ps.Samples.Add(uint64(samples))
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.tracks == nil {
		ps.tracks = make(map[string]uint64)
	}
	for _, t := range trackTypes {
		ps.tracks[t]++
	}
}

func (ps *ProbeStats) TrackCounts() map[string]uint64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return maps.Clone(ps.tracks)
}
