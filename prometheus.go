package mp4probe

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusDesc struct {
	Uptime, Probes, Failures, CacheHits, Samples, Tracks *prometheus.Desc
}

func (d *prometheusDesc) init() {
	d.Uptime = prometheus.NewDesc("mp4probe_uptime_seconds", "Seconds since the server started", nil, nil)
	d.Probes = prometheus.NewDesc("mp4probe_probes_total", "Files probed", nil, nil)
	d.Failures = prometheus.NewDesc("mp4probe_probe_failures_total", "Probes that returned an error", nil, nil)
	d.CacheHits = prometheus.NewDesc("mp4probe_cache_hits_total", "Probes answered from the record cache", nil, nil)
	d.Samples = prometheus.NewDesc("mp4probe_samples_total", "Samples indexed across all probes", nil, nil)
	d.Tracks = prometheus.NewDesc("mp4probe_tracks_total", "Tracks indexed by type", []string{"trackType"}, nil)
}

func (s *Server) Describe(ch chan<- *prometheus.Desc) {
	desc := s.prometheusDesc
	ch <- desc.Uptime
	ch <- desc.Probes
	ch <- desc.Failures
	ch <- desc.CacheHits
	ch <- desc.Samples
	ch <- desc.Tracks
}

func (s *Server) Collect(ch chan<- prometheus.Metric) {
	desc := s.prometheusDesc
	if !s.StartTime.IsZero() {
		ch <- prometheus.MustNewConstMetric(desc.Uptime, prometheus.GaugeValue, time.Since(s.StartTime).Seconds())
	}
	ch <- prometheus.MustNewConstMetric(desc.Probes, prometheus.CounterValue, float64(s.Stats.Probes.Load()))
	ch <- prometheus.MustNewConstMetric(desc.Failures, prometheus.CounterValue, float64(s.Stats.Failures.Load()))
	ch <- prometheus.MustNewConstMetric(desc.CacheHits, prometheus.CounterValue, float64(s.Stats.CacheHits.Load()))
	ch <- prometheus.MustNewConstMetric(desc.Samples, prometheus.CounterValue, float64(s.Stats.Samples.Load()))
	for trackType, n := range s.Stats.TrackCounts() {
		ch <- prometheus.MustNewConstMetric(desc.Tracks, prometheus.CounterValue, float64(n), trackType)
	}
}

func (s *Server) initPrometheus() {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(s, s.Stats.Duration, collectors.NewGoCollector())
	s.handle("/api/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

func (s *Server) handle(pattern string, handler http.Handler) {
	s.ServerConfig.HTTP.Handle(pattern, handler)
	s.apiList = append(s.apiList, pattern)
}
