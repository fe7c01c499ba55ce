package mp4probe

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"m7s.live/mp4probe/pkg"
)

type PluginSummary struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Disabled bool   `json:"disabled"`
}

type Summary struct {
	Version   string            `json:"version"`
	StartTime time.Time         `json:"startTime"`
	Uptime    string            `json:"uptime"`
	Plugins   []PluginSummary   `json:"plugins"`
	Probes    uint64            `json:"probes"`
	Failures  uint64            `json:"failures"`
	CacheHits uint64            `json:"cacheHits"`
	Samples   uint64            `json:"samples"`
	Tracks    map[string]uint64 `json:"tracks"`
}

func (s *Server) registerAPI() {
	s.handle("GET /api/summary", http.HandlerFunc(s.apiSummary))
	s.handle("GET /api/apis", http.HandlerFunc(s.apiAPIs))
	s.handle("GET /api/config", http.HandlerFunc(s.apiGetConfig))
	s.handle("GET /api/config/{name}", http.HandlerFunc(s.apiGetConfig))
	s.handle("POST /api/config/{name}", http.HandlerFunc(s.apiModifyConfig))
}

func WriteJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) apiSummary(w http.ResponseWriter, r *http.Request) {
	summary := Summary{
		Version:   Version,
		StartTime: s.StartTime,
		Uptime:    time.Since(s.StartTime).Truncate(time.Second).String(),
		Probes:    s.Stats.Probes.Load(),
		Failures:  s.Stats.Failures.Load(),
		CacheHits: s.Stats.CacheHits.Load(),
		Samples:   s.Stats.Samples.Load(),
		Tracks:    s.Stats.TrackCounts(),
	}
	for _, p := range s.Plugins {
		summary.Plugins = append(summary.Plugins, PluginSummary{
			Name:     p.Meta.Name,
			Version:  p.Meta.Version,
			Disabled: p.Disabled,
		})
	}
	WriteJSON(w, summary)
}

func (s *Server) apiAPIs(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, s.apiList)
}

func (s *Server) apiGetConfig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" || name == "global" {
		s.configLock.RLock()
		defer s.configLock.RUnlock()
		WriteJSON(w, &s.Config)
		return
	}
	p := s.GetPlugin(name)
	if p == nil {
		http.Error(w, pkg.ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	p.ConfigLock.RLock()
	defer p.ConfigLock.RUnlock()
	WriteJSON(w, &p.Config)
}

// apiModifyConfig takes a yaml (or json) body of changed values.
func (s *Server) apiModifyConfig(w http.ResponseWriter, r *http.Request) {
	p := s.GetPlugin(r.PathValue("name"))
	if p == nil || p.Disabled {
		http.Error(w, pkg.ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var modify map[string]any
	if err = yaml.Unmarshal(body, &modify); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err = p.ModifyConfig(lowerKeys(modify)); err != nil {
		p.Error("modify config", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p.Info("config modified")
	p.ConfigLock.RLock()
	defer p.ConfigLock.RUnlock()
	WriteJSON(w, p.Config.GetMap())
}
