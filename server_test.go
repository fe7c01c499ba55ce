package mp4probe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

type EchoPlugin struct {
	Plugin
	Greeting string `default:"hello"`
	Limit    int    `default:"3"`
	inits    int
}

func (e *EchoPlugin) OnInit() error {
	e.inits++
	return nil
}

func (e *EchoPlugin) API_greet(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, e.Greeting)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer()
	s.Context, s.CancelCauseFunc = context.WithCancelCause(context.Background())
	t.Cleanup(func() { s.Stop(ErrStop) })
	s.Config.Parse(&s.ServerConfig, "MP4PROBE")
	s.Config.ParseUserFile(map[string]any{"settingdir": t.TempDir(), "loglevel": "debug"})
	s.initPrometheus()
	s.registerAPI()
	return s
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServerConfig.HTTP.GetHandler().ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestLoadUserConfig(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		cg, err := loadUserConfig([]byte("global:\n  LogLevel: debug\nMP4:\n  Root: /media\n  Nested:\n    Key: 1\nscalar: 3\n"))
		if err != nil {
			t.Fatal(err)
		}
		if cg["global"]["loglevel"] != "debug" || cg["mp4"]["root"] != "/media" {
			t.Errorf("sections: %v", cg)
		}
		if nested, ok := cg["mp4"]["nested"].(map[string]any); !ok || nested["key"] != 1 {
			t.Errorf("nested keys not lowered: %v", cg["mp4"])
		}
		if _, ok := cg["scalar"]; ok {
			t.Error("scalar section kept")
		}
		if cg, err = loadUserConfig("does-not-exist.yaml"); err != nil || cg != nil {
			t.Errorf("missing file: %v %v", cg, err)
		}
		if _, err = loadUserConfig([]byte("global: [")); err == nil {
			t.Error("bad yaml accepted")
		}
	})
}

func TestPluginInit(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		s := newTestServer(t)
		meta := PluginMeta{Name: "Echo", Type: reflect.TypeOf(EchoPlugin{}), defaultYaml: "limit: 4"}
		meta.Init(s, map[string]any{"greeting": "hi"})
		p := s.GetPlugin("echo")
		if p == nil || p.Disabled {
			t.Fatal("plugin not installed")
		}
		echo := p.handler.(*EchoPlugin)
		if echo.Greeting != "hi" || echo.Limit != 4 || echo.inits != 1 {
			t.Errorf("echo: %+v", echo)
		}
		if p.GetCommonConf().LogLevel != "debug" {
			t.Errorf("log level not inherited: %q", p.GetCommonConf().LogLevel)
		}
		rec := do(s, http.MethodGet, "/echo/api/greet", "")
		if rec.Body.String() != "\"hi\"\n" {
			t.Errorf("greet: %q", rec.Body)
		}

		disabled := PluginMeta{Name: "Off", Type: reflect.TypeOf(EchoPlugin{})}
		disabled.Init(s, map[string]any{"enable": false})
		if off := s.GetPlugin("off"); off == nil || !off.Disabled || off.handler.(*EchoPlugin).inits != 0 {
			t.Error("disabled plugin initialised")
		}
	})
}

func TestModifyConfigAPI(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		s := newTestServer(t)
		meta := PluginMeta{Name: "Echo", Type: reflect.TypeOf(EchoPlugin{})}
		meta.Init(s, nil)
		echo := s.GetPlugin("echo").handler.(*EchoPlugin)
		rec := do(s, http.MethodPost, "/api/config/echo", "Limit: 5")
		if rec.Code != http.StatusOK || echo.Limit != 5 {
			t.Fatalf("modify: %d %q limit %d", rec.Code, rec.Body, echo.Limit)
		}
		path := s.settingPath("echo")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("setting file: %v", err)
		}
		// a modification back to the default value leaves nothing to save
		do(s, http.MethodPost, "/api/config/echo", "limit: 3")
		if echo.Limit != 3 {
			t.Errorf("limit %d", echo.Limit)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("setting file kept: %v", err)
		}
		if rec = do(s, http.MethodPost, "/api/config/nosuch", "a: 1"); rec.Code != http.StatusNotFound {
			t.Errorf("unknown plugin: %d", rec.Code)
		}
		rec = do(s, http.MethodGet, "/api/config/echo", "")
		var conf map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&conf); err != nil {
			t.Fatal(err)
		}
		if conf["greeting"] != "hello" {
			t.Errorf("config: %v", conf)
		}
	})
}

func TestMetrics(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		s := newTestServer(t)
		s.StartTime = time.Now()
		s.Stats.Observe(time.Millisecond, []string{"video", "audio"}, 10, nil)
		s.Stats.Observe(time.Millisecond, nil, 0, os.ErrNotExist)
		body := do(s, http.MethodGet, "/api/metrics", "").Body.String()
		for _, want := range []string{
			`mp4probe_tracks_total{trackType="video"} 1`,
			"mp4probe_samples_total 10",
			"mp4probe_probes_total 2",
			"mp4probe_probe_failures_total 1",
			"mp4probe_probe_duration_seconds_count 2",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("missing %q", want)
			}
		}
		var summary Summary
		if err := json.NewDecoder(do(s, http.MethodGet, "/api/summary", "").Body).Decode(&summary); err != nil {
			t.Fatal(err)
		}
		if summary.Probes != 2 || summary.Tracks["audio"] != 1 {
			t.Errorf("summary: %+v", summary)
		}
	})
}
