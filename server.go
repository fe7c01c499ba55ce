package mp4probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/phsym/console-slog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"m7s.live/mp4probe/pkg"
	"m7s.live/mp4probe/pkg/config"
	"m7s.live/mp4probe/pkg/db"
)

var Version = "v0.1.0"

var ErrStop = errors.New("stop")

type Server struct {
	StartTime time.Time
	context.Context
	context.CancelCauseFunc
	*slog.Logger
	LogHandler     *pkg.MultiLogHandler
	ServerConfig   config.Engine
	Config         config.Config
	DB             *gorm.DB
	Plugins        []*Plugin
	Stats          ProbeStats
	registry       *prometheus.Registry
	prometheusDesc prometheusDesc
	apiList        []string
	configLock     sync.RWMutex
}

func NewServer() *Server {
	s := &Server{}
	s.prometheusDesc.init()
	s.Stats.init()
	s.LogHandler = pkg.NewMultiLogHandler(slog.LevelInfo, console.NewHandler(os.Stdout, &console.HandlerOptions{
		Level:      pkg.TraceLevel,
		TimeFormat: "2006-01-02 15:04:05.000",
	}))
	s.Logger = slog.New(s.LogHandler)
	return s
}

// Run loads conf (a file path, raw yaml bytes or a decoded map), starts the
// plugins and serves HTTP until ctx is done or Stop is called.
func Run(ctx context.Context, conf any) error {
	return NewServer().Run(ctx, conf)
}

func (s *Server) Run(ctx context.Context, conf any) (err error) {
	s.StartTime = time.Now()
	s.Context, s.CancelCauseFunc = context.WithCancelCause(ctx)
	defer s.CancelCauseFunc(ErrStop)
	var cg map[string]map[string]any
	if cg, err = loadUserConfig(conf); err != nil {
		return
	}
	s.Config.Parse(&s.ServerConfig, "MP4PROBE")
	if engineConf, ok := cg["global"]; ok {
		s.Config.ParseUserFile(engineConf)
	}
	s.LogHandler.SetLevel(pkg.ParseLevel(s.ServerConfig.LogLevel))
	s.Info("start", "version", Version)
	s.openDB()
	s.initPrometheus()
	s.registerAPI()
	for i := range plugins {
		plugins[i].Init(s, cg[strings.ToLower(plugins[i].Name)])
	}
	g, gctx := errgroup.WithContext(s.Context)
	g.Go(func() error {
		return s.ServerConfig.HTTP.Serve(gctx, s.Logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		for _, p := range s.Plugins {
			p.dispose()
		}
		return nil
	})
	err = g.Wait()
	s.Warn("server is done", "reason", context.Cause(s))
	if s.DB != nil {
		if sqlDB, e := s.DB.DB(); e == nil {
			sqlDB.Close()
		}
	}
	return
}

func (s *Server) Stop(err error) {
	if s.CancelCauseFunc != nil {
		s.CancelCauseFunc(err)
	}
}

func (s *Server) AddLogHandler(h slog.Handler) {
	s.LogHandler.Add(h)
}

func (s *Server) RemoveLogHandler(h slog.Handler) {
	s.LogHandler.Remove(h)
}

func (s *Server) GetPlugin(name string) *Plugin {
	for _, p := range s.Plugins {
		if strings.EqualFold(p.Meta.Name, name) {
			return p
		}
	}
	return nil
}

func (s *Server) openDB() {
	dbConf := s.ServerConfig.DB
	if dbConf.DBType == "" {
		return
	}
	var err error
	s.DB, err = db.Open(dbConf.DBType, dbConf.DSN, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		s.Error("open db", "type", dbConf.DBType, "dsn", dbConf.DSN, "error", err)
		s.DB = nil
		return
	}
	s.Info("db opened", "type", dbConf.DBType, "dsn", dbConf.DSN)
}

func (s *Server) settingPath(name string) string {
	return filepath.Join(s.ServerConfig.SettingDir, strings.ToLower(name)+".yaml")
}

// loadUserConfig splits the user file into sections. The "global" section
// configures the engine and every other key names a plugin.
func loadUserConfig(conf any) (cg map[string]map[string]any, err error) {
	var raw []byte
	switch v := conf.(type) {
	case nil:
		return nil, nil
	case string:
		if raw, err = os.ReadFile(v); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("read config %s: %w", v, err)
		}
	case []byte:
		raw = v
	case map[string]map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported config type %T", conf)
	}
	var all map[string]any
	if err = yaml.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cg = make(map[string]map[string]any, len(all))
	for k, v := range all {
		if m, ok := v.(map[string]any); ok {
			cg[strings.ToLower(k)] = lowerKeys(m)
		}
	}
	return
}

func lowerKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			v = lowerKeys(sub)
		}
		out[strings.ToLower(k)] = v
	}
	return out
}
