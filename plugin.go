package mp4probe

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"m7s.live/mp4probe/pkg"
	"m7s.live/mp4probe/pkg/config"
)

type DefaultYaml string

type PluginMeta struct {
	Name        string
	Version     string
	Type        reflect.Type
	defaultYaml DefaultYaml
}

// Init builds the plugin instance and layers its configuration:
// default tags, engine values, embedded yaml, user file, saved modifications.
func (plugin *PluginMeta) Init(s *Server, userConfig map[string]any) {
	instance := reflect.New(plugin.Type).Interface().(IPlugin)
	p := reflect.ValueOf(instance).Elem().FieldByName("Plugin").Addr().Interface().(*Plugin)
	p.handler = instance
	p.Meta = plugin
	p.Server = s
	p.DB = s.DB
	handler := s.LogHandler.WithAttrs([]slog.Attr{slog.String("plugin", plugin.Name)}).(*pkg.MultiLogHandler)
	p.Logger = slog.New(handler)
	s.Plugins = append(s.Plugins, p)
	if os.Getenv(strings.ToUpper(plugin.Name)+"_ENABLE") == "false" {
		p.Disabled = true
		p.Warn("disabled by env")
		return
	}
	prefix := []string{"MP4PROBE", strings.ToUpper(plugin.Name)}
	p.Config.Parse(p.GetCommonConf(), prefix...)
	p.Config.Parse(instance, prefix...)
	if p.Config.Has("loglevel") {
		p.Config.Get("loglevel").ParseGlobal(s.Config.Get("loglevel"))
	}
	if plugin.defaultYaml != "" {
		var defaultConf map[string]any
		if err := yaml.Unmarshal([]byte(plugin.defaultYaml), &defaultConf); err != nil {
			p.Error("parsing default config", "error", err)
		} else {
			p.Config.ParseDefaultYaml(defaultConf)
		}
	}
	p.Config.ParseUserFile(userConfig)
	if s.ServerConfig.DisableAll {
		p.Disabled = true
	}
	if userConfig["enable"] == false {
		p.Disabled = true
	} else if userConfig["enable"] == true {
		p.Disabled = false
	}
	if p.Disabled {
		p.Warn("plugin disabled")
		return
	}
	p.assign()
	handler.SetLevel(pkg.ParseLevel(p.config.LogLevel))
	p.Info("init", "version", plugin.Version)
	if err := instance.OnInit(); err != nil {
		p.Error("init failed", "error", err)
		p.Disabled = true
		return
	}
	p.registerHandler()
}

type iPlugin interface {
	nothing()
}

type IPlugin interface {
	OnInit() error
}

type IDisposePlugin interface {
	Dispose()
}

type IRegisterHandler interface {
	RegisterHandler() map[string]http.HandlerFunc
}

var plugins []PluginMeta

// InstallPlugin registers a plugin type. The plugin name is the type name
// without its "Plugin" suffix.
func InstallPlugin[C iPlugin](options ...any) error {
	var c *C
	t := reflect.TypeOf(c).Elem()
	meta := PluginMeta{
		Name: strings.TrimSuffix(t.Name(), "Plugin"),
		Type: t,
	}
	_, pluginFilePath, _, _ := runtime.Caller(1)
	configDir := filepath.Dir(pluginFilePath)
	if _, after, found := strings.Cut(configDir, "@"); found {
		meta.Version = after
	} else {
		meta.Version = Version
	}
	for _, option := range options {
		switch v := option.(type) {
		case DefaultYaml:
			meta.defaultYaml = v
		}
	}
	plugins = append(plugins, meta)
	return nil
}

type Plugin struct {
	Disabled bool
	Meta     *PluginMeta
	config   config.Common
	config.Config
	ConfigLock sync.RWMutex
	handler    IPlugin
	Server     *Server
	DB         *gorm.DB
	*slog.Logger
}

func (Plugin) nothing() {}

func (p *Plugin) GetCommonConf() *config.Common {
	return &p.config
}

func (p *Plugin) AddLogHandler(h slog.Handler) {
	p.Server.AddLogHandler(h)
}

func (p *Plugin) settingPath() string {
	return p.Server.settingPath(p.Meta.Name)
}

// assign applies the modifications saved by a previous ModifyConfig.
func (p *Plugin) assign() {
	f, err := os.Open(p.settingPath())
	if err != nil {
		return
	}
	defer f.Close()
	var modifyConfig map[string]any
	if err = yaml.NewDecoder(f).Decode(&modifyConfig); err != nil {
		p.Error("decode setting file", "path", p.settingPath(), "error", err)
		return
	}
	p.Config.ParseModifyFile(modifyConfig)
}

// ModifyConfig applies conf at runtime and persists the remaining diff.
func (p *Plugin) ModifyConfig(conf map[string]any) error {
	p.ConfigLock.Lock()
	p.Config.ParseModifyFile(conf)
	modify := p.Config.Modify
	p.ConfigLock.Unlock()
	path := p.settingPath()
	if modify == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := yaml.Marshal(modify)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func (p *Plugin) dispose() {
	if d, ok := p.handler.(IDisposePlugin); ok && !p.Disabled {
		d.Dispose()
	}
}

func (p *Plugin) registerHandler() {
	t := reflect.TypeOf(p.handler)
	v := reflect.ValueOf(p.handler)
	for i, j := 0, t.NumMethod(); i < j; i++ {
		name := t.Method(i).Name
		if !strings.HasPrefix(name, "API_") {
			continue
		}
		switch handler := v.Method(i).Interface().(type) {
		case func(http.ResponseWriter, *http.Request):
			pattern := strings.ToLower(strings.ReplaceAll(name, "_", "/"))
			p.handle(pattern, http.HandlerFunc(handler))
		}
	}
	if r, ok := p.handler.(IRegisterHandler); ok {
		for pattern, handler := range r.RegisterHandler() {
			p.handle(pattern, handler)
		}
	}
}

func (p *Plugin) logHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		p.Debug("visit", "path", r.URL.String(), "remote", r.RemoteAddr)
		handler.ServeHTTP(rw, r)
	})
}

func (p *Plugin) handle(pattern string, handler http.Handler) {
	method, path, found := strings.Cut(pattern, " ")
	if !found {
		method, path = "", pattern
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = "/" + strings.ToLower(p.Meta.Name) + path
	if method != "" {
		path = method + " " + path
	}
	p.Debug("http handle added to server", "pattern", path)
	p.Server.handle(path, p.logHandler(handler))
}
