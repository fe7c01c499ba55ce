package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors a configuration struct field by field and remembers where
// each value came from. Precedence: modified > env > user file > default yaml > global > default tag.
type Config struct {
	Ptr      reflect.Value
	Modify   any
	Env      any
	File     any
	Global   *Config
	Default  any
	Desc     string `json:"-"`
	name     string
	propsMap map[string]*Config
	props    []*Config
	tag      reflect.StructTag
}

var durationType = reflect.TypeOf(time.Duration(0))

func (config *Config) Get(key string) (v *Config) {
	if config.propsMap == nil {
		config.propsMap = make(map[string]*Config)
	}
	if v, ok := config.propsMap[key]; ok {
		return v
	}
	v = &Config{name: key}
	config.propsMap[key] = v
	config.props = append(config.props, v)
	return v
}

func (config *Config) Has(key string) (ok bool) {
	if config.propsMap == nil {
		return false
	}
	_, ok = config.propsMap[strings.ToLower(key)]
	return ok
}

func (config *Config) MarshalJSON() ([]byte, error) {
	if config.propsMap == nil {
		return json.Marshal(config.GetValue())
	}
	return json.Marshal(config.propsMap)
}

func (config *Config) GetValue() any {
	if !config.Ptr.IsValid() {
		return nil
	}
	return config.Ptr.Interface()
}

// Parse walks the target struct, applying `default` tags and then
// environment variables named by the upper-cased prefix chain.
func (config *Config) Parse(s any, prefix ...string) {
	var t reflect.Type
	var v reflect.Value
	if vv, ok := s.(reflect.Value); ok {
		t, v = vv.Type(), vv
	} else {
		t, v = reflect.TypeOf(s), reflect.ValueOf(s)
	}
	if t.Kind() == reflect.Pointer {
		t, v = t.Elem(), v.Elem()
	}

	config.Ptr = v
	config.Default = v.Interface()
	config.Desc = config.tag.Get("desc")

	if l := len(prefix); l > 0 {
		name := strings.ToLower(prefix[l-1])
		if tag := config.tag.Get("default"); tag != "" {
			v.Set(config.assign(name, tag))
			config.Default = v.Interface()
		}
		if envValue := os.Getenv(strings.Join(prefix, "_")); envValue != "" {
			v.Set(config.assign(name, envValue))
			config.Env = v.Interface()
		}
	}

	if t.Kind() != reflect.Struct || t == durationType {
		return
	}
	for i, j := 0, t.NumField(); i < j; i++ {
		ft, fv := t.Field(i), v.Field(i)
		if !ft.IsExported() {
			continue
		}
		name := strings.ToLower(ft.Name)
		if name == "plugin" {
			continue
		}
		if tag := ft.Tag.Get("yaml"); tag != "" {
			if tag == "-" {
				continue
			}
			name, _, _ = strings.Cut(tag, ",")
		}
		prop := config.Get(name)
		prop.tag = ft.Tag
		prop.Parse(fv, append(prefix, strings.ToUpper(ft.Name))...)
	}
}

// ParseGlobal lets a plugin section inherit values from the engine section.
func (config *Config) ParseGlobal(g *Config) {
	config.Global = g
	if config.propsMap != nil {
		for k, v := range config.propsMap {
			v.ParseGlobal(g.Get(k))
		}
	} else if g.Ptr.IsValid() && config.Env == nil {
		config.Ptr.Set(g.Ptr)
	}
}

// ParseDefaultYaml applies defaults embedded by a plugin at install time.
func (config *Config) ParseDefaultYaml(defaultYaml map[string]any) {
	for k, v := range defaultYaml {
		if !config.Has(k) {
			continue
		}
		if prop := config.Get(k); prop.props != nil {
			if m, ok := v.(map[string]any); ok {
				prop.ParseDefaultYaml(m)
			}
		} else {
			dv := prop.assign(k, v)
			prop.Default = dv.Interface()
			if prop.Env == nil {
				prop.Ptr.Set(dv)
			}
		}
	}
}

// ParseUserFile applies the section of the user's yaml file.
func (config *Config) ParseUserFile(conf map[string]any) {
	if conf == nil {
		return
	}
	config.File = conf
	for k, v := range conf {
		if !config.Has(k) {
			continue
		}
		if prop := config.Get(k); prop.props != nil {
			if m, ok := v.(map[string]any); ok {
				prop.ParseUserFile(m)
			}
		} else {
			fv := prop.assign(k, v)
			prop.File = fv.Interface()
			if prop.Env == nil {
				prop.Ptr.Set(fv)
			}
		}
	}
}

// ParseModifyFile applies runtime modifications. Entries equal to the
// underlying value are removed from conf, so what remains is the real diff.
func (config *Config) ParseModifyFile(conf map[string]any) {
	if conf == nil {
		return
	}
	config.Modify = conf
	for k, v := range conf {
		if !config.Has(k) {
			delete(conf, k)
			continue
		}
		if prop := config.Get(k); prop.props != nil {
			if vmap, ok := v.(map[string]any); ok {
				prop.ParseModifyFile(vmap)
				if len(vmap) == 0 {
					delete(conf, k)
				}
			}
		} else {
			mv := prop.assign(k, v)
			v = mv.Interface()
			vwm := prop.valueWithoutModify()
			if equal(vwm, v) {
				delete(conf, k)
				if prop.Modify != nil {
					prop.Modify = nil
					prop.Ptr.Set(reflect.ValueOf(vwm))
				}
				continue
			}
			prop.Modify = v
			prop.Ptr.Set(mv)
		}
	}
	if len(conf) == 0 {
		config.Modify = nil
	}
}

func (config *Config) valueWithoutModify() any {
	if config.Env != nil {
		return config.Env
	}
	if config.File != nil {
		return config.File
	}
	if config.Global != nil && config.Global.Ptr.IsValid() {
		return config.Global.GetValue()
	}
	return config.Default
}

func equal(vwm, v any) bool {
	switch reflect.TypeOf(vwm).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return reflect.DeepEqual(vwm, v)
	}
	return vwm == v
}

func (config *Config) GetMap() map[string]any {
	m := make(map[string]any)
	for k, v := range config.propsMap {
		if v.props != nil {
			if vv := v.GetMap(); vv != nil {
				m[k] = vv
			}
		} else if v.GetValue() != nil {
			m[k] = v.GetValue()
		}
	}
	if len(m) > 0 {
		return m
	}
	return nil
}

func (config *Config) assign(k string, v any) (target reflect.Value) {
	ft := config.Ptr.Type()
	source := reflect.ValueOf(v)
	switch ft {
	case durationType:
		target = reflect.New(ft).Elem()
		if !source.IsValid() || source.IsZero() {
			target.SetInt(0)
		} else if source.Type() == durationType {
			target.Set(source)
		} else {
			timeStr := fmt.Sprint(v)
			if _, err := strconv.Atoi(timeStr); err == nil {
				slog.Error("duration needs a unit (ms, s, m, h)", "key", k, "value", timeStr)
			} else if d, err := time.ParseDuration(timeStr); err == nil {
				target.SetInt(int64(d))
			} else {
				slog.Error("invalid duration", "key", k, "value", timeStr, "error", err)
			}
		}
	default:
		if ft.Kind() == reflect.String && source.Kind() == reflect.String {
			target = reflect.New(ft).Elem()
			target.SetString(source.String())
			return
		}
		tmpStruct := reflect.StructOf([]reflect.StructField{
			{
				Name: strings.ToUpper(k),
				Type: ft,
				Tag:  reflect.StructTag(fmt.Sprintf(`yaml:"%s"`, k)),
			},
		})
		tmpValue := reflect.New(tmpStruct)
		if v != nil {
			var out []byte
			if vv, ok := v.(string); ok {
				out = []byte(fmt.Sprintf("%s: %s", k, vv))
			} else {
				out, _ = yaml.Marshal(map[string]any{k: v})
			}
			if err := yaml.Unmarshal(out, tmpValue.Interface()); err != nil {
				slog.Error("invalid config value", "key", k, "value", v, "error", err)
			}
		}
		target = tmpValue.Elem().Field(0)
	}
	return
}

// Parse fills target from its default tags and then conf.
func Parse(target any, conf map[string]any) {
	var c Config
	c.Parse(target)
	c.ParseUserFile(conf)
}
