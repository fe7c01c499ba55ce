package config

// Common holds the settings every plugin carries. Values left unset in a
// plugin section fall back to the engine section.
type Common struct {
	LogLevel string `default:"info" desc:"log level: trace, debug, info, warn, error"`
}

type Engine struct {
	LogLevel   string `default:"info" desc:"log level: trace, debug, info, warn, error"`
	SettingDir string `default:".mp4probe" desc:"directory holding runtime modified settings"`
	DisableAll bool   `desc:"disable every plugin unless enabled explicitly"`
	HTTP       HTTP
	DB         DB
}

type ICommonConf interface {
	GetCommonConf() *Common
}
