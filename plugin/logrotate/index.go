package plugin_logrotate

import (
	"io"
	"log/slog"

	"github.com/alchemy/rotoslog"
	"github.com/phsym/console-slog"

	"m7s.live/mp4probe"
	"m7s.live/mp4probe/pkg"
)

type LogRotatePlugin struct {
	mp4probe.Plugin
	Path      string `default:"./logs" desc:"log directory"`
	Size      uint64 `default:"1048576" desc:"rotate after this many bytes"`
	Formatter string `default:"2006-01-02T15" desc:"log file name layout"`
	MaxFiles  uint64 `default:"7" desc:"rotated files kept"`
	Level     string `default:"info" desc:"level written to the files"`
	handler   slog.Handler
}

var _ = mp4probe.InstallPlugin[LogRotatePlugin]()

func (config *LogRotatePlugin) OnInit() (err error) {
	builder := func(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
		return console.NewHandler(w, &console.HandlerOptions{NoColor: true, Level: pkg.ParseLevel(config.Level), TimeFormat: "2006-01-02 15:04:05.000"})
	}
	config.handler, err = rotoslog.NewHandler(rotoslog.LogHandlerBuilder(builder), rotoslog.LogDir(config.Path), rotoslog.MaxFileSize(config.Size), rotoslog.DateTimeLayout(config.Formatter), rotoslog.MaxRotatedFiles(config.MaxFiles))
	if err == nil {
		config.AddLogHandler(config.handler)
	}
	return
}

func (config *LogRotatePlugin) Dispose() {
	if config.handler != nil {
		config.Server.RemoveLogHandler(config.handler)
	}
}
