package pkg

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		cases := map[string]slog.Level{
			"trace": TraceLevel,
			"debug": slog.LevelDebug,
			"info":  slog.LevelInfo,
			"WARN":  slog.LevelWarn,
			"error": slog.LevelError,
			"loud":  slog.LevelInfo,
		}
		for name, want := range cases {
			if got := ParseLevel(name); got != want {
				t.Errorf("%s: got %v want %v", name, got, want)
			}
		}
	})
}

func TestMultiLogHandler(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		var first, second bytes.Buffer
		opts := &slog.HandlerOptions{Level: TraceLevel}
		root := NewMultiLogHandler(slog.LevelInfo, slog.NewTextHandler(&first, opts))
		logger := slog.New(root).With("plugin", "mp4")
		root.Add(slog.NewTextHandler(&second, opts))
		logger.Info("probe", "path", "a.mp4")
		logger.Debug("hidden")
		for _, out := range []string{first.String(), second.String()} {
			if !strings.Contains(out, "plugin=mp4") || !strings.Contains(out, "path=a.mp4") {
				t.Errorf("missing attrs in %q", out)
			}
			if strings.Contains(out, "hidden") {
				t.Errorf("debug record leaked: %q", out)
			}
		}
		root.SetLevel(slog.LevelDebug)
		logger.Debug("shown")
		if !strings.Contains(first.String(), "shown") {
			t.Error("level change not seen by child")
		}
	})
}
