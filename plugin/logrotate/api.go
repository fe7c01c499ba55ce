package plugin_logrotate

import (
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/phsym/console-slog"

	"m7s.live/mp4probe"
	"m7s.live/mp4probe/pkg"
	"m7s.live/mp4probe/pkg/util"
)

type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// List returns the log files, newest first.
func (l *LogRotatePlugin) List() (files []FileInfo, err error) {
	entries, err := os.ReadDir(l.Path)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: info.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	slices.SortFunc(files, func(a, b FileInfo) int {
		return b.ModTime.Compare(a.ModTime)
	})
	return
}

func (l *LogRotatePlugin) API_list(w http.ResponseWriter, r *http.Request) {
	files, err := l.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	mp4probe.WriteJSON(w, files)
}

func (l *LogRotatePlugin) API_get(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" || !filepath.IsLocal(name) || strings.ContainsRune(name, filepath.Separator) {
		http.Error(w, pkg.ErrBadQuery.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, filepath.Join(l.Path, name))
}

// API_tail streams new log records as server-sent events until the client leaves.
func (l *LogRotatePlugin) API_tail(w http.ResponseWriter, r *http.Request) {
	writer := util.NewSSE(w, r.Context())
	h := console.NewHandler(writer, &console.HandlerOptions{NoColor: true, Level: pkg.ParseLevel(r.URL.Query().Get("level"))})
	l.Server.AddLogHandler(h)
	defer l.Server.RemoveLogHandler(h)
	<-r.Context().Done()
}
