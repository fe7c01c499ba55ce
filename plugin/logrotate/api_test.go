package plugin_logrotate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLogFiles(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		dir := t.TempDir()
		old := filepath.Join(dir, "2024-01-01T10.log")
		recent := filepath.Join(dir, "2024-01-01T11.log")
		os.WriteFile(old, []byte("old"), 0o644)
		os.WriteFile(recent, []byte("recent line"), 0o644)
		os.Chtimes(old, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour))
		l := &LogRotatePlugin{Path: dir}

		rec := httptest.NewRecorder()
		l.API_list(rec, httptest.NewRequest(http.MethodGet, "/logrotate/api/list", nil))
		var files []FileInfo
		if err := json.NewDecoder(rec.Body).Decode(&files); err != nil {
			t.Fatal(err)
		}
		if len(files) != 2 || files[0].Name != "2024-01-01T11.log" || files[0].Size != 11 {
			t.Fatalf("files: %+v", files)
		}

		rec = httptest.NewRecorder()
		l.API_get(rec, httptest.NewRequest(http.MethodGet, "/logrotate/api/get?name=2024-01-01T10.log", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "old" {
			t.Errorf("get: %d %q", rec.Code, rec.Body)
		}
		rec = httptest.NewRecorder()
		l.API_get(rec, httptest.NewRequest(http.MethodGet, "/logrotate/api/get?name=../secret", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("escape status %d", rec.Code)
		}
	})
}
