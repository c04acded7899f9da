package imagestore

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Handler returns an http.Handler serving stored images at
// GET /image/<filename>. It only reads the filesystem, never the bot's
// in-memory state, so it is safe to run on its own goroutine.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		name := strings.TrimPrefix(r.URL.Path, "/image/")
		if name == "" || name != filepath.Base(name) {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(s.dir, name)
		if _, err := os.Stat(path); err != nil {
			slog.Debug("Image not found", "filename", name)
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, path)
	})
}
