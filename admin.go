package staticache

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// AdminHandler exposes cache state over plain HTTP, for operators only:
// a liveness probe, the list of cached paths, and per-path purge. It is
// meant to be served on a separate, non-public listen address and never
// shares a socket with the file-serving path.
func (s *Server) AdminHandler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Get("/cache", func(w http.ResponseWriter, _ *http.Request) {
		paths := make([]string, 0)
		s.files.provider.Keys(func(path string) {
			paths = append(paths, path)
		})
		sort.Strings(paths)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(paths); err != nil {
			s.log.Error().Err(err).Msg("Could not write cache listing")
		}
	})

	r.Delete("/cache/*", func(w http.ResponseWriter, req *http.Request) {
		path, ok := normalizePath(chi.URLParam(req, "*"))
		if !ok || !s.files.provider.Has(path) {
			http.Error(w, "unknown cache entry", http.StatusNotFound)
			return
		}
		s.files.provider.Purge(path)
		s.log.Info().Str("path", path).Msg("Cache entry purged")
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
