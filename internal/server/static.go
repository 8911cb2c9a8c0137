package server

import (
	"net/http"
	"path"

	"github.com/orreryhq/orrery/internal/widget"
)

// immutableCacheControl is the cache policy for content-addressed artifacts:
// the filename changes whenever the content does, so the bytes behind a
// given name never change and may be cached forever.
const immutableCacheControl = "public, max-age=31536000, immutable"

// StaticHandler serves the build output directory with permissive
// cross-origin access. Files following the content-addressed naming
// convention get the immutable cache policy; anything else (the manifest,
// stray files) is served uncached.
func StaticHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if _, _, _, ok := widget.ParseArtifactName(path.Base(r.URL.Path)); ok {
			w.Header().Set("Cache-Control", immutableCacheControl)
		} else {
			w.Header().Set("Cache-Control", "no-store")
		}
		fs.ServeHTTP(w, r)
	})
}
