// Package web ships the compiled dashboard frontend inside the server binary
// and serves it with single-page-application routing.
//
// During development dist/ is usually absent; run the frontend dev server
// instead and let non-API routes 404 here.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// SPAHandler serves static assets from the embedded dist/ tree and rewrites
// every unmatched path to index.html so client-side routing works on reload.
func SPAHandler() http.Handler {
	assets, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: embedded dist tree unavailable: " + err.Error())
	}

	fileServer := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		if f, err := assets.Open(path); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: close embedded asset", "path", path, "error", closeErr)
			}
			fileServer.ServeHTTP(w, r)
			return
		}

		// No matching asset: hand the app shell to the client router.
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
