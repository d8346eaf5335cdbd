package webmonitor

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
)

//go:embed static
var embedded embed.FS

// assetHandler serves /assets/{name}: a file in the override directory wins,
// otherwise the embedded copy is served.
type assetHandler struct {
	overrideDir string
	fallback    fs.FS
}

func newAssetHandler(overrideDir string) *assetHandler {
	sub, _ := fs.Sub(embedded, "static")
	return &assetHandler{
		overrideDir: overrideDir,
		fallback:    sub,
	}
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(chi.URLParam(r, "name"))
	if filename == "." || filename == "/" {
		http.NotFound(w, r)
		return
	}

	if h.overrideDir != "" {
		overridePath := filepath.Join(h.overrideDir, filename)
		if fileExists(overridePath) {
			http.ServeFile(w, r, overridePath)
			return
		}
	}

	http.ServeFileFS(w, r, h.fallback, filename)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
