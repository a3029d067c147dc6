package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// getPathParam returns a trimmed, non-empty URL path parameter.
func getPathParam(r *http.Request, name string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	return value, value != ""
}

// safeFilename reduces name to its last path element and rejects anything
// that would address a directory.
func safeFilename(name string) (string, bool) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." || strings.ContainsAny(base, `\`) {
		return "", false
	}
	return base, true
}
