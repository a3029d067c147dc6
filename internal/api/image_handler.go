package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/phrazzld/lumiere-api/internal/api/shared"
)

// ImageHandler serves finished images from the output directory.
type ImageHandler struct {
	outputDir string
	logger    *slog.Logger
}

// NewImageHandler creates an ImageHandler rooted at outputDir.
func NewImageHandler(outputDir string, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{
		outputDir: outputDir,
		logger:    logger.With("component", "image_handler"),
	}
}

// Image handles GET /api/image/{filename}.
func (h *ImageHandler) Image(w http.ResponseWriter, r *http.Request) {
	raw, ok := getPathParam(r, "filename")
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Image not found")
		return
	}
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(raw); err == nil {
			raw = unescaped
		}
	}

	name, ok := safeFilename(raw)
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Image not found")
		return
	}

	path := filepath.Join(h.outputDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to read image", err)
			return
		}
		shared.RespondWithError(w, r, http.StatusNotFound, "Image not found")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}
