package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"

	"cinestream/internal/httpx"
	"cinestream/internal/media"
	"cinestream/internal/metrics"
)

// Locator resolves identifiers to stored files within one media class.
type Locator interface {
	Resolve(id string) (*media.StoredFile, error)
	Forget(id string)
}

// Handler answers "serve this identifier, honoring this optional range".
// Videos support single byte ranges (200/206/404/416); images are always
// served whole (200/404).
type Handler struct {
	videos     Locator
	images     Locator
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	openWindow func(path string, start, length int64) (io.ReadCloser, error)
}

func openFileWindow(path string, start, length int64) (io.ReadCloser, error) {
	return media.OpenWindow(path, start, length)
}

func NewHandler(videos, images Locator, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		videos:     videos,
		images:     images,
		metrics:    m,
		logger:     logger,
		openWindow: openFileWindow,
	}
}

func (h *Handler) ServeVideo(w http.ResponseWriter, r *http.Request, id string) {
	h.serve(w, r, id, media.Video, h.videos, true)
}

func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request, id string) {
	h.serve(w, r, id, media.Image, h.images, false)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, id string, class media.Class, loc Locator, rangeable bool) {
	file, err := loc.Resolve(id)
	if err != nil {
		if errors.Is(err, media.ErrAmbiguous) {
			h.logger.Error().Err(err).Str("id", id).Str("class", string(class)).Msg("ambiguous media identifier")
		} else {
			h.logger.Debug().Err(err).Str("id", id).Str("class", string(class)).Msg("media not found")
		}
		h.notFound(w, class)
		return
	}

	size := file.Size
	status := http.StatusOK
	start, length := int64(0), size
	var rng media.ByteRange

	if rangeable {
		parsed, ok, err := media.ParseRange(r.Header.Get("Range"), size)
		if err != nil {
			h.logger.Debug().
				Str("id", id).
				Str("range", r.Header.Get("Range")).
				Int64("size", size).
				Msg("range not satisfiable")
			w.Header().Set("Content-Range", media.UnsatisfiedRange(size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			h.metrics.StreamResponse(string(class), http.StatusRequestedRangeNotSatisfiable, 0)
			return
		}
		if ok {
			rng = parsed
			status = http.StatusPartialContent
			start, length = rng.Start, rng.Length()
		}
	}

	window, err := h.openWindow(file.Path, start, length)
	if err != nil {
		// The file vanished or shrank after it was resolved.
		loc.Forget(id)
		h.logger.Warn().Err(err).Str("id", id).Str("path", file.Path).Msg("failed to open media window")
		h.notFound(w, class)
		return
	}
	defer window.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", file.ContentType)
	hdr.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, file.Name))
	hdr.Set("Content-Length", strconv.FormatInt(length, 10))
	if rangeable {
		hdr.Set("Accept-Ranges", "bytes")
	} else {
		hdr.Set("Cache-Control", "public, max-age=86400")
	}
	if status == http.StatusPartialContent {
		hdr.Set("Content-Range", rng.ContentRange(size))
	}
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		h.metrics.StreamResponse(string(class), status, 0)
		return
	}

	n, err := io.Copy(w, window)
	h.metrics.StreamResponse(string(class), status, n)
	if err != nil {
		if isClientDisconnect(r.Context(), err) {
			h.logger.Debug().
				Str("id", id).
				Int64("sent", n).
				Int64("want", length).
				Msg("client aborted stream")
			return
		}
		h.logger.Warn().Err(err).Str("id", id).Int64("sent", n).Msg("stream copy failed")
	}
}

func (h *Handler) notFound(w http.ResponseWriter, class media.Class) {
	h.metrics.StreamResponse(string(class), http.StatusNotFound, 0)
	httpx.WriteError(w, http.StatusNotFound, "MEDIA_NOT_FOUND", "Media not found")
}

func isClientDisconnect(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, context.Canceled)
}
