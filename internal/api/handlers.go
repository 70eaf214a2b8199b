package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"cinestream/internal/httpx"
	"cinestream/internal/media"
	"cinestream/internal/storage"
	"cinestream/internal/streaming"
)

const Version = "0.2.0"

// Uploader persists an uploaded file and returns its identifier.
type Uploader interface {
	Save(ctx context.Context, class media.Class, r io.Reader, originalName string) (string, error)
}

// DurationProber measures a stored video. It is optional.
type DurationProber interface {
	Duration(ctx context.Context, id string) (int64, error)
}

// Catalog is the video metadata and watchlist store.
type Catalog interface {
	CreateVideo(v *storage.Video) error
	UpdateVideo(v *storage.Video) error
	GetVideo(id int64) (*storage.Video, error)
	DeleteVideo(id int64) error
	SetPublished(id int64, published bool) error
	SearchVideos(q storage.VideoQuery) (storage.Page[storage.Video], error)
	Stats() (*storage.VideoStats, error)
	FeaturedVideos(limit int) ([]storage.Video, error)

	AddToWatchlist(email string, videoID int64) error
	RemoveFromWatchlist(email string, videoID int64) error
	Watchlist(email, search string, page, size int) (storage.Page[storage.Video], error)
	WatchlistIDs(email string, ids []int64) (map[int64]bool, error)
}

type Handler struct {
	uploader      Uploader
	streamer      *streaming.Handler
	catalog       Catalog
	prober        DurationProber
	logger        zerolog.Logger
	maxUploadSize int64
}

func NewHandler(uploader Uploader, streamer *streaming.Handler, catalog Catalog, prober DurationProber, maxUploadSize int64, logger zerolog.Logger) *Handler {
	return &Handler{
		uploader:      uploader,
		streamer:      streamer,
		catalog:       catalog,
		prober:        prober,
		logger:        logger,
		maxUploadSize: maxUploadSize,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	httpx.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(w, status, code, message)
}

// queryInt reads an integer query parameter, falling back to def when absent.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
