package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cinestream/internal/auth"
	"cinestream/internal/storage"
)

const featuredLimit = 5

func videoID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func decodeVideoRequest(w http.ResponseWriter, r *http.Request) (*VideoRequest, bool) {
	var req VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return nil, false
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", msg)
		return nil, false
	}
	return &req, true
}

func (h *Handler) catalogError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "VIDEO_NOT_FOUND", "Video not found")
		return
	}
	h.logger.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}

// fillDuration measures the referenced video when the request left duration unset.
func (h *Handler) fillDuration(r *http.Request, v *storage.Video) {
	if h.prober == nil || v.Duration != 0 || v.SrcUUID == "" {
		return
	}
	d, err := h.prober.Duration(r.Context(), v.SrcUUID)
	if err != nil {
		h.logger.Debug().Err(err).Str("src", v.SrcUUID).Msg("could not probe video duration")
		return
	}
	v.Duration = d
}

// Admin

func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeVideoRequest(w, r)
	if !ok {
		return
	}

	v := req.toVideo(0)
	h.fillDuration(r, v)
	if err := h.catalog.CreateVideo(v); err != nil {
		h.catalogError(w, err, "failed to create video")
		return
	}

	h.logger.Info().Int64("id", v.ID).Str("src", v.SrcUUID).Msg("video created")
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) UpdateVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := videoID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid video id")
		return
	}
	req, ok := decodeVideoRequest(w, r)
	if !ok {
		return
	}

	v := req.toVideo(id)
	h.fillDuration(r, v)
	if err := h.catalog.UpdateVideo(v); err != nil {
		h.catalogError(w, err, "failed to update video")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Video updated successfully"})
}

func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := videoID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid video id")
		return
	}

	if err := h.catalog.DeleteVideo(id); err != nil {
		h.catalogError(w, err, "failed to delete video")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Video deleted successfully"})
}

func (h *Handler) SetPublished(w http.ResponseWriter, r *http.Request) {
	id, ok := videoID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid video id")
		return
	}
	published, err := strconv.ParseBool(r.URL.Query().Get("value"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Query parameter value must be true or false")
		return
	}

	if err := h.catalog.SetPublished(id, published); err != nil {
		h.catalogError(w, err, "failed to toggle publish status")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Video publish status updated successfully"})
}

func (h *Handler) ListAllVideos(w http.ResponseWriter, r *http.Request) {
	q, ok := pageQuery(w, r)
	if !ok {
		return
	}

	page, err := h.catalog.SearchVideos(q)
	if err != nil {
		h.catalogError(w, err, "failed to list videos")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) VideoStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.catalog.Stats()
	if err != nil {
		h.catalogError(w, err, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Users

func (h *Handler) ListPublishedVideos(w http.ResponseWriter, r *http.Request) {
	q, ok := pageQuery(w, r)
	if !ok {
		return
	}
	q.PublishedOnly = true

	page, err := h.catalog.SearchVideos(q)
	if err != nil {
		h.catalogError(w, err, "failed to list published videos")
		return
	}

	if p, ok := auth.FromContext(r.Context()); ok && len(page.Content) > 0 {
		ids := make([]int64, len(page.Content))
		for i, v := range page.Content {
			ids[i] = v.ID
		}
		// Watchlist flags are decoration; a failure here must not fail the listing.
		inList, err := h.catalog.WatchlistIDs(p.Email, ids)
		if err != nil {
			h.logger.Warn().Err(err).Str("user", p.Email).Msg("failed to load watchlist flags")
		}
		for i := range page.Content {
			page.Content[i].IsInWatchlist = inList[page.Content[i].ID]
		}
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) FeaturedVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.catalog.FeaturedVideos(featuredLimit)
	if err != nil {
		h.catalogError(w, err, "failed to get featured videos")
		return
	}
	if videos == nil {
		videos = []storage.Video{}
	}
	writeJSON(w, http.StatusOK, videos)
}

func pageQuery(w http.ResponseWriter, r *http.Request) (storage.VideoQuery, bool) {
	page, ok := queryInt(r, "page", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid page")
		return storage.VideoQuery{}, false
	}
	size, ok := queryInt(r, "size", 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid size")
		return storage.VideoQuery{}, false
	}
	return storage.VideoQuery{
		Search: r.URL.Query().Get("search"),
		Page:   page,
		Size:   size,
	}, true
}
