package api

import (
	"net/http"

	"cinestream/internal/auth"
)

func (h *Handler) AddToWatchlist(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	id, ok := videoID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid video id")
		return
	}

	if err := h.catalog.AddToWatchlist(p.Email, id); err != nil {
		h.catalogError(w, err, "failed to add to watchlist")
		return
	}

	h.logger.Debug().Str("user", p.Email).Int64("video_id", id).Msg("added to watchlist")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Video added to watchlist"})
}

func (h *Handler) RemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	id, ok := videoID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid video id")
		return
	}

	if err := h.catalog.RemoveFromWatchlist(p.Email, id); err != nil {
		h.catalogError(w, err, "failed to remove from watchlist")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Video removed from watchlist"})
}

func (h *Handler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	q, ok := pageQuery(w, r)
	if !ok {
		return
	}

	page, err := h.catalog.Watchlist(p.Email, q.Search, q.Page, q.Size)
	if err != nil {
		h.catalogError(w, err, "failed to get watchlist")
		return
	}

	writeJSON(w, http.StatusOK, page)
}
