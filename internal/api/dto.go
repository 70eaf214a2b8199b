package api

import (
	"strings"

	"cinestream/internal/storage"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type UploadResponse struct {
	UUID string `json:"uuid"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Video catalog DTOs

type VideoRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Year        int      `json:"year"`
	Rating      string   `json:"rating"`
	Duration    int64    `json:"duration"` // Seconds
	Src         string   `json:"src"`      // Media identifier of the video file
	Poster      string   `json:"poster"`   // Media identifier of the poster image
	Published   bool     `json:"published"`
	Categories  []string `json:"categories"`
}

func (r *VideoRequest) validate() string {
	if strings.TrimSpace(r.Title) == "" {
		return "Title is required"
	}
	if r.Year < 0 {
		return "Year must not be negative"
	}
	if r.Duration < 0 {
		return "Duration must not be negative"
	}
	return ""
}

func (r *VideoRequest) toVideo(id int64) *storage.Video {
	categories := r.Categories
	if categories == nil {
		categories = []string{}
	}
	return &storage.Video{
		ID:          id,
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		Year:        r.Year,
		Rating:      r.Rating,
		Duration:    r.Duration,
		SrcUUID:     r.Src,
		PosterUUID:  r.Poster,
		Published:   r.Published,
		Categories:  categories,
	}
}

type VideoPageResponse = storage.Page[storage.Video]
