package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Video is a catalog entry. SrcUUID and PosterUUID are media identifiers
// kept by value; nothing checks that the files exist.
type Video struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Year          int       `json:"year"`
	Rating        string    `json:"rating"`
	Duration      int64     `json:"duration"` // Seconds
	SrcUUID       string    `json:"src"`
	PosterUUID    string    `json:"poster"`
	Published     bool      `json:"published"`
	Categories    []string  `json:"categories"`
	IsInWatchlist bool      `json:"isInWatchlist"` // Filled per user, not stored
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// VideoQuery selects a page of videos. Page is zero-based.
type VideoQuery struct {
	Search        string
	PublishedOnly bool
	Page          int
	Size          int
}

type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

type VideoStats struct {
	TotalVideos     int64 `json:"totalVideos"`
	PublishedVideos int64 `json:"publishedVideos"`
	TotalDuration   int64 `json:"totalDuration"`
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func normalizePage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func newPage[T any](items []T, page, size int, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(size) - 1) / int64(size))
	return Page[T]{
		Content:       items,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    pages,
	}
}
