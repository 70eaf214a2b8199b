package media

import (
	"path/filepath"
	"strings"
)

// Class is a media class with its own storage root.
type Class string

const (
	Video Class = "video"
	Image Class = "image"
)

const defaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	// video
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	// image
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ContentType infers the MIME type from the file extension.
// Unknown extensions are served as application/octet-stream.
func ContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return defaultContentType
}

// extension returns the dotted suffix of an uploaded file's original name,
// case preserved. Suffixes that could not safely appear in a header are dropped.
func extension(originalName string) string {
	ext := filepath.Ext(filepath.Base(originalName))
	if ext == "." {
		return ""
	}
	for _, r := range ext[min(1, len(ext)):] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return ""
		}
	}
	return ext
}

// stem is the file name without its extension.
func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
