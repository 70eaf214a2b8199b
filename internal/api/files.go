package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cinestream/internal/media"
)

func (h *Handler) ServeVideo(w http.ResponseWriter, r *http.Request) {
	h.streamer.ServeVideo(w, r, chi.URLParam(r, "uuid"))
}

func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	h.streamer.ServeImage(w, r, chi.URLParam(r, "uuid"))
}

func (h *Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, media.Video)
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, media.Image)
}

// upload streams the multipart "file" part straight into the content store.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request, class media.Class) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Expected multipart/form-data")
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing file field")
			return
		}
		if err != nil {
			if isTooLarge(err) {
				writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Upload exceeds size limit")
				return
			}
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid form data")
			return
		}

		if part.FormName() != "file" {
			part.Close()
			continue
		}

		id, err := h.uploader.Save(r.Context(), class, part, part.FileName())
		part.Close()
		if err != nil {
			h.writeUploadError(w, class, err)
			return
		}

		writeJSON(w, http.StatusOK, UploadResponse{UUID: id})
		return
	}
}

// statusClientClosedRequest is recorded for uploads the client abandoned.
const statusClientClosedRequest = 499

func (h *Handler) writeUploadError(w http.ResponseWriter, class media.Class, err error) {
	var storageErr *media.StorageError

	switch {
	case errors.Is(err, context.Canceled):
		h.logger.Debug().Err(err).Str("class", string(class)).Msg("upload cancelled by client")
		w.WriteHeader(statusClientClosedRequest)
	case errors.Is(err, media.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "EMPTY_FILE", "Uploaded file is empty")
	case isTooLarge(err):
		writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Upload exceeds size limit")
	case errors.As(err, &storageErr):
		writeError(w, http.StatusInternalServerError, "STORAGE_FAILURE", "Could not store file "+storageErr.Filename)
	default:
		h.logger.Error().Err(err).Str("class", string(class)).Msg("upload failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Upload failed")
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
