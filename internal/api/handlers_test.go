package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"cinestream/internal/auth"
	"cinestream/internal/config"
	"cinestream/internal/httpx"
	"cinestream/internal/media"
	"cinestream/internal/storage"
	"cinestream/internal/streaming"
)

const testEmail = "viewer@example.com"

type testEnv struct {
	router  http.Handler
	store   *media.Store
	catalog *storage.SQLiteStorage
}

func newTestEnv(t *testing.T, uploader Uploader, maxUpload int64) *testEnv {
	return newTestEnvWithProber(t, uploader, nil, maxUpload)
}

func newTestEnvWithProber(t *testing.T, uploader Uploader, prober DurationProber, maxUpload int64) *testEnv {
	t.Helper()
	base := t.TempDir()

	store, err := media.NewStore(config.StorageConfig{
		VideoDir:      filepath.Join(base, "videos"),
		ImageDir:      filepath.Join(base, "images"),
		IndexCapacity: 16,
	}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	catalog, err := storage.NewSQLiteStorage(filepath.Join(base, "catalog.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })

	if uploader == nil {
		uploader = store
	}
	streamer := streaming.NewHandler(store.Resolver(media.Video), store.Resolver(media.Image), nil, zerolog.Nop())
	h := NewHandler(uploader, streamer, catalog, prober, maxUpload, zerolog.Nop())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithPrincipal(req.Context(), &auth.Principal{Email: testEmail, Role: "USER"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/api/health", h.Health)
	r.Get("/api/files/video/{uuid}", h.ServeVideo)
	r.Get("/api/files/image/{uuid}", h.ServeImage)
	r.Post("/api/files/upload/video", h.UploadVideo)
	r.Post("/api/files/upload/image", h.UploadImage)
	r.Post("/api/videos/admin", h.CreateVideo)
	r.Get("/api/videos/admin", h.ListAllVideos)
	r.Get("/api/videos/admin/stats", h.VideoStats)
	r.Put("/api/videos/admin/{id}", h.UpdateVideo)
	r.Delete("/api/videos/admin/{id}", h.DeleteVideo)
	r.Patch("/api/videos/admin/{id}/publish", h.SetPublished)
	r.Get("/api/videos/published", h.ListPublishedVideos)
	r.Get("/api/videos/featured", h.FeaturedVideos)
	r.Get("/api/watchlist", h.GetWatchlist)
	r.Post("/api/watchlist/{id}", h.AddToWatchlist)
	r.Delete("/api/watchlist/{id}", h.RemoveFromWatchlist)

	return &testEnv{router: r, store: store, catalog: catalog}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[httpx.ErrorResponse](t, w).Error.Code
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, 1<<20)
	w := env.do(t, http.MethodGet, "/api/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[HealthResponse](t, w)
	if resp.Status != "ok" || resp.Version != Version {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestUploadThenServe(t *testing.T) {
	env := newTestEnv(t, nil, 1<<20)
	data := bytes.Repeat([]byte{0, 1, 2, 3, 4, 5, 6, 7}, 128)

	body, ct := multipartBody(t, "file", "trailer.mp4", data)
	w := env.do(t, http.MethodPost, "/api/files/upload/video", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d body = %s", w.Code, w.Body.String())
	}
	id := decode[UploadResponse](t, w).UUID
	if id == "" {
		t.Fatal("empty uuid")
	}

	w = env.do(t, http.MethodGet, "/api/files/video/"+id, nil, "")
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), data) {
		t.Fatalf("serve status = %d, %d bytes", w.Code, w.Body.Len())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/files/video/"+id, nil)
	req.Header.Set("Range", "bytes=10-19")
	rw := httptest.NewRecorder()
	env.router.ServeHTTP(rw, req)
	if rw.Code != http.StatusPartialContent || !bytes.Equal(rw.Body.Bytes(), data[10:20]) {
		t.Fatalf("range status = %d body = %v", rw.Code, rw.Body.Bytes())
	}
}

func TestUploadImage_TwoUploadsDistinct(t *testing.T) {
	env := newTestEnv(t, nil, 1<<20)

	var ids []string
	for _, payload := range [][]byte{[]byte("first image"), []byte("second image")} {
		body, ct := multipartBody(t, "file", "poster.png", payload)
		w := env.do(t, http.MethodPost, "/api/files/upload/image", body, ct)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		ids = append(ids, decode[UploadResponse](t, w).UUID)
	}
	if ids[0] == ids[1] {
		t.Fatal("identifiers collided")
	}

	w := env.do(t, http.MethodGet, "/api/files/image/"+ids[1], nil, "")
	if w.Body.String() != "second image" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestUpload_Errors(t *testing.T) {
	env := newTestEnv(t, nil, 1024)

	t.Run("empty file", func(t *testing.T) {
		body, ct := multipartBody(t, "file", "empty.mp4", nil)
		w := env.do(t, http.MethodPost, "/api/files/upload/video", body, ct)
		if w.Code != http.StatusBadRequest || errorCode(t, w) != "EMPTY_FILE" {
			t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
		}
	})

	t.Run("missing file field", func(t *testing.T) {
		body, ct := multipartBody(t, "attachment", "a.mp4", []byte("x"))
		w := env.do(t, http.MethodPost, "/api/files/upload/video", body, ct)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/files/upload/video", strings.NewReader("{}"), "application/json")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("too large", func(t *testing.T) {
		body, ct := multipartBody(t, "file", "big.mp4", bytes.Repeat([]byte("x"), 4096))
		w := env.do(t, http.MethodPost, "/api/files/upload/video", body, ct)
		if w.Code != http.StatusRequestEntityTooLarge || errorCode(t, w) != "FILE_TOO_LARGE" {
			t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
		}
		names, _ := filepath.Glob(filepath.Join(env.store.Root(media.Video), "*"))
		if len(names) != 0 {
			t.Fatalf("oversized upload left %v", names)
		}
	})
}

type failingUploader struct{ err error }

func (f failingUploader) Save(context.Context, media.Class, io.Reader, string) (string, error) {
	return "", f.err
}

func TestUpload_StorageFailure(t *testing.T) {
	env := newTestEnv(t, failingUploader{err: &media.StorageError{
		Op:       "rename",
		Filename: "abc.mp4",
		Err:      errors.New("disk full"),
	}}, 1<<20)

	body, ct := multipartBody(t, "file", "a.mp4", []byte("data"))
	w := env.do(t, http.MethodPost, "/api/files/upload/video", body, ct)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[httpx.ErrorResponse](t, w)
	if resp.Error.Code != "STORAGE_FAILURE" || resp.Error.Message != "Could not store file abc.mp4" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestServe_UnknownMedia(t *testing.T) {
	env := newTestEnv(t, nil, 1<<20)
	for _, p := range []string{"/api/files/video/does-not-exist", "/api/files/image/does-not-exist"} {
		if w := env.do(t, http.MethodGet, p, nil, ""); w.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d", p, w.Code)
		}
	}
}

func createVideo(t *testing.T, env *testEnv, req VideoRequest) storage.Video {
	t.Helper()
	b, _ := json.Marshal(req)
	w := env.do(t, http.MethodPost, "/api/videos/admin", bytes.NewReader(b), "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", w.Code, w.Body.String())
	}
	return decode[storage.Video](t, w)
}

func TestVideoCatalog(t *testing.T) {
	env := newTestEnv(t, nil, 1<<20)

	v := createVideo(t, env, VideoRequest{
		Title:      "  Dune  ",
		Year:       2021,
		Duration:   9360,
		Src:        "video-id",
		Poster:     "poster-id",
		Categories: []string{"sci-fi"},
	})
	if v.ID == 0 || v.Title != "Dune" || v.SrcUUID != "video-id" {
		t.Fatalf("created %+v", v)
	}

	// validation
	w := env.do(t, http.MethodPost, "/api/videos/admin", strings.NewReader(`{"title":" "}`), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank title status = %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/videos/admin", strings.NewReader(`not json`), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", w.Code)
	}

	// update
	b, _ := json.Marshal(VideoRequest{Title: "Dune: Part One", Year: 2021})
	w = env.do(t, http.MethodPut, "/api/videos/admin/1", bytes.NewReader(b), "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d", w.Code)
	}
	w = env.do(t, http.MethodPut, "/api/videos/admin/99", bytes.NewReader(b), "application/json")
	if w.Code != http.StatusNotFound || errorCode(t, w) != "VIDEO_NOT_FOUND" {
		t.Fatalf("update missing status = %d", w.Code)
	}
	w = env.do(t, http.MethodPut, "/api/videos/admin/abc", bytes.NewReader(b), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("update bad id status = %d", w.Code)
	}

	// publish
	w = env.do(t, http.MethodPatch, "/api/videos/admin/1/publish?value=true", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("publish status = %d", w.Code)
	}
	w = env.do(t, http.MethodPatch, "/api/videos/admin/1/publish?value=maybe", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("publish bad value status = %d", w.Code)
	}

	createVideo(t, env, VideoRequest{Title: "Unreleased", Duration: 40})

	// admin list sees both, published list only one
	w = env.do(t, http.MethodGet, "/api/videos/admin?size=5", nil, "")
	all := decode[VideoPageResponse](t, w)
	if all.TotalElements != 2 || all.Size != 5 {
		t.Fatalf("admin list = %+v", all)
	}
	w = env.do(t, http.MethodGet, "/api/videos/published", nil, "")
	pub := decode[VideoPageResponse](t, w)
	if pub.TotalElements != 1 || pub.Content[0].Title != "Dune: Part One" {
		t.Fatalf("published list = %+v", pub)
	}
	w = env.do(t, http.MethodGet, "/api/videos/admin?page=x", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad page status = %d", w.Code)
	}

	// stats
	w = env.do(t, http.MethodGet, "/api/videos/admin/stats", nil, "")
	stats := decode[storage.VideoStats](t, w)
	if stats.TotalVideos != 2 || stats.PublishedVideos != 1 || stats.TotalDuration != 40 {
		t.Fatalf("stats = %+v", stats)
	}

	// featured
	w = env.do(t, http.MethodGet, "/api/videos/featured", nil, "")
	featured := decode[[]storage.Video](t, w)
	if len(featured) != 1 {
		t.Fatalf("featured = %d videos", len(featured))
	}

	// delete
	w = env.do(t, http.MethodDelete, "/api/videos/admin/1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = env.do(t, http.MethodDelete, "/api/videos/admin/1", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", w.Code)
	}
}

func TestFeatured_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t, nil, 1<<20)
	w := env.do(t, http.MethodGet, "/api/videos/featured", nil, "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("body = %q, want []", w.Body.String())
	}
}

func TestWatchlist(t *testing.T) {
	env := newTestEnv(t, nil, 1<<20)
	a := createVideo(t, env, VideoRequest{Title: "Heat", Published: true})
	b := createVideo(t, env, VideoRequest{Title: "Ronin", Published: true})

	w := env.do(t, http.MethodPost, "/api/watchlist/2", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/watchlist/99", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("add missing status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/watchlist", nil, "")
	list := decode[VideoPageResponse](t, w)
	if list.TotalElements != 1 || list.Content[0].ID != b.ID || !list.Content[0].IsInWatchlist {
		t.Fatalf("watchlist = %+v", list)
	}

	w = env.do(t, http.MethodGet, "/api/videos/published", nil, "")
	pub := decode[VideoPageResponse](t, w)
	flags := map[int64]bool{}
	for _, v := range pub.Content {
		flags[v.ID] = v.IsInWatchlist
	}
	if flags[a.ID] || !flags[b.ID] {
		t.Fatalf("flags = %v", flags)
	}

	w = env.do(t, http.MethodDelete, "/api/watchlist/2", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/watchlist", nil, "")
	if decode[VideoPageResponse](t, w).TotalElements != 0 {
		t.Fatal("watchlist not emptied")
	}
}

type fixedProber map[string]int64

func (f fixedProber) Duration(_ context.Context, id string) (int64, error) {
	if d, ok := f[id]; ok {
		return d, nil
	}
	return 0, media.ErrNotFound
}

func TestCreateVideo_ProbesMissingDuration(t *testing.T) {
	env := newTestEnvWithProber(t, nil, fixedProber{"known": 5400}, 1<<20)

	v := createVideo(t, env, VideoRequest{Title: "Probed", Src: "known"})
	if v.Duration != 5400 {
		t.Fatalf("Duration = %d, want 5400", v.Duration)
	}

	v = createVideo(t, env, VideoRequest{Title: "Explicit", Src: "known", Duration: 60})
	if v.Duration != 60 {
		t.Fatalf("explicit Duration overwritten: %d", v.Duration)
	}

	v = createVideo(t, env, VideoRequest{Title: "Unknown", Src: "other"})
	if v.Duration != 0 {
		t.Fatalf("Duration = %d, want 0", v.Duration)
	}
}

func TestUpload_ClientCancelled(t *testing.T) {
	env := newTestEnv(t, failingUploader{err: &media.StorageError{
		Op:       "write",
		Filename: "abc.mp4",
		Err:      context.Canceled,
	}}, 1<<20)

	body, ct := multipartBody(t, "file", "a.mp4", []byte("data"))
	w := env.do(t, http.MethodPost, "/api/files/upload/video", body, ct)
	if w.Code != statusClientClosedRequest {
		t.Fatalf("status = %d, want %d", w.Code, statusClientClosedRequest)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("body = %q, want empty", w.Body.String())
	}
}
