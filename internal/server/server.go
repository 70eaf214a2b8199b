package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"cinestream/internal/api"
	"cinestream/internal/auth"
	"cinestream/internal/config"
	"cinestream/internal/metrics"
)

type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	httpServer *http.Server
	router     *chi.Mux
	handler    *api.Handler
	authn      auth.Authenticator
	metrics    *metrics.Metrics
}

func New(cfg *config.Config, logger zerolog.Logger, handler *api.Handler, authn auth.Authenticator, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		authn:   authn,
		metrics: m,
	}

	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(CORSMiddleware(s.cfg.Server.AllowedOrigins))
	s.router.Use(auth.Middleware(s.authn, s.logger))
}

func (s *Server) setupRoutes() {
	h := s.handler

	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/files", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth)
				r.Get("/video/{uuid}", h.ServeVideo)
				r.Head("/video/{uuid}", h.ServeVideo)
				r.Get("/image/{uuid}", h.ServeImage)
				r.Head("/image/{uuid}", h.ServeImage)
			})
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))
				r.Post("/upload/video", h.UploadVideo)
				r.Post("/upload/image", h.UploadImage)
			})
		})

		r.Route("/videos", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))
				r.Post("/admin", h.CreateVideo)
				r.Get("/admin", h.ListAllVideos)
				r.Get("/admin/stats", h.VideoStats)
				r.Put("/admin/{id}", h.UpdateVideo)
				r.Delete("/admin/{id}", h.DeleteVideo)
				r.Patch("/admin/{id}/publish", h.SetPublished)
			})
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth)
				r.Get("/published", h.ListPublishedVideos)
				r.Get("/featured", h.FeaturedVideos)
			})
		})

		r.Route("/watchlist", func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Get("/", h.GetWatchlist)
			r.Post("/{id}", h.AddToWatchlist)
			r.Delete("/{id}", h.RemoveFromWatchlist)
		})
	})
}

// Router exposes the configured handler tree.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
