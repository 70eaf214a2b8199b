package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"cinestream/internal/api"
	"cinestream/internal/auth"
	"cinestream/internal/config"
	"cinestream/internal/media"
	"cinestream/internal/metrics"
	"cinestream/internal/server"
	"cinestream/internal/storage"
	"cinestream/internal/streaming"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	logger.Info().
		Str("version", api.Version).
		Msg("starting cinestream server")

	m := metrics.New()

	// Content roots must exist before anything is stored or served
	store, err := media.NewStore(cfg.Storage, m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize content store")
	}
	logger.Info().
		Str("videos", store.Root(media.Video)).
		Str("images", store.Root(media.Image)).
		Msg("content roots ready")

	media.NewScanner(store, logger).ScanAll()

	// Catalog
	catalog, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer catalog.Close()

	if len(cfg.Auth.Tokens) == 0 {
		logger.Warn().Msg("no auth tokens configured - every protected route will answer 401")
	}
	authn := auth.NewStaticTokens(cfg.Auth.Tokens)

	streamer := streaming.NewHandler(store.Resolver(media.Video), store.Resolver(media.Image), m, logger)
	prober := media.NewProber(store.Resolver(media.Video), logger)
	if !prober.Available() {
		logger.Warn().Msg("ffprobe not found - video durations will not be detected")
	}
	handler := api.NewHandler(store, streamer, catalog, prober, cfg.Storage.MaxUploadSize, logger)

	srv := server.New(cfg, logger, handler, authn, m)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("received shutdown signal")

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	// Start server
	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}

	logger.Info().Msg("server stopped")
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}
