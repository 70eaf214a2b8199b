package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cinestream/internal/config"
	"cinestream/internal/metrics"
)

// Store persists uploads under opaque identifiers, one flat directory per class.
type Store struct {
	resolvers map[Class]*Resolver
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewStore creates both class roots (recursively, idempotently) and their
// resolvers. An error here should abort startup.
func NewStore(cfg config.StorageConfig, m *metrics.Metrics, logger zerolog.Logger) (*Store, error) {
	roots := map[Class]string{
		Video: cfg.VideoDir,
		Image: cfg.ImageDir,
	}

	s := &Store{
		resolvers: make(map[Class]*Resolver, len(roots)),
		logger:    logger,
		metrics:   m,
	}

	for class, dir := range roots {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s root %q: %w", class, dir, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("could not initialize %s upload directory: %w", class, err)
		}
		res, err := NewResolver(abs, class, cfg.IndexCapacity)
		if err != nil {
			return nil, err
		}
		s.resolvers[class] = res
	}

	return s, nil
}

func (s *Store) Resolver(class Class) *Resolver {
	return s.resolvers[class]
}

func (s *Store) Root(class Class) string {
	if r := s.resolvers[class]; r != nil {
		return r.Root()
	}
	return ""
}

func (s *Store) SaveVideo(ctx context.Context, r io.Reader, originalName string) (string, error) {
	return s.Save(ctx, Video, r, originalName)
}

func (s *Store) SaveImage(ctx context.Context, r io.Reader, originalName string) (string, error) {
	return s.Save(ctx, Image, r, originalName)
}

// Save streams r into <root>/<id><ext> and returns the new identifier.
// The file only appears under its final name once fully written, so an
// identifier is never observable before its bytes are.
func (s *Store) Save(ctx context.Context, class Class, r io.Reader, originalName string) (string, error) {
	res, ok := s.resolvers[class]
	if !ok {
		return "", fmt.Errorf("unknown media class %q", class)
	}

	id := uuid.NewString()
	name := id + extension(originalName)

	size, err := writeAtomic(ctx, res.Root(), name, r)
	if err != nil {
		if err == ErrInvalidInput {
			s.metrics.Upload(string(class), "empty", 0)
			return "", fmt.Errorf("failed to store empty file %s: %w", name, ErrInvalidInput)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.metrics.Upload(string(class), "aborted", 0)
			s.logger.Debug().
				Err(err).
				Str("class", string(class)).
				Str("filename", name).
				Msg("upload aborted by client")
			return "", err
		}
		s.metrics.Upload(string(class), "error", 0)
		s.logger.Error().
			Err(err).
			Str("class", string(class)).
			Str("filename", name).
			Msg("failed to store upload")
		return "", err
	}

	s.metrics.Upload(string(class), "ok", size)

	s.logger.Info().
		Str("class", string(class)).
		Str("id", id).
		Str("original", filepath.Base(originalName)).
		Str("size", humanize.IBytes(uint64(size))).
		Msg("upload stored")

	return id, nil
}

// writeAtomic copies r into a hidden temp file next to the target, syncs it
// and renames it into place. Zero-length input leaves nothing behind.
func writeAtomic(ctx context.Context, dir, name string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return 0, &StorageError{Op: "create temp file", Filename: name, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return 0, &StorageError{Op: "write", Filename: name, Err: err}
	}
	if n == 0 {
		return 0, ErrInvalidInput
	}
	if err := tmp.Chmod(0o644); err != nil {
		return 0, &StorageError{Op: "chmod", Filename: name, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return 0, &StorageError{Op: "sync", Filename: name, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return 0, &StorageError{Op: "close", Filename: name, Err: err}
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return 0, &StorageError{Op: "rename", Filename: name, Err: err}
	}
	return n, nil
}

// ctxReader stops an upload copy once the request is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
