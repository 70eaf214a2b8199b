package media

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// staleTempAge is how old an upload temp file must be before a scan removes it.
const staleTempAge = time.Hour

// ScanResult summarizes one root.
type ScanResult struct {
	Files      int
	Bytes      int64
	Ambiguous  []string
	TempRemove int
}

// Scanner walks the content roots at startup: it warms the resolver index,
// reports identifiers that match more than one file and removes temp files
// left behind by interrupted uploads.
type Scanner struct {
	store  *Store
	logger zerolog.Logger
}

func NewScanner(store *Store, logger zerolog.Logger) *Scanner {
	return &Scanner{
		store:  store,
		logger: logger,
	}
}

// ScanAll scans every class root. Failures on one root are logged and do
// not stop the others.
func (s *Scanner) ScanAll() {
	for _, class := range []Class{Video, Image} {
		if _, err := s.Scan(class); err != nil {
			s.logger.Error().Err(err).Str("class", string(class)).Msg("failed to scan content root")
		}
	}
}

func (s *Scanner) Scan(class Class) (*ScanResult, error) {
	res := s.store.Resolver(class)
	if res == nil {
		return &ScanResult{}, nil
	}

	stamp, err := res.stampRoot()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(res.Root())
	if err != nil {
		return nil, err
	}

	result := &ScanResult{}
	seen := make(map[string]string, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		fullPath := filepath.Join(res.Root(), name)

		if entry.IsDir() {
			continue
		}

		if strings.HasPrefix(name, ".") {
			if strings.Contains(name, ".tmp-") && s.removeStale(entry, fullPath) {
				result.TempRemove++
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Error().Err(err).Str("path", fullPath).Msg("failed to get file info")
			continue
		}

		id := stem(name)
		if prev, dup := seen[id]; dup {
			result.Ambiguous = append(result.Ambiguous, id)
			res.Forget(id)
			s.logger.Warn().
				Str("id", id).
				Str("first", prev).
				Str("second", name).
				Msg("identifier matches more than one file; it will not be served")
			continue
		}
		seen[id] = name

		res.remember(id, name, stamp)
		result.Files++
		result.Bytes += info.Size()
	}

	s.logger.Info().
		Str("class", string(class)).
		Str("root", res.Root()).
		Int("files", result.Files).
		Str("size", humanize.IBytes(uint64(result.Bytes))).
		Int("stale_temp_removed", result.TempRemove).
		Msg("content root scanned")

	return result, nil
}

func (s *Scanner) removeStale(entry os.DirEntry, fullPath string) bool {
	info, err := entry.Info()
	if err != nil || time.Since(info.ModTime()) < staleTempAge {
		return false
	}
	if err := os.Remove(fullPath); err != nil {
		s.logger.Warn().Err(err).Str("path", fullPath).Msg("failed to remove stale upload")
		return false
	}
	s.logger.Debug().Str("path", fullPath).Msg("removed stale upload")
	return true
}
