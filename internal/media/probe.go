package media

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
)

// Prober reads the container duration of stored videos with ffprobe.
// Without an ffprobe binary every probe fails and callers keep their own values.
type Prober struct {
	binary   string
	resolver *Resolver
	logger   zerolog.Logger
}

func NewProber(resolver *Resolver, logger zerolog.Logger) *Prober {
	binary := "ffprobe"
	if path, err := exec.LookPath(binary); err == nil {
		binary = path
	}
	return &Prober{
		binary:   binary,
		resolver: resolver,
		logger:   logger,
	}
}

func (p *Prober) Available() bool {
	_, err := exec.LookPath(p.binary)
	return err == nil
}

// Duration returns the length in whole seconds of the video stored under id.
func (p *Prober) Duration(ctx context.Context, id string) (int64, error) {
	f, err := p.resolver.Resolve(id)
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		f.Path,
	)
	output, err := cmd.Output()
	if err != nil {
		p.logger.Debug().Err(err).Str("file", f.Path).Msg("ffprobe failed")
		return 0, err
	}

	d, err := parseDuration(output)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("ffprobe reported no duration for %s", f.Name)
	}
	return d, nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// parseDuration rounds ffprobe's format duration to whole seconds.
// A missing or non-numeric duration yields 0.
func parseDuration(output []byte) (int64, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, err
	}
	if probe.Format.Duration == "" {
		return 0, nil
	}
	d, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, nil
	}
	return int64(math.Round(d)), nil
}
