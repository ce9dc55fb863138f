// SPDX-License-Identifier: MIT

// Package ytdlp shells out to yt-dlp for the lookups no public API covers:
// direct audio stream URLs, channel resolution for vanity URLs, and video
// durations when batching is unavailable.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vodcast/internal/log"
	"github.com/ManuGH/vodcast/internal/procgroup"
)

const (
	defaultPath    = "yt-dlp"
	defaultTimeout = 2 * time.Minute
)

var (
	// ErrNotFound marks lookups against removed or private media.
	ErrNotFound = errors.New("media not found")

	// ErrRateLimited marks upstream throttling (HTTP 429 and friends).
	ErrRateLimited = errors.New("rate limited by upstream")
)

// Runner invokes the yt-dlp binary with a bounded lifetime per call.
type Runner struct {
	Path    string
	Timeout time.Duration

	logger zerolog.Logger
}

// New returns a Runner for the given binary path ("" uses PATH lookup).
func New(path string) *Runner {
	if path == "" {
		path = defaultPath
	}
	return &Runner{
		Path:    path,
		Timeout: defaultTimeout,
		logger:  log.WithComponent("ytdlp"),
	}
}

// StreamURL resolves the best audio stream URL for a media page.
func (r *Runner) StreamURL(ctx context.Context, mediaURL string) (string, error) {
	out, err := r.run(ctx, "-f", "bestaudio/best", "--get-url", mediaURL)
	if err != nil {
		return "", err
	}
	// yt-dlp prints exactly one URL per requested format.
	streamURL := firstLine(out)
	if streamURL == "" {
		return "", fmt.Errorf("yt-dlp returned no stream url for %s", mediaURL)
	}
	return streamURL, nil
}

// Duration returns the raw duration text ("[[HH:]MM:]SS") for a media page.
func (r *Runner) Duration(ctx context.Context, mediaURL string) (string, error) {
	out, err := r.run(ctx, "--get-duration", mediaURL)
	if err != nil {
		return "", err
	}
	text := firstLine(out)
	if text == "" {
		return "", fmt.Errorf("yt-dlp returned no duration for %s", mediaURL)
	}
	return text, nil
}

// ChannelURL resolves the canonical channel URL behind a vanity page, without
// downloading any playlist entries.
func (r *Runner) ChannelURL(ctx context.Context, pageURL string) (string, error) {
	out, err := r.run(ctx, "--playlist-items", "0", "-O", "playlist:channel_url", pageURL)
	if err != nil {
		return "", err
	}
	channelURL := firstLine(out)
	if channelURL == "" {
		return "", fmt.Errorf("yt-dlp returned no channel url for %s", pageURL)
	}
	return channelURL, nil
}

func (r *Runner) run(ctx context.Context, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, r.Path, args...)
	procgroup.Set(cmd)
	cmd.Cancel = func() error { return procgroup.Kill(cmd) }

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug().
		Strs("args", args).
		Dur("elapsed", time.Since(start)).
		Bool("ok", err == nil).
		Msg("yt-dlp finished")

	if err != nil {
		if cmdCtx.Err() != nil {
			return "", fmt.Errorf("yt-dlp: %w", cmdCtx.Err())
		}
		return "", classify(err, stderr.String())
	}
	return stdout.String(), nil
}

// classify maps common yt-dlp stderr patterns onto sentinel errors.
func classify(err error, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist") || strings.Contains(lower, "unavailable"):
		return fmt.Errorf("yt-dlp: %w: %s", ErrNotFound, strings.TrimSpace(stderr))
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate"):
		return fmt.Errorf("yt-dlp: %w: %s", ErrRateLimited, strings.TrimSpace(stderr))
	default:
		return fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
