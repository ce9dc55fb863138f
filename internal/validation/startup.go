// SPDX-License-Identifier: MIT

// Package validation runs pre-flight checks so misconfiguration fails
// at startup instead of on the first request.
package validation

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vodcast/internal/config"
	"github.com/ManuGH/vodcast/internal/log"
)

// PerformStartupChecks validates the environment and external binaries
// before the server starts accepting requests.
func PerformStartupChecks(cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if err := checkBitrate(logger, cfg); err != nil {
		return fmt.Errorf("bitrate check failed: %w", err)
	}
	if err := checkTranscoder(logger, cfg); err != nil {
		return fmt.Errorf("transcoder check failed: %w", err)
	}
	checkResolver(logger, cfg)
	checkAllowList(logger, cfg)

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

// checkBitrate rejects bitrates that would produce unplayable feeds:
// every enclosure length and every byte range derives from it.
func checkBitrate(logger zerolog.Logger, cfg config.Config) error {
	if cfg.BitrateKbit <= 0 {
		return fmt.Errorf("bitrate must be positive, got %d", cfg.BitrateKbit)
	}
	logger.Info().Int("kbit", cfg.BitrateKbit).Str("codec", string(cfg.Codec)).Msg("✓ Bitrate configured")
	return nil
}

// checkTranscoder verifies the ffmpeg binary exists when transcoding is
// enabled. A missing binary would turn every stream into a 503.
func checkTranscoder(logger zerolog.Logger, cfg config.Config) error {
	if !cfg.TranscodeEnabled {
		logger.Info().Msg("✓ Transcoding disabled, skipping ffmpeg check")
		return nil
	}
	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	resolved, err := resolveBinary(path)
	if err != nil {
		return fmt.Errorf("ffmpeg not found at %q: %w", path, err)
	}
	logger.Info().Str("path", resolved).Msg("✓ ffmpeg is available")
	return nil
}

// checkResolver warns when yt-dlp is missing. YouTube and Rumble
// resolution degrade without it, but allow-listed generic feeds still
// work, so this is not fatal.
func checkResolver(logger zerolog.Logger, cfg config.Config) {
	path := cfg.YTDLPPath
	if path == "" {
		path = "yt-dlp"
	}
	resolved, err := resolveBinary(path)
	if err != nil {
		logger.Warn().Str("path", path).Err(err).
			Msg("yt-dlp not found, YouTube and Rumble streams will fail to resolve")
		return
	}
	logger.Info().Str("path", resolved).Msg("✓ yt-dlp is available")
}

func checkAllowList(logger zerolog.Logger, cfg config.Config) {
	if len(cfg.ValidURLDomains) == 0 {
		logger.Warn().Msg("allow-list is empty, only well-known provider hosts will be accepted")
		return
	}
	logger.Info().Int("domains", len(cfg.ValidURLDomains)).Msg("✓ Allow-list configured")
}

// resolveBinary handles both explicit paths and bare names looked up on
// PATH.
func resolveBinary(path string) (string, error) {
	if strings.ContainsRune(path, os.PathSeparator) {
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", path)
		}
		return path, nil
	}
	return exec.LookPath(path)
}
