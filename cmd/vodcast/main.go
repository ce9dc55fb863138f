// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ManuGH/vodcast/internal/api"
	"github.com/ManuGH/vodcast/internal/cache"
	"github.com/ManuGH/vodcast/internal/config"
	"github.com/ManuGH/vodcast/internal/duration"
	"github.com/ManuGH/vodcast/internal/feed"
	vclog "github.com/ManuGH/vodcast/internal/log"
	"github.com/ManuGH/vodcast/internal/provider"
	"github.com/ManuGH/vodcast/internal/telemetry"
	"github.com/ManuGH/vodcast/internal/transcoder"
	"github.com/ManuGH/vodcast/internal/validation"
	"github.com/ManuGH/vodcast/internal/version"
	"github.com/ManuGH/vodcast/internal/ytdlp"
)

const shutdownGrace = 15 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	vclog.Configure(vclog.Config{Service: "vodcast"})
	logger := vclog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()

	if err := validation.PerformStartupChecks(cfg); err != nil {
		logger.Fatal().Err(err).Str("event", "startup.check_failed").Msg("startup checks failed, verify configuration")
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    "vodcast",
		ServiceVersion: version.Version,
		ExporterType:   cfg.OTelExporter,
		Endpoint:       cfg.OTelEndpoint,
		SamplingRate:   cfg.OTelSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "telemetry.init_failed").Msg("failed to initialize tracing")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown failed")
		}
	}()

	store, err := cache.New(cache.Config{Addr: cfg.RedisAddr}, vclog.WithComponent("cache"))
	if err != nil {
		logger.Fatal().Err(err).Str("event", "cache.connect_failed").Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
	}
	defer func() { _ = store.Close() }()

	// A version change invalidates every cached feed and stream URL.
	if err := store.EnsureVersion(ctx, version.Version); err != nil {
		logger.Fatal().Err(err).Str("event", "cache.version_check_failed").Msg("failed to reconcile cache version")
	}

	runner := ytdlp.New(cfg.YTDLPPath)
	registry := provider.NewRegistry(cfg, store, runner)
	enricher := feed.NewEnricher(cfg, duration.New(store, runner, cfg.YouTubeAPIKey))
	trans := transcoder.New(cfg.FFmpegPath)

	srv, err := api.New(cfg, store, registry, enricher, trans)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "server.init_failed").Msg("failed to build server")
	}

	addr := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// No write timeout: a transcode stream runs as long as the episode.
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("addr", addr).
		Msg("starting vodcast")
	logger.Info().Msgf("→ Redis: %s", cfg.RedisAddr)
	logger.Info().Msgf("→ Transcoding: %v (codec %s, %d kbit/s)", cfg.TranscodeEnabled, cfg.Codec, cfg.BitrateKbit)
	logger.Info().Msgf("→ Allowed domains: %d", len(cfg.ValidURLDomains))
	if cfg.Subfolder != "" {
		logger.Info().Msgf("→ Subfolder: %s", cfg.Subfolder)
	}
	for _, p := range registry.Providers() {
		logger.Info().Msgf("→ Provider: %s", p.Name())
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Fatal().Err(err).Str("event", "server.failed").Msg("http server failed")
	case <-ctx.Done():
	}

	logger.Info().Str("event", "shutdown").Msg("signal received, shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown incomplete, forcing close")
		_ = httpSrv.Close()
	}
	logger.Info().Msg("server exiting")
}
