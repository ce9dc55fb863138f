// SPDX-License-Identifier: MIT

// Package api exposes the HTTP surface of vodcast: the landing page,
// health probe, the feed endpoint, the transcode stream endpoint and
// the Prometheus scrape target.
package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vodcast/internal/cache"
	"github.com/ManuGH/vodcast/internal/config"
	"github.com/ManuGH/vodcast/internal/feed"
	"github.com/ManuGH/vodcast/internal/log"
	"github.com/ManuGH/vodcast/internal/provider"
	"github.com/ManuGH/vodcast/internal/ratelimit"
	"github.com/ManuGH/vodcast/internal/transcoder"
	"github.com/ManuGH/vodcast/internal/version"
)

//go:embed templates/landing.html
var templateFS embed.FS

// Server wires the handlers to their collaborators. All fields are set
// at construction and never mutated, so handlers need no locking.
type Server struct {
	cfg      config.Config
	store    *cache.Store
	registry *provider.Registry
	enricher *feed.Enricher
	trans    *transcoder.Transcoder
	spawnLim *ratelimit.Limiter
	landing  []byte
	logger   zerolog.Logger
}

// New builds the server. The landing page is rendered once here;
// serving it is then a plain byte copy.
func New(cfg config.Config, store *cache.Store, registry *provider.Registry, enricher *feed.Enricher, trans *transcoder.Transcoder) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/landing.html")
	if err != nil {
		return nil, fmt.Errorf("parse landing template: %w", err)
	}
	var landing bytes.Buffer
	err = tmpl.Execute(&landing, struct {
		Version   string
		Subfolder string
	}{
		Version:   version.Version,
		Subfolder: cfg.Subfolder,
	})
	if err != nil {
		return nil, fmt.Errorf("render landing template: %w", err)
	}

	return &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		enricher: enricher,
		trans:    trans,
		spawnLim: ratelimit.New(ratelimit.DefaultConfig()),
		landing:  landing.Bytes(),
		logger:   log.WithComponent("api"),
	}, nil
}

// Router assembles the middleware stack and routes. When a subfolder
// is configured the whole surface mounts beneath it, mirroring what a
// reverse proxy in front of the service strips.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(Recoverer(s.logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(Metrics)
	r.Use(Tracing)
	r.Use(AccessLog(s.logger))

	if s.cfg.Subfolder != "" {
		r.Route(s.cfg.Subfolder, func(sub chi.Router) {
			s.mount(sub)
		})
		return r
	}
	s.mount(r)
	return r
}

func (s *Server) mount(r chi.Router) {
	r.Get("/", s.handleLanding)
	r.Get("/health", s.handleHealth)
	r.With(FeedRateLimit(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst)).
		Get("/transcodize_rss", s.handleFeed)
	r.Get("/transcode_media/to_mp3", s.handleTranscode)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}
