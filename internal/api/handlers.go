// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/vodcast/internal/cache"
	"github.com/ManuGH/vodcast/internal/log"
	"github.com/ManuGH/vodcast/internal/ratelimit"
	"github.com/ManuGH/vodcast/internal/telemetry"
	"github.com/ManuGH/vodcast/internal/transcoder"
)

func (s *Server) handleLanding(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(s.landing)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleFeed serves the enriched podcast feed for a channel URL. The
// whole response is cached, so popular feeds cost one Redis roundtrip.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithComponentFromContext(ctx, "api")
	span := trace.SpanFromContext(ctx)

	feedURL, ok := parseURLParam(w, r)
	if !ok {
		return
	}

	transcodeBase := ""
	if s.cfg.TranscodeEnabled {
		transcodeBase = requestBaseURL(r) + s.cfg.Subfolder
	}

	key := cache.FeedKey(transcodeBase, feedURL.String(), s.cfg.TranscodeEnabled)
	if cached, ok := s.store.Get(ctx, key); ok {
		span.SetAttributes(attribute.Bool(telemetry.FeedCachedKey, true))
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(cached))
		return
	}

	prov, err := s.registry.Match(feedURL)
	if err != nil {
		logger.Warn().Str("host", feedURL.Host).Msg("feed.denied")
		writeError(w, statusForError(err), "url not allowed")
		return
	}

	start := time.Now()
	buildCtx, buildSpan := telemetry.Tracer("vodcast.api").Start(ctx, "feed.build",
		trace.WithAttributes(telemetry.FeedAttributes(prov.Name(), feedURL.Host, -1)...))
	defer buildSpan.End()

	raw, err := prov.GenerateFeed(buildCtx, feedURL)
	if err != nil {
		buildSpan.RecordError(err)
		logger.Error().Err(err).Str("provider", prov.Name()).Str("host", feedURL.Host).Msg("feed.generate_failed")
		writeError(w, statusForError(err), "feed generation failed")
		return
	}

	enriched, err := s.enricher.Podcast(buildCtx, raw, transcodeBase)
	if err != nil {
		buildSpan.RecordError(err)
		logger.Error().Err(err).Str("provider", prov.Name()).Msg("feed.enrich_failed")
		writeError(w, statusForError(err), "feed enrichment failed")
		return
	}
	feedBuildDuration.WithLabelValues(prov.Name()).Observe(time.Since(start).Seconds())

	items := bytes.Count(enriched, []byte("<item>"))
	buildSpan.SetAttributes(attribute.Int(telemetry.FeedItemsKey, items))
	logger.Info().
		Str("provider", prov.Name()).
		Str("host", feedURL.Host).
		Int("items", items).
		Dur("elapsed", time.Since(start)).
		Msg("feed.built")

	s.store.Set(ctx, key, string(enriched), cache.TTLFeed)
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(enriched)
}

// handleTranscode streams one episode as CBR audio. The uuid and ext
// query parameters exist for podcast clients and are ignored here.
func (s *Server) handleTranscode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithComponentFromContext(ctx, "api")
	span := trace.SpanFromContext(ctx)

	if !s.cfg.TranscodeEnabled {
		writeError(w, http.StatusForbidden, "transcoding is disabled")
		return
	}

	mediaURL, ok := parseURLParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	bitrate, err := strconv.Atoi(q.Get("bitrate"))
	if err != nil || bitrate <= 0 {
		writeError(w, http.StatusBadRequest, "invalid bitrate parameter")
		return
	}
	durationSecs, err := strconv.ParseInt(q.Get("duration"), 10, 64)
	if err != nil || durationSecs < 0 {
		writeError(w, http.StatusBadRequest, "invalid duration parameter")
		return
	}

	prov, err := s.registry.Match(mediaURL)
	if err != nil {
		logger.Warn().Str("host", mediaURL.Host).Msg("transcode.denied")
		writeError(w, statusForError(err), "url not allowed")
		return
	}

	if !s.spawnLim.Allow(ratelimit.GetClientIP(r)) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	streamURL, err := prov.StreamURL(ctx, mediaURL)
	if err != nil {
		logger.Error().Err(err).Str("provider", prov.Name()).Msg("transcode.resolve_failed")
		writeError(w, statusForError(err), "stream resolution failed")
		return
	}

	params := transcoder.Params{
		MediaURL:     streamURL,
		BitrateKbit:  bitrate,
		DurationSecs: durationSecs,
		Codec:        s.cfg.Codec,
	}

	// Byte offsets map onto time offsets only for CBR MP3. Other codecs
	// always stream from the start.
	rangeHeader := r.Header.Get("Range")
	if !s.cfg.Codec.SeekSupported() {
		rangeHeader = ""
	}
	plan, err := transcoder.PlanRange(rangeHeader, params)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	sess, err := s.trans.Start(ctx, params, plan)
	if err != nil {
		logger.Error().Err(err).Msg("transcode.spawn_failed")
		writeError(w, http.StatusServiceUnavailable, "transcoder unavailable")
		return
	}
	defer sess.Close()

	span.SetAttributes(telemetry.TranscodeAttributes(string(s.cfg.Codec), bitrate, plan.SeekSecs, durationSecs)...)

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Range", plan.ContentRange())
	w.Header().Set("Content-Type", s.cfg.Codec.MIME())
	w.Header().Set("Content-Length", strconv.FormatInt(plan.ContentLength(), 10))
	w.WriteHeader(plan.Status())

	// Headers are out; stream errors end the body early and get logged,
	// nothing more.
	if err := sess.Stream(ctx, w); err != nil {
		logger.Error().Err(err).Msg("transcode.stream_failed")
	}
}

// parseURLParam extracts and validates the url query parameter shared
// by the feed and transcode endpoints.
func parseURLParam(w http.ResponseWriter, r *http.Request) (*url.URL, bool) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		writeError(w, http.StatusBadRequest, "invalid url parameter")
		return nil, false
	}
	return u, true
}

// requestBaseURL reconstructs the external base URL clients used to
// reach the service, respecting reverse proxy forwarding headers.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
