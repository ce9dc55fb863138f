// SPDX-License-Identifier: MIT

// Package provider selects and runs the source-specific strategies that turn
// a channel URL into podcast RSS. Dispatch is a linear scan over per-provider
// domain patterns; the same scan doubles as the outbound allow-list, so a URL
// no provider claims is rejected before any request leaves the process.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vodcast/internal/cache"
	"github.com/ManuGH/vodcast/internal/config"
	"github.com/ManuGH/vodcast/internal/log"
	"github.com/ManuGH/vodcast/internal/ytdlp"
)

// ErrNotAllowed marks URLs outside every provider's domain allow-list.
var ErrNotAllowed = errors.New("url not in allow-list")

const (
	userAgent    = "Mozilla/5.0 (X11; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0"
	maxBodyBytes = 8 << 20
)

// Provider is one feed source strategy.
type Provider interface {
	Name() string

	// Matches reports whether this provider claims the URL.
	Matches(u *url.URL) bool

	// DomainPatterns returns the host patterns backing Matches.
	DomainPatterns() []*regexp.Regexp

	// GenerateFeed produces the raw feed for a channel URL. The result is
	// RSS or Atom text; enrichment normalizes it later.
	GenerateFeed(ctx context.Context, u *url.URL) ([]byte, error)

	// StreamURL resolves the direct media stream behind a media page URL.
	// Identity for providers whose URLs already point at media files.
	StreamURL(ctx context.Context, u *url.URL) (string, error)
}

// Registry holds the fixed, ordered provider list.
type Registry struct {
	providers []Provider
	logger    zerolog.Logger
}

// NewRegistry builds the standard provider chain. Order matters: the generic
// provider is the catch-all and must come last.
func NewRegistry(cfg config.Config, store *cache.Store, runner *ytdlp.Runner) *Registry {
	client := &http.Client{Timeout: 15 * time.Second}
	return &Registry{
		providers: []Provider{
			NewYouTube(cfg, store, runner, client),
			NewTwitch(cfg, store, runner, client),
			NewPeerTube(cfg, client),
			NewRumble(store, runner, client),
			NewGeneric(cfg, client),
		},
		logger: log.WithComponent("provider"),
	}
}

// Match returns the first provider claiming the URL, or ErrNotAllowed when
// none does. Only http and https URLs are eligible at all.
func (r *Registry) Match(u *url.URL) (Provider, error) {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotAllowed, safeURLString(u))
	}
	for _, p := range r.providers {
		if p.Matches(u) {
			r.logger.Debug().
				Str("provider", p.Name()).
				Str("host", u.Hostname()).
				Msg("provider matched")
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotAllowed, safeURLString(u))
}

// Allowed reports whether any provider claims the URL.
func (r *Registry) Allowed(u *url.URL) bool {
	_, err := r.Match(u)
	return err == nil
}

// Providers exposes the ordered chain, mainly for introspection and tests.
func (r *Registry) Providers() []Provider {
	return r.providers
}

func safeURLString(u *url.URL) string {
	if u == nil {
		return "<nil>"
	}
	return u.Redacted()
}

// compileHostPatterns anchors each pattern to the full hostname.
func compileHostPatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^(?i:" + p + ")$")
		if err != nil {
			l := log.WithComponent("provider")
			l.Warn().
				Str("pattern", p).
				Err(err).
				Msg("invalid domain pattern, skipping")
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

func hostMatches(patterns []*regexp.Regexp, u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	for _, re := range patterns {
		if re.MatchString(host) {
			return true
		}
	}
	return false
}

// fetchBody GETs a URL and returns the response body, bounded to keep a
// hostile upstream from exhausting memory.
func fetchBody(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, err)
	}
	return body, nil
}

// cachedStreamURL wraps a yt-dlp stream resolution with the shared
// read-through cache.
func cachedStreamURL(ctx context.Context, store *cache.Store, runner *ytdlp.Runner, mediaURL string) (string, error) {
	key := cache.StreamURLKey(mediaURL)
	if cached, ok := store.Get(ctx, key); ok {
		return cached, nil
	}

	streamURL, err := runner.StreamURL(ctx, mediaURL)
	if err != nil {
		return "", err
	}

	store.Set(ctx, key, streamURL, cache.TTLStreamURL)
	return streamURL, nil
}
