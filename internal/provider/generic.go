// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"net/http"
	"net/url"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vodcast/internal/config"
	"github.com/ManuGH/vodcast/internal/log"
)

// mediaExtensionRegex admits direct media files regardless of host. Feeds
// frequently serve enclosures from one-off CDN hostnames no allow-list could
// anticipate.
var mediaExtensionRegex = regexp.MustCompile(`(?i)\.(mp3|mp4|m4a|aac|ogg|oga|opus|wav|flac|webm|m3u8)$`)

// Generic is the catch-all for allow-listed hosts that already serve proper
// RSS and direct media URLs. It is also what admits resolved CDN hosts
// (googlevideo, cloudfront) to the transcoding endpoint.
type Generic struct {
	client   *http.Client
	patterns []*regexp.Regexp
	logger   zerolog.Logger
}

func NewGeneric(cfg config.Config, client *http.Client) *Generic {
	return &Generic{
		client:   client,
		patterns: compileHostPatterns(cfg.DomainPatterns()),
		logger:   log.WithComponent("provider.generic"),
	}
}

func (g *Generic) Name() string { return "generic" }

func (g *Generic) Matches(u *url.URL) bool {
	return hostMatches(g.patterns, u) || mediaExtensionRegex.MatchString(u.EscapedPath())
}

func (g *Generic) DomainPatterns() []*regexp.Regexp { return g.patterns }

// GenerateFeed fetches the URL as-is; the source is expected to serve RSS.
func (g *Generic) GenerateFeed(ctx context.Context, u *url.URL) ([]byte, error) {
	return fetchBody(ctx, g.client, u.String())
}

// StreamURL is the identity: generic URLs already point at media files.
func (g *Generic) StreamURL(_ context.Context, u *url.URL) (string, error) {
	return u.String(), nil
}
