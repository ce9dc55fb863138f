// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vodcast/internal/config"
	"github.com/ManuGH/vodcast/internal/log"
)

var uuidSegmentRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// PeerTube serves instances listed in VALID_PEERTUBE_DOMAINS. Instances
// publish usable RSS themselves, so feed generation is a plain fetch; only
// stream resolution needs the instance API.
type PeerTube struct {
	client   *http.Client
	patterns []*regexp.Regexp
	logger   zerolog.Logger
}

func NewPeerTube(cfg config.Config, client *http.Client) *PeerTube {
	patterns := make([]string, 0, len(cfg.PeerTubeHosts))
	for _, host := range cfg.PeerTubeHosts {
		patterns = append(patterns, config.HostPattern(host))
	}
	return &PeerTube{
		client:   client,
		patterns: compileHostPatterns(patterns),
		logger:   log.WithComponent("provider.peertube"),
	}
}

func (p *PeerTube) Name() string { return "peertube" }

func (p *PeerTube) Matches(u *url.URL) bool { return hostMatches(p.patterns, u) }

func (p *PeerTube) DomainPatterns() []*regexp.Regexp { return p.patterns }

func (p *PeerTube) GenerateFeed(ctx context.Context, u *url.URL) ([]byte, error) {
	return fetchBody(ctx, p.client, u.String())
}

// StreamURL asks the instance API for the HLS playlist of the video whose
// UUID appears in the URL path.
func (p *PeerTube) StreamURL(ctx context.Context, u *url.URL) (string, error) {
	videoID := ""
	for _, segment := range strings.Split(u.EscapedPath(), "/") {
		if uuidSegmentRegex.MatchString(segment) {
			videoID = segment
			break
		}
	}
	if videoID == "" {
		return "", fmt.Errorf("no video uuid in peertube url %s", u)
	}

	apiURL := u.Scheme + "://" + u.Host + "/api/v1/videos/" + videoID
	body, err := fetchBody(ctx, p.client, apiURL)
	if err != nil {
		return "", err
	}

	var video struct {
		StreamingPlaylists []struct {
			PlaylistURL string `json:"playlistUrl"`
		} `json:"streamingPlaylists"`
	}
	if err := json.Unmarshal(body, &video); err != nil {
		return "", fmt.Errorf("decode video %s: %w", videoID, err)
	}
	if len(video.StreamingPlaylists) == 0 || video.StreamingPlaylists[0].PlaylistURL == "" {
		return "", fmt.Errorf("video %s has no streaming playlist", videoID)
	}
	return video.StreamingPlaylists[0].PlaylistURL, nil
}
