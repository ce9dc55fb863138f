// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vodcast/internal/cache"
	"github.com/ManuGH/vodcast/internal/config"
	"github.com/ManuGH/vodcast/internal/log"
	"github.com/ManuGH/vodcast/internal/ytdlp"
)

const youtubeFeedBase = "https://www.youtube.com/feeds/videos.xml"

// channelIDRegex extracts a canonical channel id from any YouTube URL form.
var channelIDRegex = regexp.MustCompile(`(UC[0-9A-Za-z_-]{22})`)

// YouTube turns channel, vanity and playlist URLs into the native Atom feed
// YouTube still serves, optionally delegating playlists to a PodTube helper.
type YouTube struct {
	store      *cache.Store
	runner     *ytdlp.Runner
	client     *http.Client
	apiKey     string
	podtubeURL string
	patterns   []*regexp.Regexp
	logger     zerolog.Logger
}

func NewYouTube(cfg config.Config, store *cache.Store, runner *ytdlp.Runner, client *http.Client) *YouTube {
	return &YouTube{
		store:      store,
		runner:     runner,
		client:     client,
		apiKey:     cfg.YouTubeAPIKey,
		podtubeURL: cfg.PodTubeURL,
		patterns: compileHostPatterns([]string{
			`(?:[a-z0-9-]+\.)?youtube\.com`,
			`youtu\.be`,
		}),
		logger: log.WithComponent("provider.youtube"),
	}
}

func (y *YouTube) Name() string { return "youtube" }

func (y *YouTube) Matches(u *url.URL) bool { return hostMatches(y.patterns, u) }

func (y *YouTube) DomainPatterns() []*regexp.Regexp { return y.patterns }

func (y *YouTube) GenerateFeed(ctx context.Context, u *url.URL) ([]byte, error) {
	src, err := y.feedSourceURL(ctx, u)
	if err != nil {
		return nil, err
	}
	y.logger.Debug().Str("url", u.String()).Str("source", src).Msg("fetching feed")
	return fetchBody(ctx, y.client, src)
}

// feedSourceURL maps a public YouTube URL onto the feed endpoint serving it.
func (y *YouTube) feedSourceURL(ctx context.Context, u *url.URL) (string, error) {
	path := u.EscapedPath()
	switch {
	case strings.HasPrefix(path, "/playlist"):
		listID := u.Query().Get("list")
		if listID == "" {
			return "", fmt.Errorf("playlist url %s has no list parameter", u)
		}
		if y.podtubeURL != "" {
			return y.podtubeURL + "/youtube/playlist/" + listID, nil
		}
		return youtubeFeedBase + "?playlist_id=" + url.QueryEscape(listID), nil

	case strings.HasPrefix(path, "/feeds/"):
		// Already a feed URL, fetch as-is.
		return u.String(), nil

	case strings.HasPrefix(path, "/channel/"),
		strings.HasPrefix(path, "/user/"),
		strings.HasPrefix(path, "/c/"),
		strings.HasPrefix(path, "/@"):
		return y.channelFeedURL(ctx, u)

	default:
		return "", fmt.Errorf("unsupported youtube url path %q", path)
	}
}

func (y *YouTube) channelFeedURL(ctx context.Context, u *url.URL) (string, error) {
	if id := channelIDRegex.FindString(u.EscapedPath()); id != "" {
		return youtubeFeedBase + "?channel_id=" + id, nil
	}

	if y.apiKey == "" {
		// Without an API key there is no id-resolution step. The legacy
		// user= feed parameter still works for /user/ URLs; handle and
		// /c/ vanity forms have no equivalent.
		if name, ok := strings.CutPrefix(u.EscapedPath(), "/user/"); ok && name != "" {
			return youtubeFeedBase + "?user=" + url.QueryEscape(strings.Trim(name, "/")), nil
		}
		return "", fmt.Errorf("resolving vanity url %s requires YT_API_KEY", u)
	}

	id, err := y.resolveChannelID(ctx, u)
	if err != nil {
		return "", err
	}
	return youtubeFeedBase + "?channel_id=" + id, nil
}

// resolveChannelID turns a vanity channel URL into its UC id, caching the
// result for a long time since channel ids never change.
func (y *YouTube) resolveChannelID(ctx context.Context, u *url.URL) (string, error) {
	key := cache.ChannelIDKey(u.String())
	if id, ok := y.store.Get(ctx, key); ok {
		return id, nil
	}

	channelURL, err := y.runner.ChannelURL(ctx, u.String())
	if err != nil {
		return "", fmt.Errorf("resolve channel id of %s: %w", u, err)
	}
	id := channelIDRegex.FindString(channelURL)
	if id == "" {
		return "", fmt.Errorf("no channel id in resolved url %q", channelURL)
	}

	y.store.Set(ctx, key, id, cache.TTLChannelID)
	return id, nil
}

func (y *YouTube) StreamURL(ctx context.Context, u *url.URL) (string, error) {
	return cachedStreamURL(ctx, y.store, y.runner, u.String())
}
