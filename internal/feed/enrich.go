// SPDX-License-Identifier: MIT

package feed

import (
	"context"
	"crypto/md5"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/ManuGH/vodcast/internal/config"
	"github.com/ManuGH/vodcast/internal/duration"
	"github.com/ManuGH/vodcast/internal/log"
	"github.com/ManuGH/vodcast/internal/version"
)

// mediaURLRegex identifies URLs that point at playable media: video pages on
// the supported platforms plus direct files with a known audio extension.
var mediaURLRegex = regexp.MustCompile(`(?i)(youtube\.com/watch\?v=|youtu\.be/|googlevideo\.com/|twitch\.tv/videos/|rumble\.com/|\.(mp3|mp4|m4a|aac|ogg|oga|opus|wav|flac|webm|m3u8)(\?|$))`)

// youtubeURLRegex gates the duration resolver: only YouTube media goes
// through the batched lookup, other sources carry durations in the feed.
var youtubeURLRegex = regexp.MustCompile(`(?i)(youtube\.com|youtu\.be|googlevideo\.com)`)

const enrichConcurrency = 16

// Enricher rewrites provider feeds into playable podcast RSS: filtering
// unpublished items, backfilling durations and pointing enclosures at the
// transcoding endpoint.
type Enricher struct {
	resolver *duration.Resolver
	bitrate  int
	codec    config.Codec
	logger   zerolog.Logger
}

func NewEnricher(cfg config.Config, resolver *duration.Resolver) *Enricher {
	return &Enricher{
		resolver: resolver,
		bitrate:  cfg.BitrateKbit,
		codec:    cfg.Codec,
		logger:   log.WithComponent("feed.enrich"),
	}
}

// Podcast rebuilds a provider feed as podcast RSS. transcodeBase is the
// absolute URL prefix of this service's transcoding endpoint; when empty,
// enclosures point straight at the upstream media instead.
func (e *Enricher) Podcast(ctx context.Context, raw []byte, transcodeBase string) ([]byte, error) {
	channel, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(channel.Title) == "" {
		channel.Title = "vodcast feed"
	}
	channel.Language = normalizeLanguage(channel.Language)
	channel.Generator = "vodcast " + version.Version

	// One fresh token per build. Subscribers re-download enclosures when the
	// URL changes, so the token rotates per feed fetch, not per item.
	buildToken := uuid.NewString()

	results := make([]*Item, len(channel.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range channel.Items {
		i := i
		g.Go(func() error {
			results[i] = e.enrichItem(gctx, channel.Items[i], transcodeBase, buildToken)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]Item, 0, len(results))
	for _, item := range results {
		if item != nil {
			kept = append(kept, *item)
		}
	}
	sort.SliceStable(kept, func(a, b int) bool {
		return kept[a].PubDate.After(kept[b].PubDate)
	})
	channel.Items = kept

	return WriteRSS(channel)
}

// enrichItem returns the playable form of one item, or nil when the item has
// to be dropped.
func (e *Enricher) enrichItem(ctx context.Context, item Item, transcodeBase, buildToken string) *Item {
	if item.Views != nil && *item.Views == 0 {
		e.logger.Debug().Str("title", item.Title).Msg("dropping unpublished premiere")
		return nil
	}

	mediaURL, mediaType := pickMediaURL(item)

	secs := item.DurationSecs
	if secs == 0 && mediaURL != "" && youtubeURLRegex.MatchString(mediaURL) {
		resolved, err := e.resolver.Duration(ctx, mediaURL)
		if err != nil {
			e.logger.Warn().Str("url", mediaURL).Err(err).Msg("duration resolution failed")
		} else {
			secs = resolved
		}
	}
	if secs <= 0 {
		// Zero duration after resolution means a live stream or an item we
		// cannot time-address, neither is playable as an episode.
		e.logger.Debug().Str("title", item.Title).Msg("dropping item without duration")
		return nil
	}
	item.DurationSecs = secs

	item.Description = buildDescription(item, mediaURL)
	item.ID = StableGUID(item.ID)
	item.GUIDIsPermaLink = true

	if mediaURL == "" {
		item.Media = nil
		return &item
	}

	enclosureURL := mediaURL
	enclosureType := e.codec.MIME()
	if transcodeBase != "" {
		enclosureURL = transcodeURL(transcodeBase, e.bitrate, buildToken, secs, mediaURL, e.codec.Extension())
	} else if mediaType != "" {
		enclosureType = mediaType
	}
	item.Media = []MediaRef{{
		URL:    enclosureURL,
		Type:   enclosureType,
		Length: int64(e.bitrate) * 1024 * secs,
	}}
	return &item
}

// pickMediaURL selects the canonical media URL: an explicit audio/mpeg
// enclosure first, then anything matching the media regex among the declared
// media URLs and the item link.
func pickMediaURL(item Item) (string, string) {
	for _, m := range item.Media {
		if m.URL != "" && strings.EqualFold(m.Type, "audio/mpeg") {
			return m.URL, m.Type
		}
	}
	for _, m := range item.Media {
		if m.URL != "" && mediaURLRegex.MatchString(m.URL) {
			return m.URL, m.Type
		}
	}
	if item.Link != "" && mediaURLRegex.MatchString(item.Link) {
		return item.Link, ""
	}
	return "", ""
}

func buildDescription(item Item, mediaURL string) string {
	var b strings.Builder
	b.WriteString(item.Description)
	target := mediaURL
	if target == "" {
		target = item.Link
	}
	if target != "" {
		b.WriteString(`<br><br><a href="`)
		b.WriteString(target)
		b.WriteString(`">link to original</a>`)
	}
	b.WriteString("<br><br>Generated by vodcast ")
	b.WriteString(version.Version)
	return b.String()
}

// StableGUID derives the canonical item GUID: the MD5 of the upstream
// identifier rendered as a UUID. Stable across rebuilds so podcast clients
// never re-download episodes they already have.
func StableGUID(upstreamID string) string {
	sum := md5.Sum([]byte(upstreamID))
	return uuid.Must(uuid.FromBytes(sum[:])).String()
}

// transcodeURL builds the enclosure URL by hand: parameter order is part of
// the subscriber-facing contract and ext must stay last because some clients
// dispatch on the trailing ".mp3".
func transcodeURL(base string, bitrate int, buildToken string, secs int64, mediaURL, ext string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("/transcode_media/to_mp3?bitrate=")
	b.WriteString(strconv.Itoa(bitrate))
	b.WriteString("&uuid=")
	b.WriteString(buildToken)
	b.WriteString("&duration=")
	b.WriteString(strconv.FormatInt(secs, 10))
	b.WriteString("&url=")
	b.WriteString(url.QueryEscape(mediaURL))
	b.WriteString("&ext=")
	b.WriteString(ext)
	return b.String()
}

// normalizeLanguage canonicalizes the channel language tag. Feeds in the wild
// carry anything from "EN-us" to garbage; unparsable values fall back to "en".
func normalizeLanguage(s string) string {
	if strings.TrimSpace(s) == "" {
		return "en"
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "en"
	}
	return strings.ToLower(tag.String())
}
