// SPDX-License-Identifier: MIT

package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vodcast/internal/cache"
	"github.com/ManuGH/vodcast/internal/duration"
	"github.com/ManuGH/vodcast/internal/feed"
	"github.com/ManuGH/vodcast/internal/log"
	"github.com/ManuGH/vodcast/internal/ytdlp"
)

const rumbleBase = "https://rumble.com"

// Rumble scrapes channel pages into feeds. Rumble has no feed or public API,
// so this parses the server-rendered listing markup.
type Rumble struct {
	store    *cache.Store
	runner   *ytdlp.Runner
	client   *http.Client
	patterns []*regexp.Regexp
	logger   zerolog.Logger
}

func NewRumble(store *cache.Store, runner *ytdlp.Runner, client *http.Client) *Rumble {
	return &Rumble{
		store:  store,
		runner: runner,
		client: client,
		patterns: compileHostPatterns([]string{
			`(?:www\.)?rumble\.com`,
		}),
		logger: log.WithComponent("provider.rumble"),
	}
}

func (r *Rumble) Name() string { return "rumble" }

func (r *Rumble) Matches(u *url.URL) bool { return hostMatches(r.patterns, u) }

func (r *Rumble) DomainPatterns() []*regexp.Regexp { return r.patterns }

func (r *Rumble) GenerateFeed(ctx context.Context, u *url.URL) ([]byte, error) {
	page, err := fetchBody(ctx, r.client, u.String())
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse channel page %s: %w", u, err)
	}

	channel := r.scrapeChannel(doc, u)
	if len(channel.Items) == 0 {
		r.logger.Warn().Str("url", u.String()).Msg("no playable videos on channel page")
	}
	return feed.WriteRSS(channel)
}

func (r *Rumble) StreamURL(ctx context.Context, u *url.URL) (string, error) {
	return cachedStreamURL(ctx, r.store, r.runner, u.String())
}

func (r *Rumble) scrapeChannel(doc *goquery.Document, channelURL *url.URL) feed.Channel {
	main := doc.Find("main").First()

	channel := feed.Channel{
		Title: strings.TrimSpace(main.Find("div.channel-header--title h1").First().Text()),
		Link:  channelURL.String(),
	}
	if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		channel.Description = desc
	} else {
		channel.Description = channel.Title
	}
	if src, ok := main.Find("img.channel-header--img").First().Attr("src"); ok {
		channel.ImageURL = src
	}

	main.Find("ol.thumbnail__grid div.videostream").Each(func(_ int, card *goquery.Selection) {
		if item, ok := r.scrapeCard(card, channelURL); ok {
			channel.Items = append(channel.Items, item)
		}
	})
	return channel
}

// scrapeCard turns one listing card into a feed item. Live streams, scheduled
// premieres and paywalled videos have no fetchable VOD yet and are skipped.
func (r *Rumble) scrapeCard(card *goquery.Selection, channelURL *url.URL) (feed.Item, bool) {
	if card.Find("div.videostream__status--live, div.videostream__status--upcoming").Length() > 0 {
		return feed.Item{}, false
	}
	if strings.Contains(card.Text(), "Premium only") {
		return feed.Item{}, false
	}

	href, ok := card.Find("a.videostream__link").First().Attr("href")
	if !ok || href == "" {
		return feed.Item{}, false
	}
	link := resolveRumbleLink(channelURL, href)

	item := feed.Item{
		ID:    link,
		Title: strings.TrimSpace(card.Find("h3.thumbnail__title").First().Text()),
		Link:  link,
	}
	item.Description = item.Title

	if src, ok := card.Find("img.thumbnail__image").First().Attr("src"); ok {
		item.ImageURL = src
	}
	if datetime, ok := card.Find("time[datetime]").First().Attr("datetime"); ok {
		if ts, err := time.Parse(time.RFC3339, datetime); err == nil {
			item.PubDate = ts
		}
	}
	if text := strings.TrimSpace(card.Find("div.videostream__badge--duration").First().Text()); text != "" {
		if secs, err := duration.Parse(text); err == nil {
			item.DurationSecs = secs
		}
	}
	return item, true
}

// resolveRumbleLink turns the relative hrefs of listing cards into absolute
// video URLs.
func resolveRumbleLink(channelURL *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return rumbleBase + "/" + strings.TrimPrefix(href, "/")
	}
	if ref.IsAbs() {
		return ref.String()
	}
	base := &url.URL{Scheme: channelURL.Scheme, Host: channelURL.Host}
	if base.Host == "" {
		return rumbleBase + ref.String()
	}
	return base.ResolveReference(ref).String()
}
