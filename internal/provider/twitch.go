// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vodcast/internal/cache"
	"github.com/ManuGH/vodcast/internal/config"
	"github.com/ManuGH/vodcast/internal/feed"
	"github.com/ManuGH/vodcast/internal/log"
	"github.com/ManuGH/vodcast/internal/ytdlp"
)

const (
	twitchOAuthURL  = "https://id.twitch.tv/oauth2/token"
	twitchHelixBase = "https://api.twitch.tv/helix"

	tokenAttempts = 3
	// Renew slightly before the issuer-reported expiry so an in-flight
	// request never races the cutoff.
	tokenExpiryBuffer = 30 * time.Second
)

var twitchDurationRegex = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// Twitch builds podcast feeds for Twitch channels. With a helper service
// configured it delegates feed generation entirely; otherwise it talks to the
// Helix API itself using app credentials.
type Twitch struct {
	store        *cache.Store
	runner       *ytdlp.Runner
	client       *http.Client
	clientID     string
	clientSecret string
	helperURL    string
	oauthURL     string
	helixBase    string
	patterns     []*regexp.Regexp
	logger       zerolog.Logger
}

func NewTwitch(cfg config.Config, store *cache.Store, runner *ytdlp.Runner, client *http.Client) *Twitch {
	return &Twitch{
		store:        store,
		runner:       runner,
		client:       client,
		clientID:     cfg.TwitchClientID,
		clientSecret: cfg.TwitchSecret,
		helperURL:    cfg.TwitchToPodcastURL,
		oauthURL:     twitchOAuthURL,
		helixBase:    twitchHelixBase,
		patterns: compileHostPatterns([]string{
			`(?:www\.|m\.)?twitch\.tv`,
		}),
		logger: log.WithComponent("provider.twitch"),
	}
}

func (t *Twitch) Name() string { return "twitch" }

func (t *Twitch) Matches(u *url.URL) bool { return hostMatches(t.patterns, u) }

func (t *Twitch) DomainPatterns() []*regexp.Regexp { return t.patterns }

func (t *Twitch) GenerateFeed(ctx context.Context, u *url.URL) ([]byte, error) {
	login := channelLogin(u)
	if login == "" {
		return nil, fmt.Errorf("no channel name in twitch url %s", u)
	}

	if t.helperURL != "" {
		src := t.helperURL + "/vod/" + url.PathEscape(login) + "?transcode=false"
		t.logger.Debug().Str("login", login).Str("source", src).Msg("delegating to helper")
		return fetchBody(ctx, t.client, src)
	}

	return t.nativeFeed(ctx, login)
}

func (t *Twitch) StreamURL(ctx context.Context, u *url.URL) (string, error) {
	return cachedStreamURL(ctx, t.store, t.runner, u.String())
}

// channelLogin extracts the channel name, the last non-empty path segment.
func channelLogin(u *url.URL) string {
	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(segments) == 0 {
		return ""
	}
	return strings.ToLower(segments[len(segments)-1])
}

func (t *Twitch) nativeFeed(ctx context.Context, login string) ([]byte, error) {
	if t.clientID == "" || t.clientSecret == "" {
		return nil, fmt.Errorf("twitch feeds need TWITCH_CLIENT_ID and TWITCH_SECRET, or TWITCH_TO_PODCAST_URL")
	}

	token, err := t.token(ctx)
	if err != nil {
		return nil, err
	}

	user, err := t.fetchUser(ctx, token, login)
	if err != nil {
		return nil, err
	}

	videos, err := t.fetchVideos(ctx, token, user.ID)
	if err != nil {
		return nil, err
	}

	channel := feed.Channel{
		Title:       user.DisplayName,
		Description: user.Description,
		Link:        "https://www.twitch.tv/" + login,
		ImageURL:    user.ProfileImageURL,
	}
	for _, v := range videos {
		channel.Items = append(channel.Items, feed.Item{
			ID:           v.ID,
			Title:        v.Title,
			Description:  v.Description,
			Link:         v.URL,
			PubDate:      parseHelixTime(v.PublishedAt, v.CreatedAt),
			DurationSecs: twitchDurationSecs(v.Duration),
			ImageURL:     helixThumbnail(v.ThumbnailURL),
		})
	}

	return feed.WriteRSS(channel)
}

type twitchCredentials struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry_epoch"`
}

// token returns an app access token, reusing the shared cached credential as
// long as it is still valid. A fresh token is cached with the issuer-reported
// lifetime so every replica rotates at the same moment.
func (t *Twitch) token(ctx context.Context) (string, error) {
	var creds twitchCredentials
	if t.store.GetJSON(ctx, cache.KeyTwitchOAuth, &creds) &&
		creds.Token != "" &&
		time.Now().Add(tokenExpiryBuffer).Unix() < creds.Expiry {
		return creds.Token, nil
	}

	var lastErr error
	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		token, expiresIn, err := t.requestToken(ctx)
		if err != nil {
			lastErr = err
			t.logger.Warn().Int("attempt", attempt).Err(err).Msg("token request failed")
			continue
		}

		creds = twitchCredentials{
			Token:  token,
			Expiry: time.Now().Unix() + expiresIn,
		}
		t.store.SetJSON(ctx, cache.KeyTwitchOAuth, creds, time.Duration(expiresIn)*time.Second)
		return token, nil
	}
	return "", fmt.Errorf("twitch token acquisition failed after %d attempts: %w", tokenAttempts, lastErr)
}

func (t *Twitch) requestToken(ctx context.Context) (string, int64, error) {
	form := url.Values{
		"client_id":     {t.clientID},
		"client_secret": {t.clientSecret},
		"grant_type":    {"client_credentials"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.oauthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned empty access_token")
	}
	return body.AccessToken, body.ExpiresIn, nil
}

type helixUser struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
}

type helixVideo struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	CreatedAt    string `json:"created_at"`
	PublishedAt  string `json:"published_at"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Duration     string `json:"duration"`
}

func (t *Twitch) fetchUser(ctx context.Context, token, login string) (helixUser, error) {
	var body struct {
		Data []helixUser `json:"data"`
	}
	if err := t.helixGet(ctx, token, "/users?login="+url.QueryEscape(login), &body); err != nil {
		return helixUser{}, err
	}
	if len(body.Data) == 0 {
		return helixUser{}, fmt.Errorf("twitch user %q not found", login)
	}
	return body.Data[0], nil
}

func (t *Twitch) fetchVideos(ctx context.Context, token, userID string) ([]helixVideo, error) {
	var body struct {
		Data []helixVideo `json:"data"`
	}
	query := "/videos?user_id=" + url.QueryEscape(userID) + "&type=archive&first=100"
	if err := t.helixGet(ctx, token, query, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (t *Twitch) helixGet(ctx context.Context, token, pathAndQuery string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.helixBase+pathAndQuery, nil)
	if err != nil {
		return fmt.Errorf("build helix request: %w", err)
	}
	req.Header.Set("Client-Id", t.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("helix request %s: %w", pathAndQuery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix request %s: unexpected status %d", pathAndQuery, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode helix response: %w", err)
	}
	return nil
}

// twitchDurationSecs parses Helix duration strings like "3h20m10s".
// Anything malformed counts as zero.
func twitchDurationSecs(s string) int64 {
	m := twitchDurationRegex.FindStringSubmatch(s)
	if m == nil || s == "" {
		return 0
	}
	var total int64
	for i, mult := range []int64{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0
		}
		total += n * mult
	}
	return total
}

// helixThumbnail substitutes the size placeholders Helix leaves in
// thumbnail URLs.
func helixThumbnail(raw string) string {
	return strings.NewReplacer("%{width}", "512", "%{height}", "288").Replace(raw)
}

func parseHelixTime(candidates ...string) time.Time {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, c); err == nil {
			return ts
		}
	}
	return time.Time{}
}
