// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vodcast/internal/config"
	"github.com/ManuGH/vodcast/internal/ratelimit"
	"github.com/ManuGH/vodcast/internal/transcoder"
)

const genericRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
 <channel>
  <title>Generic Cast</title>
  <description>d</description>
  <link>https://pod.example</link>
  <language>en</language>
  <item>
   <title>Episode One</title><guid>ep-1</guid>
   <link>https://pod.example/ep1</link>
   <pubDate>Tue, 03 Jun 2025 10:00:00 +0000</pubDate>
   <itunes:duration>00:02:00</itunes:duration>
   <enclosure url="https://cdn.example/ep1.mp3" type="audio/mpeg" length="9"/>
  </item>
 </channel>
</rss>`

func TestFeedEndToEnd(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(genericRSS))
	}))
	defer upstream.Close()

	ts := newTestServer(t, nil)
	target := "/transcodize_rss?url=" + url.QueryEscape(upstream.URL+"/feed")

	rec := get(ts, target, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Episode One")
	assert.Contains(t, body, "http://example.com/transcode_media/to_mp3?bitrate=192")
	assert.Equal(t, int32(1), hits.Load())

	rec2 := get(ts, target, nil)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, body, rec2.Body.String(), "cached copy is byte identical")
	assert.Equal(t, int32(1), hits.Load(), "cache hit must not refetch upstream")
}

func TestFeedDeniedWithoutOutboundRequest(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(genericRSS))
	}))
	defer upstream.Close()

	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.ValidURLDomains = []string{"media.example"}
	})

	rec := get(ts, "/transcodize_rss?url="+url.QueryEscape(upstream.URL+"/feed"), nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not allowed")
	assert.Equal(t, int32(0), hits.Load(), "denied url must never be fetched")
}

func TestFeedBadURLParam(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		target string
	}{
		{"missing", "/transcodize_rss"},
		{"empty", "/transcodize_rss?url="},
		{"no scheme", "/transcodize_rss?url=media.example%2Ffeed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(ts, tt.target, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "url parameter")
		})
	}
}

func TestFeedUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	ts := newTestServer(t, nil)

	rec := get(ts, "/transcodize_rss?url="+url.QueryEscape(upstream.URL+"/feed"), nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "feed generation failed")
}

func TestFeedRateLimited(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimitRPS = 1.0 / 60.0
		cfg.RateLimitBurst = 1
	})

	first := get(ts, "/transcodize_rss", nil)
	assert.Equal(t, http.StatusBadRequest, first.Code, "first request passes the limiter")

	second := get(ts, "/transcodize_rss", nil)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), "rate_limit_exceeded")
}

func transcodeTarget(mediaURL string, bitrate, duration string) string {
	return "/transcode_media/to_mp3?url=" + url.QueryEscape(mediaURL) +
		"&bitrate=" + bitrate + "&duration=" + duration
}

func TestTranscodeFullEntity(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := get(ts, transcodeTarget("http://media.example/ep1.mp4", "192", "60"), nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "bytes 0-1439999/1440000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "1440000", rec.Header().Get("Content-Length"))
	assert.Equal(t, "MP3DATA", rec.Body.String())
}

func TestTranscodePartialContent(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := get(ts, transcodeTarget("http://media.example/ep1.mp4", "192", "60"),
		map[string]string{"Range": "bytes=720000-"})

	require.Equal(t, http.StatusPartialContent, rec.Code, rec.Body.String())
	assert.Equal(t, "bytes 720000-1439999/1440000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "720000", rec.Header().Get("Content-Length"))
}

func TestTranscodeMalformedRange(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := get(ts, transcodeTarget("http://media.example/ep1.mp4", "192", "60"),
		map[string]string{"Range": "pages=1-2"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "malformed")
}

func TestTranscodeUnsatisfiableRange(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := get(ts, transcodeTarget("http://media.example/ep1.mp4", "192", "60"),
		map[string]string{"Range": "bytes=2000000-"})

	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsatisfiable")
}

func TestTranscodeOpusIgnoresRange(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Codec = config.CodecOpus
	})

	rec := get(ts, transcodeTarget("http://media.example/ep1.mp4", "192", "60"),
		map[string]string{"Range": "bytes=720000-"})

	require.Equal(t, http.StatusOK, rec.Code, "webm offsets are not seekable, range is ignored")
	assert.Equal(t, "audio/webm", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1440000", rec.Header().Get("Content-Length"))
}

func TestTranscodeDisabled(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.TranscodeEnabled = false
	})

	rec := get(ts, transcodeTarget("http://media.example/ep1.mp4", "192", "60"), nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")
}

func TestTranscodeDeniedHost(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := get(ts, transcodeTarget("http://internal.example/page", "192", "60"), nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not allowed")
}

func TestTranscodeParamValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		target string
		detail string
	}{
		{"missing url", "/transcode_media/to_mp3?bitrate=192&duration=60", "url parameter"},
		{"bad bitrate", transcodeTarget("http://media.example/e.mp4", "abc", "60"), "bitrate"},
		{"zero bitrate", transcodeTarget("http://media.example/e.mp4", "0", "60"), "bitrate"},
		{"bad duration", transcodeTarget("http://media.example/e.mp4", "192", "abc"), "duration"},
		{"negative duration", transcodeTarget("http://media.example/e.mp4", "192", "-1"), "duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(ts, tt.target, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.detail)
		})
	}
}

func TestTranscodeSpawnFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.trans = transcoder.New("/nonexistent/ffmpeg")

	rec := get(ts, transcodeTarget("http://media.example/ep1.mp4", "192", "60"), nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "transcoder unavailable")
}

func TestTranscodeSpawnLimited(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.spawnLim = ratelimit.New(ratelimit.Config{
		GlobalRate:      0,
		GlobalBurst:     0,
		PerIPRate:       1,
		PerIPBurst:      1,
		CleanupInterval: time.Minute,
	})

	rec := get(ts, transcodeTarget("http://media.example/ep1.mp4", "192", "60"), nil)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
