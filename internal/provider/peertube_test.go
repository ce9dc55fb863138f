// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vodcast/internal/config"
)

func TestPeerTubeMatches(t *testing.T) {
	p := NewPeerTube(config.Config{PeerTubeHosts: []string{"peertube.example", "*.tube.example"}}, &http.Client{})

	assert.True(t, p.Matches(mustParse(t, "https://peertube.example/videos/watch/x")))
	assert.True(t, p.Matches(mustParse(t, "https://vids.tube.example/w/x")))
	assert.False(t, p.Matches(mustParse(t, "https://other.example/videos/watch/x")))
}

func TestPeerTubeNoConfiguredHostsMatchesNothing(t *testing.T) {
	p := NewPeerTube(config.Config{}, &http.Client{})
	assert.False(t, p.Matches(mustParse(t, "https://peertube.example/videos/watch/x")))
}

func TestPeerTubeStreamURL(t *testing.T) {
	const videoID = "9c9de5e8-0a1e-484a-b099-e80766180a6d"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/videos/"+videoID, r.URL.Path)
		_, _ = w.Write([]byte(`{"streamingPlaylists":[{"playlistUrl":"https://peertube.example/hls/master.m3u8"}]}`))
	}))
	t.Cleanup(server.Close)

	p := NewPeerTube(config.Config{}, server.Client())
	got, err := p.StreamURL(context.Background(), mustParse(t, server.URL+"/videos/watch/"+videoID))
	require.NoError(t, err)
	assert.Equal(t, "https://peertube.example/hls/master.m3u8", got)
}

func TestPeerTubeStreamURLWithoutUUID(t *testing.T) {
	p := NewPeerTube(config.Config{}, &http.Client{})
	_, err := p.StreamURL(context.Background(), mustParse(t, "https://peertube.example/videos/watch/not-a-uuid"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no video uuid")
}

func TestPeerTubeStreamURLWithoutPlaylists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"streamingPlaylists":[]}`))
	}))
	t.Cleanup(server.Close)

	p := NewPeerTube(config.Config{}, server.Client())
	_, err := p.StreamURL(context.Background(), mustParse(t, server.URL+"/w/9c9de5e8-0a1e-484a-b099-e80766180a6d"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no streaming playlist")
}

func TestPeerTubeGenerateFeedIsPassthrough(t *testing.T) {
	const rss = `<?xml version="1.0"?><rss version="2.0"><channel><title>pt</title></channel></rss>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feeds/videos.xml", r.URL.Path)
		_, _ = w.Write([]byte(rss))
	}))
	t.Cleanup(server.Close)

	p := NewPeerTube(config.Config{}, server.Client())
	body, err := p.GenerateFeed(context.Background(), mustParse(t, server.URL+"/feeds/videos.xml"))
	require.NoError(t, err)
	assert.Equal(t, rss, string(body))
}
