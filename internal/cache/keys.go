// SPDX-License-Identifier: MIT

package cache

import "time"

// Key namespaces and singletons. The composite keys embed the upstream URL
// verbatim so distinct inputs never collide.
const (
	KeyVersion     = "version"
	KeyTwitchOAuth = "twitch_oauth_credentials"

	KeyDurationLock      = "youtube_duration_lock"
	KeyDurationQueue     = "youtube_duration_queue"
	KeyDurationBatch     = "youtube_duration_batch"
	KeyDurationSemaphore = "yt_duration_semaphore"
)

// Cache TTLs per record kind.
const (
	TTLStreamURL = 18000 * time.Second
	TTLDuration  = 86400 * time.Second
	TTLChannelID = 9000000 * time.Second
	TTLFeed      = 600 * time.Second
)

// StreamURLKey caches the resolved audio stream URL for a media page URL.
func StreamURLKey(url string) string {
	return "cached_yt_stream_url=" + url
}

// DurationKey caches the resolved duration in seconds for a media URL.
func DurationKey(url string) string {
	return "cached_yt_video_duration=" + url
}

// ChannelIDKey caches the channel id resolved from a vanity channel URL.
func ChannelIDKey(url string) string {
	return "youtube_channel_username_to_id=" + url
}

// FeedKey caches an enriched feed, keyed by the transcode service URL, the
// upstream feed URL, and whether transcoding was enabled for the build.
func FeedKey(transcodeURL, feedURL string, transcodeEnabled bool) string {
	enabled := "false"
	if transcodeEnabled {
		enabled = "true"
	}
	return "cached_transcodizer=" + transcodeURL + "|" + feedURL + "|" + enabled
}
