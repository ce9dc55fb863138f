// SPDX-License-Identifier: MIT

// Package config resolves the runtime configuration from the process
// environment. All options are read once at startup; the resulting Config is
// immutable afterwards.
package config

import (
	"net"
	"strings"

	"github.com/ManuGH/vodcast/internal/log"
)

// Codec identifies the audio codec used for transcoded streams.
type Codec string

const (
	CodecMP3       Codec = "MP3"
	CodecOpus      Codec = "Opus"
	CodecOggVorbis Codec = "OggVorbis"
)

// ParseCodec normalizes a codec alias from the environment. The second return
// value reports whether the alias was recognized.
func ParseCodec(alias string) (Codec, bool) {
	switch strings.ToUpper(strings.TrimSpace(alias)) {
	case "", "MP3":
		return CodecMP3, true
	case "OPUS":
		return CodecOpus, true
	case "OGG", "VORBIS", "OGG_VORBIS", "OGGVORBIS":
		return CodecOggVorbis, true
	default:
		return CodecMP3, false
	}
}

// MIME returns the content type served for streams in this codec.
func (c Codec) MIME() string {
	switch c {
	case CodecOpus, CodecOggVorbis:
		return "audio/webm"
	default:
		return "audio/mpeg"
	}
}

// Extension returns the enclosure file extension advertised for this codec.
// Podcast clients commonly dispatch on the trailing extension, so MP3 keeps
// ".mp3" even though the parameter is only decorative for other codecs.
func (c Codec) Extension() string {
	switch c {
	case CodecOpus, CodecOggVorbis:
		return ".webm"
	default:
		return ".mp3"
	}
}

// SeekSupported reports whether byte-range seeking maps cleanly onto time
// offsets for this codec. Only constant-bitrate MP3 does; Opus and Vorbis are
// served in a WebM container whose byte offsets are not seek-addressable.
func (c Codec) SeekSupported() bool {
	return c == CodecMP3
}

// Config is the resolved runtime configuration.
type Config struct {
	BindAddress string
	Port        int

	RedisAddr string

	BitrateKbit      int
	TranscodeEnabled bool
	Codec            Codec
	Subfolder        string

	ValidURLDomains []string

	YouTubeAPIKey string

	TwitchClientID string
	TwitchSecret   string

	TwitchToPodcastURL string
	PodTubeURL         string

	PeerTubeHosts []string

	FFmpegPath string
	YTDLPPath  string

	RateLimitRPS   float64
	RateLimitBurst int

	OTelEnabled    bool
	OTelExporter   string
	OTelEndpoint   string
	OTelSampleRate float64
}

// defaultValidDomains is applied when VALID_URL_DOMAINS is unset: the hosts
// YouTube and Twitch serve media from, plus their CDNs.
const defaultValidDomains = "*.youtube.com,youtube.com,youtu.be,*.twitch.tv,twitch.tv,*.googlevideo.com,*.cloudfront.net"

// FromEnv resolves the full configuration from the process environment.
func FromEnv() Config {
	logger := log.WithComponent("config")

	codecAlias := ParseString("AUDIO_CODEC", "MP3")
	codec, known := ParseCodec(codecAlias)
	if !known {
		logger.Warn().
			Str("key", "AUDIO_CODEC").
			Str("value", codecAlias).
			Str("fallback", string(CodecMP3)).
			Msg("unknown audio codec, falling back to MP3")
	}

	cfg := Config{
		BindAddress: ParseString("BIND_ADDRESS", "0.0.0.0"),
		Port:        ParseInt("PORT", 8080),

		RedisAddr: net.JoinHostPort(
			ParseString("REDIS_ADDRESS", "localhost"),
			ParseString("REDIS_PORT", "6379"),
		),

		BitrateKbit:      ParseInt("MP3_BITRATE", 192),
		TranscodeEnabled: ParseBool("TRANSCODE", true),
		Codec:            codec,
		Subfolder:        NormalizeSubfolder(ParseString("SUBFOLDER", "")),

		ValidURLDomains: splitCSV(ParseString("VALID_URL_DOMAINS", defaultValidDomains)),

		YouTubeAPIKey: ParseString("YT_API_KEY", ""),

		TwitchClientID: ParseString("TWITCH_CLIENT_ID", ""),
		TwitchSecret:   ParseString("TWITCH_SECRET", ""),

		TwitchToPodcastURL: NormalizeServiceURL(ParseString("TWITCH_TO_PODCAST_URL", "")),
		PodTubeURL:         NormalizeServiceURL(ParseString("PODTUBE_URL", "")),

		PeerTubeHosts: splitCSV(ParseString("PEERTUBE_VALID_HOSTS", "")),

		FFmpegPath: ParseString("FFMPEG_PATH", "ffmpeg"),
		YTDLPPath:  ParseString("YTDLP_PATH", "yt-dlp"),

		RateLimitRPS:   ParseFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: ParseInt("RATE_LIMIT_BURST", 10),

		OTelEnabled:    ParseBool("OTEL_ENABLED", false),
		OTelExporter:   ParseString("OTEL_EXPORTER", "grpc"),
		OTelEndpoint:   ParseString("OTEL_ENDPOINT", "localhost:4317"),
		OTelSampleRate: ParseFloat("OTEL_SAMPLE_RATE", 1.0),
	}

	return cfg
}

// NormalizeSubfolder forces a leading slash and strips trailing slashes.
// An empty value stays empty (no mount prefix).
func NormalizeSubfolder(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "/" {
		return ""
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return strings.TrimRight(s, "/")
}

// NormalizeServiceURL prepares a helper-service base URL. A bare host gets an
// http scheme; an explicit scheme is preserved. Trailing slashes are stripped
// so paths can be appended directly.
func NormalizeServiceURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return strings.TrimRight(s, "/")
}

// HostPattern converts one allow-list entry into a regex source. "*" becomes
// ".+" and literal dots are escaped, so "*.youtube.com" matches any
// youtube.com subdomain.
func HostPattern(domain string) string {
	escaped := strings.ReplaceAll(domain, ".", `\.`)
	return strings.ReplaceAll(escaped, "*", ".+")
}

// DomainPatterns converts the allow-list entries into regex sources.
func (c Config) DomainPatterns() []string {
	patterns := make([]string, 0, len(c.ValidURLDomains))
	for _, domain := range c.ValidURLDomains {
		domain = strings.TrimSpace(domain)
		if domain == "" {
			continue
		}
		patterns = append(patterns, HostPattern(domain))
	}
	return patterns
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
