// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Feed attributes
	FeedProviderKey = "feed.provider"
	FeedHostKey     = "feed.host"
	FeedItemsKey    = "feed.items"
	FeedCachedKey   = "feed.cached"

	// Transcoding attributes
	TranscodeCodecKey    = "transcode.codec"
	TranscodeBitrateKey  = "transcode.bitrate_kbit"
	TranscodeSeekKey     = "transcode.seek_seconds"
	TranscodeDurationKey = "transcode.duration_seconds"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// FeedAttributes creates feed-build span attributes. Empty fields are
// omitted so spans stay compact for cache hits.
func FeedAttributes(provider, host string, items int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if provider != "" {
		attrs = append(attrs, attribute.String(FeedProviderKey, provider))
	}
	if host != "" {
		attrs = append(attrs, attribute.String(FeedHostKey, host))
	}
	if items >= 0 {
		attrs = append(attrs, attribute.Int(FeedItemsKey, items))
	}
	return attrs
}

// TranscodeAttributes creates transcoding-session span attributes.
func TranscodeAttributes(codec string, bitrateKbit int, seekSeconds float64, durationSecs int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TranscodeCodecKey, codec),
		attribute.Int(TranscodeBitrateKey, bitrateKbit),
		attribute.Float64(TranscodeSeekKey, seekSeconds),
		attribute.Int64(TranscodeDurationKey, durationSecs),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
