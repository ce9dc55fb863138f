// SPDX-License-Identifier: MIT

// Package ratelimit gates transcoder spawns. Every admitted request forks an
// ffmpeg child, so the buckets here bound process creation, not bandwidth.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vodcast",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total transcode spawn rejections",
	},
	[]string{"limit_type"},
)

// Config holds spawn limiting configuration.
type Config struct {
	// Global limits across all clients.
	GlobalRate  rate.Limit // spawns per second
	GlobalBurst int        // max burst size

	// Per-IP limits.
	PerIPRate  rate.Limit
	PerIPBurst int

	// Cleanup interval for per-IP limiters.
	CleanupInterval time.Duration
}

// DefaultConfig returns limits sized for ffmpeg children: a podcast client
// seeking through an episode fires a handful of range requests in quick
// succession, anything beyond that is abuse.
func DefaultConfig() Config {
	return Config{
		GlobalRate:  10, // 10 spawns/s across all subscribers
		GlobalBurst: 20,

		PerIPRate:  2, // one client seeking produces short bursts
		PerIPBurst: 6,

		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter manages spawn rate limiting for the transcoding endpoint.
type Limiter struct {
	config Config

	global *rate.Limiter
	perIP  map[string]*rate.Limiter
	mu     sync.Mutex

	lastCleanup time.Time
}

// New creates a spawn limiter with the given config.
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perIP:       make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a transcoder may be spawned for the given client.
func (l *Limiter) Allow(clientIP string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global").Inc()
		return false
	}

	// Cleanup before registering the current client so its bucket survives.
	l.maybeCleanup()

	if !l.ipLimiter(clientIP).Allow() {
		rateLimitExceeded.WithLabelValues("per_ip").Inc()
		return false
	}

	return true
}

// ipLimiter returns the rate limiter for a specific IP.
func (l *Limiter) ipLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.perIP[ip]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerIPRate, l.config.PerIPBurst)
		l.perIP[ip] = limiter
	}

	return limiter
}

// maybeCleanup drops all per-IP limiters once the cleanup interval has
// passed. A client admitted after the sweep starts over with a full bucket.
func (l *Limiter) maybeCleanup() {
	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.perIP = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}

// GetClientIP extracts the real client IP from the request, honoring the
// usual reverse-proxy headers before falling back to the socket address.
func GetClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2".
		// The first one is the original client.
		if first, _, found := strings.Cut(xff, ","); found {
			xff = first
		}
		xff = strings.TrimSpace(xff)
		if xff != "" {
			return xff
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
