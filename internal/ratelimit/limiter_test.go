// SPDX-License-Identifier: MIT

package ratelimit

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestLimiterGlobal(t *testing.T) {
	config := Config{
		GlobalRate:      10,
		GlobalBurst:     20,
		PerIPRate:       100,
		PerIPBurst:      200,
		CleanupInterval: 1 * time.Minute,
	}
	limiter := New(config)

	before := counterValue(t, rateLimitExceeded.WithLabelValues("global"))

	allowed := 0
	for i := 0; i < 25; i++ {
		if limiter.Allow("192.168.1.1") {
			allowed++
		}
	}

	// Should be around 20 (the global burst size).
	if allowed < 19 || allowed > 21 {
		t.Errorf("expected ~20 spawns to pass with burst=20, got %d", allowed)
	}

	rejected := counterValue(t, rateLimitExceeded.WithLabelValues("global")) - before
	if rejected != float64(25-allowed) {
		t.Errorf("exceeded counter moved by %v, want %d", rejected, 25-allowed)
	}
}

func TestLimiterPerIP(t *testing.T) {
	config := Config{
		GlobalRate:      100,
		GlobalBurst:     200,
		PerIPRate:       5,
		PerIPBurst:      10,
		CleanupInterval: 1 * time.Minute,
	}
	limiter := New(config)

	ip := "192.168.1.3"
	allowed := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow(ip) {
			allowed++
		}
	}

	// Should be around 10 (the per-IP burst size).
	if allowed < 9 || allowed > 11 {
		t.Errorf("expected ~10 per-IP spawns to pass with burst=10, got %d", allowed)
	}

	// A different IP gets its own bucket.
	allowed2 := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("192.168.1.4") {
			allowed2++
		}
	}

	if allowed2 < 9 || allowed2 > 11 {
		t.Errorf("expected ~10 spawns for second IP, got %d", allowed2)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "X-Forwarded-For single IP",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1"},
			remoteAddr: "192.168.1.1:12345",
			want:       "203.0.113.1",
		},
		{
			name:       "X-Forwarded-For multiple IPs",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 192.168.1.1, 10.0.0.1"},
			remoteAddr: "127.0.0.1:12345",
			want:       "203.0.113.1",
		},
		{
			name:       "X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.2"},
			remoteAddr: "192.168.1.1:12345",
			want:       "203.0.113.2",
		},
		{
			name:       "Fallback to RemoteAddr",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.100:54321",
			want:       "192.168.1.100",
		},
		{
			name:       "X-Forwarded-For with spaces",
			headers:    map[string]string{"X-Forwarded-For": "  203.0.113.5  "},
			remoteAddr: "192.168.1.1:12345",
			want:       "203.0.113.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			req.RemoteAddr = tt.remoteAddr

			got := GetClientIP(req)
			if got != tt.want {
				t.Errorf("GetClientIP() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLimiterCleanup(t *testing.T) {
	config := Config{
		GlobalRate:      100,
		GlobalBurst:     200,
		PerIPRate:       10,
		PerIPBurst:      20,
		CleanupInterval: 100 * time.Millisecond,
	}
	limiter := New(config)

	for i := 0; i < 10; i++ {
		limiter.Allow(fmt.Sprintf("192.168.1.%d", 100+i))
	}

	limiter.mu.Lock()
	countBefore := len(limiter.perIP)
	limiter.mu.Unlock()

	if countBefore != 10 {
		t.Errorf("expected 10 IP limiters, got %d", countBefore)
	}

	time.Sleep(150 * time.Millisecond)

	// The next admission triggers the cleanup and re-registers its own IP.
	limiter.Allow("192.168.1.200")

	limiter.mu.Lock()
	countAfter := len(limiter.perIP)
	limiter.mu.Unlock()

	if countAfter != 1 {
		t.Errorf("expected 1 IP limiter after cleanup, got %d", countAfter)
	}
}

func BenchmarkLimiterAllow(b *testing.B) {
	limiter := New(DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow("192.168.1.1")
	}
}

func BenchmarkGetClientIP(b *testing.B) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
	req.RemoteAddr = "192.168.1.100:54321"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GetClientIP(req)
	}
}
