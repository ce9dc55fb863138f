// SPDX-License-Identifier: MIT

// Package cache provides the Redis-backed cache and coordination layer: TTL
// caches, a distributed NX lock, a sliding-window semaphore, and the batch
// queue used by the duration resolver. Redis is the only coordination
// authority; there is no in-process locking around these structures.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vodcast",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vodcast",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	})
	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vodcast",
		Subsystem: "cache",
		Name:      "errors_total",
		Help:      "Total cache operation failures",
	}, []string{"op"})
)

const opTimeout = 2 * time.Second

// Store is the Redis-backed key-value store shared by every component.
type Store struct {
	client *redis.Client
	logger zerolog.Logger
}

// Config holds Redis connection configuration.
type Config struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// New connects to Redis and verifies the connection with a ping.
func New(config Config, logger zerolog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", config.Addr).
		Int("db", config.DB).
		Msg("connected to Redis")

	return &Store{client: client, logger: logger}, nil
}

// NewFromClient wraps an existing Redis client. Used by tests.
func NewFromClient(client *redis.Client, logger zerolog.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Get retrieves a string value. A store failure is reported as a miss so that
// callers fall back to recomputing; cache errors never shadow computation.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		cacheMisses.Inc()
		return "", false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		cacheErrors.WithLabelValues("get").Inc()
		cacheMisses.Inc()
		return "", false
	}

	cacheHits.Inc()
	return val, true
}

// Set stores a string value with a TTL. Failures are logged and swallowed.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
		cacheErrors.WithLabelValues("set").Inc()
	}
}

// GetJSON retrieves a value and unmarshals it into dest.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("json unmarshal failed")
		cacheErrors.WithLabelValues("get").Inc()
		return false
	}
	return true
}

// SetJSON marshals value and stores it with a TTL.
func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("json marshal failed")
		return
	}
	s.Set(ctx, key, string(data), ttl)
}

// Delete removes a key. Failures are logged and swallowed.
func (s *Store) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis delete failed")
		cacheErrors.WithLabelValues("del").Inc()
	}
}

// TryLock attempts to take the named lock with SET NX EX semantics.
// It returns true when this caller now holds the lock.
func (s *Store) TryLock(ctx context.Context, key string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis setnx failed")
		cacheErrors.WithLabelValues("lock").Inc()
		return false
	}
	return ok
}

// Unlock releases the named lock.
func (s *Store) Unlock(ctx context.Context, key string) {
	s.Delete(ctx, key)
}

// EnsureVersion flushes the entire database when the stored version differs
// from current, then records current. A coarse correctness guarantee after a
// binary upgrade: stale cached payloads from older builds never survive.
func (s *Store) EnsureVersion(ctx context.Context, current string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stored, err := s.client.Get(ctx, KeyVersion).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read version key: %w", err)
	}
	if stored == current {
		return nil
	}

	if err := s.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("flush on version change: %w", err)
	}
	if err := s.client.Set(ctx, KeyVersion, current, 0).Err(); err != nil {
		return fmt.Errorf("write version key: %w", err)
	}

	s.logger.Info().
		Str("old", stored).
		Str("new", current).
		Msg("version changed, cache flushed")
	return nil
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
