// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// semaphoreLimit admits callers whose rank in the sorted set is at most
	// this value; entries above it wait.
	semaphoreLimit = 4

	// semaphoreStale is the age after which an abandoned entry is swept.
	// A caller that dies mid-hold is evicted on the next acquisition.
	semaphoreStale = 600 * time.Second

	semaphorePoll = time.Second
)

// Semaphore is a sliding-window admission-control primitive backed by a
// Redis sorted set. Members are caller identifiers, scores are UNIX
// timestamps; admission is rank-based, so waiters enter roughly in arrival
// order.
type Semaphore struct {
	store *Store
	name  string

	limit int
	stale time.Duration
	poll  time.Duration
}

// NewSemaphore returns a semaphore over the named sorted set.
func NewSemaphore(store *Store, name string) *Semaphore {
	return &Semaphore{
		store: store,
		name:  name,
		limit: semaphoreLimit,
		stale: semaphoreStale,
		poll:  semaphorePoll,
	}
}

// Acquire registers id and blocks until its rank admits it or ctx is done.
// Each attempt first sweeps entries older than the stale window.
func (s *Semaphore) Acquire(ctx context.Context, id string) error {
	now := time.Now()
	cutoff := strconv.FormatInt(now.Add(-s.stale).Unix(), 10)

	_, err := s.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, s.name, "-inf", cutoff)
		pipe.ZAdd(ctx, s.name, redis.Z{Score: float64(now.Unix()), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("semaphore register: %w", err)
	}

	for {
		rank, err := s.store.client.ZRank(ctx, s.name, id).Result()
		if err == redis.Nil {
			// Swept as stale while waiting; the hold expired.
			return fmt.Errorf("semaphore entry for %q expired while waiting", id)
		}
		if err != nil {
			return fmt.Errorf("semaphore rank: %w", err)
		}
		if rank <= int64(s.limit) {
			return nil
		}

		select {
		case <-ctx.Done():
			// Best effort removal so the slot frees before the stale sweep.
			_ = s.store.client.ZRem(context.WithoutCancel(ctx), s.name, id).Err()
			return ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

// Release removes id from the set, freeing its slot.
func (s *Semaphore) Release(ctx context.Context, id string) error {
	if err := s.store.client.ZRem(ctx, s.name, id).Err(); err != nil {
		return fmt.Errorf("semaphore release: %w", err)
	}
	return nil
}
