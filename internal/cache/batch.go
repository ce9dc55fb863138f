// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Batch bundles the three coordination records behind the distributed
// duration lookup: a FIFO queue of pending ids, an NX lock electing the
// batch leader, and a hash of resolved results.
type Batch struct {
	store *Store

	queue string
	hash  string
	lock  string

	lockTTL time.Duration
}

// NewDurationBatch returns the batch over the standard duration keys.
func NewDurationBatch(store *Store) *Batch {
	return &Batch{
		store:   store,
		queue:   KeyDurationQueue,
		hash:    KeyDurationBatch,
		lock:    KeyDurationLock,
		lockTTL: 10 * time.Second,
	}
}

// Enqueue appends id to the pending queue.
func (b *Batch) Enqueue(ctx context.Context, id string) error {
	if err := b.store.client.RPush(ctx, b.queue, id).Err(); err != nil {
		return fmt.Errorf("batch enqueue: %w", err)
	}
	return nil
}

// TryLead attempts to become the batch leader. The lock TTL bounds the batch
// window and guarantees forward progress if a leader crashes.
func (b *Batch) TryLead(ctx context.Context) bool {
	return b.store.TryLock(ctx, b.lock, b.lockTTL)
}

// Pending returns the number of queued ids.
func (b *Batch) Pending(ctx context.Context) (int64, error) {
	n, err := b.store.client.LLen(ctx, b.queue).Result()
	if err != nil {
		return 0, fmt.Errorf("batch queue length: %w", err)
	}
	return n, nil
}

// Tail reads up to n ids from the end of the queue and returns them together
// with the index the batch started at, which Commit needs for the trim.
func (b *Batch) Tail(ctx context.Context, n int64) ([]string, int64, error) {
	length, err := b.Pending(ctx)
	if err != nil {
		return nil, 0, err
	}
	if length == 0 {
		return nil, 0, nil
	}
	start := length - n
	if start < 0 {
		start = 0
	}
	ids, err := b.store.client.LRange(ctx, b.queue, start, length-1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("batch queue range: %w", err)
	}
	return ids, start, nil
}

// Commit publishes the resolved durations, removes the processed tail from
// the queue, and drops the leader lock, all in one pipeline. The leader keeps
// iterating without the lock while the queue stays non-empty; followers only
// ever poll the hash.
func (b *Batch) Commit(ctx context.Context, results map[string]int64, batchStart int64) error {
	_, err := b.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for id, secs := range results {
			pipe.HSet(ctx, b.hash, id, strconv.FormatInt(secs, 10))
		}
		if batchStart > 0 {
			pipe.LTrim(ctx, b.queue, 0, batchStart-1)
		} else {
			// LTRIM 0 -1 would keep the whole list, so a fully processed
			// queue is deleted outright.
			pipe.Del(ctx, b.queue)
		}
		pipe.Del(ctx, b.lock)
		return nil
	})
	if err != nil {
		return fmt.Errorf("batch commit: %w", err)
	}
	return nil
}

// Result looks up the resolved duration for id.
func (b *Batch) Result(ctx context.Context, id string) (int64, bool) {
	val, err := b.store.client.HGet(ctx, b.hash, id).Result()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		b.store.logger.Warn().Err(err).Str("id", id).Msg("batch result read failed")
		return 0, false
	}
	secs, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		b.store.logger.Warn().Str("id", id).Str("value", val).Msg("batch result not an integer")
		return 0, false
	}
	return secs, true
}
