// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestSemaphoreImmediateAdmission(t *testing.T) {
	_, store := setupMiniRedis(t)
	sem := NewSemaphore(store, KeyDurationSemaphore)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := sem.Acquire(ctx, "caller-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := sem.Release(ctx, "caller-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestSemaphoreAdmitsUpToLimit(t *testing.T) {
	_, store := setupMiniRedis(t)
	sem := NewSemaphore(store, KeyDurationSemaphore)
	sem.poll = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Ranks 0..limit are admitted without waiting.
	for i := 0; i <= sem.limit; i++ {
		if err := sem.Acquire(ctx, fmt.Sprintf("holder-%d", i)); err != nil {
			t.Fatalf("Acquire holder-%d: %v", i, err)
		}
	}

	// The next caller must wait until a slot frees.
	waited := make(chan error, 1)
	go func() {
		waited <- sem.Acquire(ctx, "waiter")
	}()

	select {
	case err := <-waited:
		t.Fatalf("waiter admitted with full semaphore: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := sem.Release(ctx, "holder-0"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case err := <-waited:
		if err != nil {
			t.Fatalf("waiter failed after slot freed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not admitted after slot freed")
	}
}

func TestSemaphoreSweepsStaleEntries(t *testing.T) {
	_, store := setupMiniRedis(t)
	sem := NewSemaphore(store, KeyDurationSemaphore)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// A holder whose score is older than the stale window.
	stale := float64(time.Now().Add(-700 * time.Second).Unix())
	if err := store.client.ZAdd(ctx, KeyDurationSemaphore, redis.Z{Score: stale, Member: "dead-caller"}).Err(); err != nil {
		t.Fatalf("seed stale member: %v", err)
	}

	if err := sem.Acquire(ctx, "live-caller"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if err := store.client.ZRank(ctx, KeyDurationSemaphore, "dead-caller").Err(); err != redis.Nil {
		t.Errorf("stale member should have been swept, got err=%v", err)
	}
}

func TestSemaphoreContextCancelRemovesEntry(t *testing.T) {
	_, store := setupMiniRedis(t)
	sem := NewSemaphore(store, KeyDurationSemaphore)
	sem.poll = 10 * time.Millisecond

	ctx := context.Background()
	for i := 0; i <= sem.limit; i++ {
		if err := sem.Acquire(ctx, fmt.Sprintf("holder-%d", i)); err != nil {
			t.Fatalf("Acquire holder-%d: %v", i, err)
		}
	}

	waitCtx, cancel := context.WithCancel(ctx)
	waited := make(chan error, 1)
	go func() {
		waited <- sem.Acquire(waitCtx, "cancelled-waiter")
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-waited:
		if err == nil {
			t.Fatal("expected error from cancelled Acquire")
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled Acquire did not return")
	}

	if err := store.client.ZRank(ctx, KeyDurationSemaphore, "cancelled-waiter").Err(); err != redis.Nil {
		t.Errorf("cancelled waiter should have removed its entry, got err=%v", err)
	}
}
