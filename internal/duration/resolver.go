// SPDX-License-Identifier: MIT

package duration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vodcast/internal/cache"
	"github.com/ManuGH/vodcast/internal/log"
	"github.com/ManuGH/vodcast/internal/telemetry"
	"github.com/ManuGH/vodcast/internal/ytdlp"
)

const defaultAPIBase = "https://www.googleapis.com/youtube/v3"

// Resolver answers "how long is this video" with a read-through cache in
// front of either the batched YouTube API path or a semaphore-guarded yt-dlp
// invocation.
type Resolver struct {
	store  *cache.Store
	batch  *cache.Batch
	sem    *cache.Semaphore
	runner *ytdlp.Runner

	apiKey  string
	apiBase string
	client  *http.Client
	logger  zerolog.Logger

	batchSize    int64
	leaderSettle time.Duration
	pollInterval time.Duration
	pollBudget   int
}

// New wires a Resolver over the shared store. An empty apiKey selects the
// yt-dlp fallback mode for every lookup.
func New(store *cache.Store, runner *ytdlp.Runner, apiKey string) *Resolver {
	return &Resolver{
		store:  store,
		batch:  cache.NewDurationBatch(store),
		sem:    cache.NewSemaphore(store, cache.KeyDurationSemaphore),
		runner: runner,

		apiKey:  apiKey,
		apiBase: defaultAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  log.WithComponent("duration"),

		batchSize:    50,
		leaderSettle: 300 * time.Millisecond,
		pollInterval: 150 * time.Millisecond,
		pollBudget:   100,
	}
}

// Duration resolves the duration in seconds for a media URL.
func (r *Resolver) Duration(ctx context.Context, mediaURL string) (int64, error) {
	key := cache.DurationKey(mediaURL)
	if raw, ok := r.store.Get(ctx, key); ok {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return secs, nil
		}
	}

	var secs int64
	var err error
	if r.apiKey != "" {
		id, ok := VideoID(mediaURL)
		if !ok {
			return 0, fmt.Errorf("no video id in %s", mediaURL)
		}
		secs, err = r.resolveBatched(ctx, id)
	} else {
		secs, err = r.resolveCLI(ctx, mediaURL)
	}
	if err != nil {
		return 0, err
	}

	r.store.Set(ctx, key, strconv.FormatInt(secs, 10), cache.TTLDuration)
	return secs, nil
}

// resolveCLI runs yt-dlp under the shared semaphore so a burst of cache
// misses cannot spawn an unbounded number of processes.
func (r *Resolver) resolveCLI(ctx context.Context, mediaURL string) (int64, error) {
	holder := uuid.NewString()
	if err := r.sem.Acquire(ctx, holder); err != nil {
		return 0, fmt.Errorf("duration semaphore: %w", err)
	}
	defer func() {
		if err := r.sem.Release(context.WithoutCancel(ctx), holder); err != nil {
			r.logger.Warn().Err(err).Msg("semaphore release failed")
		}
	}()

	text, err := r.runner.Duration(ctx, mediaURL)
	if err != nil {
		return 0, err
	}
	return Parse(text)
}

// resolveBatched enqueues the id, elects a leader over the shared lock, and
// polls the result hash. The leader keeps draining the queue without
// re-acquiring the lock; losing that re-entrancy would deadlock under
// sustained load because Commit drops the lock while siblings still enqueue.
func (r *Resolver) resolveBatched(ctx context.Context, id string) (int64, error) {
	if err := r.batch.Enqueue(ctx, id); err != nil {
		return 0, err
	}

	if r.batch.TryLead(ctx) {
		r.lead(ctx)
	}

	for i := 0; i < r.pollBudget; i++ {
		if secs, ok := r.batch.Result(ctx, id); ok {
			return secs, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
	return 0, fmt.Errorf("duration for video %s not resolved within poll budget", id)
}

// lead drains the queue in batches on behalf of all current waiters.
func (r *Resolver) lead(ctx context.Context) {
	ctx, span := telemetry.Tracer("vodcast.duration").Start(ctx, "duration.batch_drain")
	defer span.End()

	// Let sibling requests enqueue before the first drain.
	select {
	case <-ctx.Done():
		return
	case <-time.After(r.leaderSettle):
	}

	for {
		pending, err := r.batch.Pending(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Msg("batch leader queue check failed")
			return
		}
		if pending == 0 {
			return
		}

		ids, start, err := r.batch.Tail(ctx, r.batchSize)
		if err != nil {
			r.logger.Warn().Err(err).Msg("batch leader tail read failed")
			return
		}

		results, err := r.fetchDurations(ctx, ids)
		if err != nil {
			// The lock TTL frees a crashed or failing leader; waiters run
			// into their poll budget and surface the failure upstream.
			span.RecordError(err)
			r.logger.Warn().Err(err).Int("ids", len(ids)).Msg("duration batch fetch failed")
			return
		}

		if err := r.batch.Commit(ctx, results, start); err != nil {
			r.logger.Warn().Err(err).Msg("batch commit failed")
			return
		}

		r.logger.Debug().
			Int("resolved", len(results)).
			Int64("batch_start", start).
			Msg("duration batch committed")
	}
}

type videosResponse struct {
	Items []struct {
		ID             string `json:"id"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// fetchDurations asks the YouTube API for the durations of up to one batch of
// video ids in a single request.
func (r *Resolver) fetchDurations(ctx context.Context, ids []string) (map[string]int64, error) {
	endpoint := fmt.Sprintf("%s/videos?id=%s&part=contentDetails&key=%s",
		r.apiBase, url.QueryEscape(strings.Join(ids, ",")), url.QueryEscape(r.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("videos request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("videos request: unexpected status %d", resp.StatusCode)
	}

	var payload videosResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("videos response: %w", err)
	}

	results := make(map[string]int64, len(payload.Items))
	for _, item := range payload.Items {
		secs, err := ParseISO8601(item.ContentDetails.Duration)
		if err != nil {
			r.logger.Warn().
				Str("video_id", item.ID).
				Str("duration", item.ContentDetails.Duration).
				Msg("unparsable API duration, skipping")
			continue
		}
		results[item.ID] = secs
	}
	return results, nil
}

// VideoID extracts the video id from the common YouTube URL shapes.
func VideoID(mediaURL string) (string, bool) {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return "", false
	}
	if v := u.Query().Get("v"); v != "" {
		return v, true
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	host := strings.TrimPrefix(u.Hostname(), "www.")
	switch {
	case host == "youtu.be" && len(segments) >= 1 && segments[0] != "":
		return segments[0], true
	case len(segments) >= 2 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "v"):
		return segments[1], true
	}
	return "", false
}
