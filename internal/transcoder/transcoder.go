// SPDX-License-Identifier: MIT

package transcoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/vodcast/internal/config"
	"github.com/ManuGH/vodcast/internal/log"
	"github.com/ManuGH/vodcast/internal/procgroup"
	"github.com/ManuGH/vodcast/internal/telemetry"
)

const (
	// chunkSize is the read granularity towards the client. Small enough to
	// keep scrubbing responsive, large enough to stay off the syscall floor.
	chunkSize = 1024

	// readRetries bounds how often a stalled ffmpeg read is retried before
	// the session is surfaced as failed.
	readRetries  = 10
	retryBackoff = time.Second

	// killGrace is how long a terminated child may linger before the whole
	// process group is force-killed.
	killGrace = 5 * time.Second
)

var (
	transcodeStarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vodcast",
		Name:      "transcode_starts_total",
		Help:      "Total ffmpeg children spawned",
	})
	transcodeExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vodcast",
		Name:      "transcode_exits_total",
		Help:      "Transcode sessions ended, by reason",
	}, []string{"reason"})
	transcodeActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vodcast",
		Name:      "transcode_active_streams",
		Help:      "Currently running ffmpeg children",
	})
)

// Transcoder spawns ffmpeg children that encode upstream media to the
// configured audio codec.
type Transcoder struct {
	path   string
	logger zerolog.Logger
}

// New returns a Transcoder using the given ffmpeg binary path ("" uses PATH
// lookup).
func New(ffmpegPath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{
		path:   ffmpegPath,
		logger: log.WithComponent("transcoder"),
	}
}

// Start spawns the ffmpeg child for one session. The caller must call Close
// on the returned Session exactly once, after Stream has returned.
func (t *Transcoder) Start(ctx context.Context, p Params, plan Plan) (*Session, error) {
	args := buildArgs(p, plan)

	// #nosec G204 -- the binary path comes from operator config and the URL
	// has passed the provider allow-list before reaching this point.
	cmd := exec.CommandContext(ctx, t.path, args...)
	procgroup.Set(cmd)
	cmd.Cancel = func() error { return procgroup.Terminate(cmd) }
	cmd.WaitDelay = killGrace

	// stderr is discarded: ffmpeg chatters on stderr even on success, and a
	// failed child already surfaces through the exit status.
	cmd.Stderr = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	transcodeStarts.Inc()
	transcodeActive.Inc()

	t.logger.Debug().
		Str("url", p.MediaURL).
		Int("bitrate_kbit", p.BitrateKbit).
		Float64("seek_secs", plan.SeekSecs).
		Msg("ffmpeg started")

	return &Session{
		cmd:    cmd,
		stdout: stdout,
		params: p,
		plan:   plan,
		logger: t.logger,
	}, nil
}

// Session is one running ffmpeg child bound to one HTTP response.
type Session struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	params Params
	plan   Plan
	logger zerolog.Logger

	reason   string
	streamed int64
}

// Stream copies ffmpeg output to w in fixed-size chunks until EOF, the
// context ends, or the client goes away. Transient read failures are retried
// with backoff; only an exhausted retry budget is an error.
func (s *Session) Stream(ctx context.Context, w io.Writer) error {
	ctx, span := telemetry.Tracer("vodcast.transcoder").Start(ctx, "transcode.stream",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()
	span.SetAttributes(telemetry.TranscodeAttributes(
		string(s.params.Codec), s.params.BitrateKbit, s.plan.SeekSecs, s.params.DurationSecs,
	)...)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, chunkSize)
	retries := 0

	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			retries = 0
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.reason = "client_gone"
				s.logger.Debug().Err(werr).Int64("streamed", s.streamed).Msg("client went away")
				return nil
			}
			s.streamed += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			if ctx.Err() != nil {
				// The child was torn down by cancellation; the pipe closing
				// is a consequence, not a completed stream.
				s.reason = "cancelled"
				return nil
			}
			s.reason = "eof"
			return nil
		default:
			if ctx.Err() != nil {
				s.reason = "cancelled"
				return nil
			}
			retries++
			if retries > readRetries {
				s.reason = "read_error"
				return fmt.Errorf("ffmpeg output stalled after %d retries: %w", readRetries, err)
			}
			select {
			case <-ctx.Done():
				s.reason = "cancelled"
				return nil
			case <-time.After(retryBackoff):
			}
		}
	}
}

// Close tears the child down and records the session outcome. Safe after a
// child that already exited.
func (s *Session) Close() {
	_ = procgroup.Terminate(s.cmd)
	graceKill := time.AfterFunc(killGrace, func() { _ = procgroup.Kill(s.cmd) })
	err := s.cmd.Wait()
	graceKill.Stop()

	reason := s.reason
	if reason == "" {
		reason = "aborted"
	}
	transcodeActive.Dec()
	transcodeExits.WithLabelValues(reason).Inc()

	s.logger.Debug().
		Str("reason", reason).
		Int64("streamed", s.streamed).
		AnErr("wait", err).
		Msg("ffmpeg session closed")
}

// buildArgs renders the ffmpeg invocation. The argument set is the wire
// contract with ffmpeg: seek first so input decoding starts near the target,
// CBR enforced via -ab and -maxrate so the range math in PlanRange holds.
func buildArgs(p Params, plan Plan) []string {
	codecName, container := codecArgs(p.Codec)
	kbit := strconv.Itoa(p.BitrateKbit)
	return []string{
		"-ss", formatSeek(plan.SeekSecs),
		"-i", p.MediaURL,
		"-acodec", codecName,
		"-ab", kbit + "k",
		"-f", container,
		"-bufsize", strconv.Itoa(p.BitrateKbit * 30),
		"-maxrate", kbit + "k",
		"pipe:1",
	}
}

// codecArgs maps the configured codec to the ffmpeg encoder and container.
func codecArgs(c config.Codec) (encoder, container string) {
	switch c {
	case config.CodecOpus:
		return "libopus", "webm"
	case config.CodecOggVorbis:
		return "libvorbis", "webm"
	default:
		return "libmp3lame", "mp3"
	}
}

func formatSeek(secs float64) string {
	return strconv.FormatFloat(secs, 'f', 2, 64)
}
