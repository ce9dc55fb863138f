// SPDX-License-Identifier: MIT

// Package transcoder turns upstream media into a constant-bitrate audio
// stream over an ffmpeg child process. Because the output bitrate is fixed,
// byte offsets map linearly onto time offsets, which is what makes podcast
// client scrubbing work against a stream that is produced on the fly.
package transcoder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuGH/vodcast/internal/config"
)

var (
	// ErrBadRange marks a Range header we cannot parse.
	ErrBadRange = errors.New("malformed range header")

	// ErrUnsatisfiableRange marks a parsed range outside the stream.
	ErrUnsatisfiableRange = errors.New("unsatisfiable byte range")
)

// Params describes one transcoding session.
type Params struct {
	MediaURL     string
	BitrateKbit  int
	DurationSecs int64
	Codec        config.Codec
}

// TotalBytes is the advertised size of the full stream. CBR, so simply
// duration times the byte rate.
func (p Params) TotalBytes() int64 {
	return p.DurationSecs * int64(p.BitrateKbit) * 1000 / 8
}

// Plan is the resolved byte-range plan for one session. End is inclusive.
type Plan struct {
	Start    int64
	End      int64
	Total    int64
	SeekSecs float64
}

// Status returns the HTTP status for this plan. Seeks within the first
// 100 ms count as a full-entity response.
func (p Plan) Status() int {
	if p.SeekSecs <= 0.1 {
		return 200
	}
	return 206
}

// ContentLength returns the number of bytes this plan will stream.
func (p Plan) ContentLength() int64 {
	return p.End - p.Start + 1
}

// ContentRange renders the Content-Range header value.
func (p Plan) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", p.Start, p.End, p.Total)
}

// PlanRange resolves the Range header against the session parameters. An
// empty header means the full stream. The error is ErrBadRange for headers
// we cannot parse and ErrUnsatisfiableRange for ranges outside the stream.
func PlanRange(rangeHeader string, p Params) (Plan, error) {
	total := p.TotalBytes()

	start := int64(0)
	end := total - 1

	if h := strings.TrimSpace(rangeHeader); h != "" {
		var err error
		start, end, err = parseRangeHeader(h, total)
		if err != nil {
			return Plan{}, err
		}
	}

	// An inclusive end below start leaves nothing to stream. This also
	// catches zero-total streams, where end starts out at -1.
	if start > end || start > total {
		return Plan{}, fmt.Errorf("%w: bytes %d-%d/%d", ErrUnsatisfiableRange, start, end, total)
	}

	return Plan{
		Start:    start,
		End:      end,
		Total:    total,
		SeekSecs: float64(start) / float64(total) * float64(p.DurationSecs),
	}, nil
}

// parseRangeHeader handles the single-range form "bytes=<start>-[<end>]".
// Suffix ranges and multipart ranges are rejected as malformed.
func parseRangeHeader(h string, total int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(h, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadRange, h)
	}
	startText, endText, ok := strings.Cut(spec, "-")
	if !ok || strings.Contains(endText, ",") {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadRange, h)
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startText), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadRange, h)
	}

	end := total - 1
	if endText = strings.TrimSpace(endText); endText != "" {
		end, err = strconv.ParseInt(endText, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrBadRange, h)
		}
		if end > total-1 {
			end = total - 1
		}
	}

	return start, end, nil
}
