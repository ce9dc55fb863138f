// SPDX-License-Identifier: MIT

// Package duration resolves YouTube video durations, batching API lookups
// across concurrent requests through Redis and falling back to yt-dlp when no
// API key is configured.
package duration

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse converts clock text of the form "[[HH:]MM:]SS" into seconds.
func Parse(text string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed duration %q", text)
	}

	var total int64
	for _, part := range parts {
		if part == "" {
			return 0, fmt.Errorf("malformed duration %q", text)
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("malformed duration %q", text)
		}
		total = total*60 + n
	}
	return total, nil
}

// ParseISO8601 converts an ISO-8601 duration ("PT1H2M3S", optionally with a
// day component) into seconds. YouTube's API reports durations in this form.
func ParseISO8601(s string) (int64, error) {
	orig := s
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("malformed ISO-8601 duration %q", orig)
	}
	s = s[1:]

	var total int64
	inTime := false
	num := ""
	seen := false

	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'T':
			if inTime || num != "" {
				return 0, fmt.Errorf("malformed ISO-8601 duration %q", orig)
			}
			inTime = true
		default:
			if num == "" {
				return 0, fmt.Errorf("malformed ISO-8601 duration %q", orig)
			}
			n, err := strconv.ParseInt(num, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("malformed ISO-8601 duration %q", orig)
			}
			num = ""

			var unit int64
			switch {
			case r == 'D' && !inTime:
				unit = 86400
			case r == 'H' && inTime:
				unit = 3600
			case r == 'M' && inTime:
				unit = 60
			case r == 'S' && inTime:
				unit = 1
			default:
				return 0, fmt.Errorf("malformed ISO-8601 duration %q", orig)
			}
			total += n * unit
			seen = true
		}
	}

	if num != "" || !seen {
		return 0, fmt.Errorf("malformed ISO-8601 duration %q", orig)
	}
	return total, nil
}

// Clock renders seconds as zero-padded "HH:MM:SS" for itunes duration tags.
func Clock(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
