// SPDX-License-Identifier: MIT

package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// fakeTool writes a shell script standing in for yt-dlp and returns its path.
func fakeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts require a unix shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

func TestStreamURL(t *testing.T) {
	r := New(fakeTool(t, `echo "https://cdn.example/audio.m4a"`))

	got, err := r.StreamURL(context.Background(), "https://rumble.com/v123-abc.html")
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	if got != "https://cdn.example/audio.m4a" {
		t.Errorf("StreamURL = %q", got)
	}
}

func TestDuration(t *testing.T) {
	r := New(fakeTool(t, `echo "1:02:03"`))

	got, err := r.Duration(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if got != "1:02:03" {
		t.Errorf("Duration = %q", got)
	}
}

func TestChannelURL(t *testing.T) {
	r := New(fakeTool(t, `echo "https://www.youtube.com/channel/UC-lHJZR3Gqxm24_Vd_AJ5Yw"`))

	got, err := r.ChannelURL(context.Background(), "https://www.youtube.com/@PewDiePie")
	if err != nil {
		t.Fatalf("ChannelURL: %v", err)
	}
	if got != "https://www.youtube.com/channel/UC-lHJZR3Gqxm24_Vd_AJ5Yw" {
		t.Errorf("ChannelURL = %q", got)
	}
}

func TestClassifyNotFound(t *testing.T) {
	r := New(fakeTool(t, `echo "ERROR: video does not exist" >&2; exit 1`))

	_, err := r.StreamURL(context.Background(), "https://youtu.be/gone")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestClassifyRateLimited(t *testing.T) {
	r := New(fakeTool(t, `echo "HTTP Error 429: Too Many Requests" >&2; exit 1`))

	_, err := r.Duration(context.Background(), "https://youtu.be/busy")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}

func TestEmptyOutput(t *testing.T) {
	r := New(fakeTool(t, `exit 0`))

	if _, err := r.StreamURL(context.Background(), "https://youtu.be/empty"); err == nil {
		t.Error("expected error for empty stdout")
	}
}

func TestTimeout(t *testing.T) {
	r := New(fakeTool(t, `sleep 5`))
	r.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := r.Duration(context.Background(), "https://youtu.be/slow")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v, child was not killed promptly", elapsed)
	}
}
