// SPDX-License-Identifier: MIT

package transcoder

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/vodcast/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFFmpeg writes a shell script standing in for the ffmpeg binary.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake not portable to windows")
	}
	script := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755))
	return script
}

func TestStartBuildsContractArgs(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	script := fakeFFmpeg(t, "printf '%s\\n' \"$@\" > "+argsFile+"\nprintf 'MP3DATA'\n")

	p := Params{
		MediaURL:     "https://cdn.example/audio?x=1",
		BitrateKbit:  192,
		DurationSecs: 60,
		Codec:        config.CodecMP3,
	}
	plan, err := PlanRange("bytes=720000-", p)
	require.NoError(t, err)

	sess, err := New(script).Start(context.Background(), p, plan)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, sess.Stream(context.Background(), &out))
	sess.Close()

	assert.Equal(t, "MP3DATA", out.String())
	assert.Equal(t, "eof", sess.reason)

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	got := strings.Split(strings.TrimSpace(string(raw)), "\n")
	want := []string{
		"-ss", "30.00",
		"-i", "https://cdn.example/audio?x=1",
		"-acodec", "libmp3lame",
		"-ab", "192k",
		"-f", "mp3",
		"-bufsize", "5760",
		"-maxrate", "192k",
		"pipe:1",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ffmpeg argv (-want +got):\n%s", diff)
	}
}

func TestStartSpawnFailure(t *testing.T) {
	p := mp3Params(60, 192)
	plan, err := PlanRange("", p)
	require.NoError(t, err)

	_, err = New("/nonexistent/ffmpeg").Start(context.Background(), p, plan)
	require.Error(t, err)
}

func TestStreamLargeOutputChunked(t *testing.T) {
	// 64 KiB of zeros forces many chunk iterations.
	script := fakeFFmpeg(t, "dd if=/dev/zero bs=1024 count=64 2>/dev/null\n")

	p := mp3Params(60, 192)
	plan, err := PlanRange("", p)
	require.NoError(t, err)

	sess, err := New(script).Start(context.Background(), p, plan)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, sess.Stream(context.Background(), &out))
	sess.Close()

	assert.Equal(t, 64*1024, out.Len())
	assert.Equal(t, int64(64*1024), sess.streamed)
}

func TestStreamCancelKillsChild(t *testing.T) {
	script := fakeFFmpeg(t, "printf 'X'\nsleep 30\n")

	p := mp3Params(60, 192)
	plan, err := PlanRange("", p)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := New(script).Start(ctx, p, plan)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sess.Stream(ctx, io.Discard) }()

	// Give the child a moment to emit its first byte, then disconnect.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("stream did not unblock after cancellation")
	}
	sess.Close()

	assert.Equal(t, "cancelled", sess.reason)
}

func TestCodecArgs(t *testing.T) {
	tests := []struct {
		codec     config.Codec
		encoder   string
		container string
	}{
		{config.CodecMP3, "libmp3lame", "mp3"},
		{config.CodecOpus, "libopus", "webm"},
		{config.CodecOggVorbis, "libvorbis", "webm"},
	}

	for _, tt := range tests {
		t.Run(string(tt.codec), func(t *testing.T) {
			encoder, container := codecArgs(tt.codec)
			assert.Equal(t, tt.encoder, encoder)
			assert.Equal(t, tt.container, container)
		})
	}
}

func TestFormatSeek(t *testing.T) {
	assert.Equal(t, "0.00", formatSeek(0))
	assert.Equal(t, "30.00", formatSeek(30))
	assert.Equal(t, "0.05", formatSeek(0.05))
}
