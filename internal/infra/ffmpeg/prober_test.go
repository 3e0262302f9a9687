package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

func fakeProbe(t *testing.T, body string) *Prober {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffprobe")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	p := NewProber(time.Minute, zap.NewNop())
	p.binary = path
	return p
}

func TestProbeDurationParsesOutput(t *testing.T) {
	p := fakeProbe(t, `echo '{"format":{"duration":"42.5"},"streams":[]}'`)

	d, err := p.ProbeDuration(context.Background(), "in.mp4")
	require.NoError(t, err)
	assert.Equal(t, 42.5, d)
}

func TestProbeDurationFailure(t *testing.T) {
	p := fakeProbe(t, `echo "in.mp4: Invalid data found" >&2; exit 1`)

	_, err := p.ProbeDuration(context.Background(), "in.mp4")
	assert.ErrorIs(t, err, port.ErrProbeFailed)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestProbeDurationTimeout(t *testing.T) {
	p := fakeProbe(t, "exec sleep 30")
	p.timeout = 200 * time.Millisecond

	start := time.Now()
	_, err := p.ProbeDuration(context.Background(), "in.mp4")
	assert.ErrorIs(t, err, port.ErrProbeFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProbeDurationStopsOnCancel(t *testing.T) {
	p := fakeProbe(t, "exec sleep 30")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	_, err := p.ProbeDuration(ctx, "in.mp4")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProbeDurationExpiredContext(t *testing.T) {
	p := fakeProbe(t, `echo '{"format":{"duration":"1"}}'`)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := p.ProbeDuration(ctx, "in.mp4")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
