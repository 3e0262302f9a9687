package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

type Prober struct {
	binary  string
	timeout time.Duration
	logger  *zap.Logger
}

func NewProber(timeout time.Duration, logger *zap.Logger) *Prober {
	return &Prober{binary: "ffprobe", timeout: timeout, logger: logger}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// ProbeDuration runs ffprobe under ctx, bounded by the prober timeout.
// Cancelling ctx kills the process.
func (p *Prober) ProbeDuration(ctx context.Context, videoPath string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, "-show_format", "-show_streams", "-of", "json", videoPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("%w: ffprobe: %w", port.ErrProbeFailed, ctxErr)
		}
		return 0, fmt.Errorf("%w: ffprobe: %v, output: %s", port.ErrProbeFailed, err, tail(stderr.String(), 1024))
	}

	duration, err := parseProbeDuration(stdout.Bytes())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", port.ErrProbeFailed, err)
	}

	p.logger.Debug("probed video", zap.String("path", videoPath), zap.Float64("duration", duration))
	return duration, nil
}

// parseProbeDuration prefers the container duration and falls back to the
// longest video stream.
func parseProbeDuration(raw []byte) (float64, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}

	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration: %w", err)
		}
		return d, nil
	}

	best := -1.0
	for _, s := range out.Streams {
		if s.CodecType != "video" || s.Duration == "" {
			continue
		}
		d, err := strconv.ParseFloat(s.Duration, 64)
		if err != nil {
			continue
		}
		if d > best {
			best = d
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("no duration in ffprobe output")
	}
	return best, nil
}
