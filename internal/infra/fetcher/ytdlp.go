package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

// YtDlp downloads web videos with the yt-dlp binary.
type YtDlp struct {
	binary string
	format string
	logger *zap.Logger
}

func NewYtDlp(binary, format string, logger *zap.Logger) *YtDlp {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YtDlp{binary: binary, format: format, logger: logger}
}

func (y *YtDlp) args(sourceURL, destPath string) []string {
	args := []string{"--no-playlist", "--no-progress", "--force-overwrites", "-o", destPath}
	if y.format != "" {
		args = append(args, "-f", y.format)
	}
	return append(args, sourceURL)
}

func (y *YtDlp) Fetch(ctx context.Context, sourceURL string, destPath string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, y.binary, y.args(sourceURL, destPath)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: yt-dlp: %v, output: %s", port.ErrFetchFailed, err, stderr.String())
	}
	if _, err := os.Stat(destPath); err != nil {
		return fmt.Errorf("%w: yt-dlp produced no file: %v", port.ErrFetchFailed, err)
	}

	y.logger.Info("video downloaded", zap.String("url", sourceURL))
	return nil
}
