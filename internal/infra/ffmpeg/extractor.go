package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	ffmpeggo "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/sampling"
)

// Extractor runs one ffmpeg pass per request and names every frame after its
// offset in the source, so two strategies hitting the same instant share a file.
// A frame always replaces whatever file already has its name in outputDir.
type Extractor struct {
	binary string
	format string
	logger *zap.Logger
}

func NewExtractor(format string, logger *zap.Logger) *Extractor {
	return &Extractor{binary: "ffmpeg", format: format, logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, videoPath string, outputDir string, req port.ExtractRequest) ([]port.ExtractedFrame, error) {
	if req.MaxFrames <= 0 || req.End <= req.Start {
		return nil, nil
	}

	workDir, err := os.MkdirTemp(outputDir, fmt.Sprintf(".%s-%s-", req.Phase, req.Strategy))
	if err != nil {
		return nil, fmt.Errorf("%w: create work dir: %v", port.ErrStrategyFailed, err)
	}
	defer os.RemoveAll(workDir)

	args, err := e.buildArgs(videoPath, filepath.Join(workDir, "frame_%04d."+e.format), req)
	if err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg %s/%s: %v, output: %s",
			port.ErrStrategyFailed, req.Phase, req.Strategy, err, tail(stderr.String(), 2048))
	}

	files, err := filepath.Glob(filepath.Join(workDir, "frame_*."+e.format))
	if err != nil {
		return nil, fmt.Errorf("%w: glob frames: %v", port.ErrStrategyFailed, err)
	}
	sort.Strings(files)

	offsets := parseShowinfo(stderr.String())
	frames := make([]port.ExtractedFrame, 0, len(files))
	for i, f := range files {
		if len(frames) == req.MaxFrames {
			break
		}
		offset := req.Start + float64(i)*req.Interval
		if i < len(offsets) {
			offset = req.Start + offsets[i]
		}

		final := filepath.Join(outputDir, FrameName(offset, e.format))
		if err := os.Rename(f, final); err != nil {
			return nil, fmt.Errorf("%w: move frame: %v", port.ErrStrategyFailed, err)
		}
		frames = append(frames, port.ExtractedFrame{Path: final, Offset: offset})
	}

	e.logger.Debug("frames extracted",
		zap.String("phase", req.Phase),
		zap.String("strategy", string(req.Strategy)),
		zap.Int("count", len(frames)),
		zap.Float64("start", req.Start),
		zap.Float64("end", req.End),
	)
	return frames, nil
}

func (e *Extractor) buildArgs(videoPath, pattern string, req port.ExtractRequest) ([]string, error) {
	input := ffmpeggo.Input(videoPath, ffmpeggo.KwArgs{
		"ss": seconds(req.Start),
		"t":  seconds(req.End - req.Start),
	})

	interval := seconds(req.Interval)
	var stream *ffmpeggo.Stream
	switch req.Strategy {
	case sampling.StrategyScene:
		stream = input.Filter("select", ffmpeggo.Args{fmt.Sprintf("gt(scene,%s)", strconv.FormatFloat(req.SceneThreshold, 'f', -1, 64))})
	case sampling.StrategyMotion:
		// mpdecimate drops near-identical frames, so what survives is moving content.
		stream = input.
			Filter("mpdecimate", nil).
			Filter("select", ffmpeggo.Args{fmt.Sprintf("isnan(prev_selected_t)+gte(t-prev_selected_t,%s)", interval)})
	case sampling.StrategyUniform:
		stream = input.Filter("fps", ffmpeggo.Args{"1/" + interval})
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", port.ErrStrategyFailed, req.Strategy)
	}

	out := stream.
		Filter("showinfo", nil).
		Output(pattern, ffmpeggo.KwArgs{
			"vsync":    "vfr",
			"frames:v": req.MaxFrames,
			"q:v":      2,
		}).
		OverWriteOutput()

	return out.GetArgs(), nil
}

var showinfoPTS = regexp.MustCompile(`pts_time:\s*(-?[0-9]+(?:\.[0-9]+)?)`)

// parseShowinfo returns the pts_time of every frame the showinfo filter
// reported, in output order.
func parseShowinfo(stderr string) []float64 {
	var out []float64
	for _, line := range strings.Split(stderr, "\n") {
		if !strings.Contains(line, "Parsed_showinfo") {
			continue
		}
		m := showinfoPTS.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// FrameName is the file name of the frame at offset seconds, at millisecond precision.
func FrameName(offset float64, format string) string {
	ms := int64(offset*1000 + 0.5)
	return fmt.Sprintf("frame_%09d.%s", ms, format)
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
