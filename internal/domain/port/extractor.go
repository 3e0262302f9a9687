package port

import (
	"context"
	"errors"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/sampling"
)

var (
	ErrProbeFailed    = errors.New("duration probe failed")
	ErrStrategyFailed = errors.New("strategy invocation failed")
)

type DurationProber interface {
	ProbeDuration(ctx context.Context, videoPath string) (float64, error)
}

// ExtractRequest asks for at most MaxFrames frames from [Start, End) of a video.
// Interval is the spacing for interval-driven strategies; SceneThreshold only
// matters to the scene strategy.
type ExtractRequest struct {
	Phase          string
	Strategy       sampling.Strategy
	Start          float64
	End            float64
	Interval       float64
	MaxFrames      int
	SceneThreshold float64
}

// ExtractedFrame is a frame written to disk, keyed by its offset in the video.
type ExtractedFrame struct {
	Path   string
	Offset float64
}

type FrameExtractor interface {
	// Extract returns frames in increasing offset order. Zero frames with a nil
	// error is a valid outcome; invocation problems wrap ErrStrategyFailed.
	Extract(ctx context.Context, videoPath string, outputDir string, req ExtractRequest) ([]ExtractedFrame, error)
}

type StrategyOutcome string

const (
	OutcomeFrames StrategyOutcome = "frames"
	OutcomeEmpty  StrategyOutcome = "empty"
	OutcomeFailed StrategyOutcome = "failed"
)

// StrategyResult keeps "produced nothing" apart from "could not run".
type StrategyResult struct {
	Request ExtractRequest
	Frames  []ExtractedFrame
	Err     error
}

func (r StrategyResult) Outcome() StrategyOutcome {
	switch {
	case r.Err != nil:
		return OutcomeFailed
	case len(r.Frames) == 0:
		return OutcomeEmpty
	default:
		return OutcomeFrames
	}
}

// Refs returns the frame refs of a successful result. Failed results contribute none.
func (r StrategyResult) Refs() []sampling.FrameRef {
	if r.Err != nil {
		return nil
	}
	out := make([]sampling.FrameRef, len(r.Frames))
	for i, f := range r.Frames {
		out[i] = sampling.FrameRef(f.Path)
	}
	return out
}
