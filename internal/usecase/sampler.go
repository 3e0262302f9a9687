package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/sampling"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/metrics"
)

const fallbackPhase = "fallback"

// FrameSampler runs probe, plan, extraction and selection against a local
// video file.
type FrameSampler struct {
	prober    port.DurationProber
	extractor port.FrameExtractor
	cfg       sampling.Config
	parallel  int
	logger    *zap.Logger
}

func NewFrameSampler(
	prober port.DurationProber,
	extractor port.FrameExtractor,
	cfg sampling.Config,
	parallel int,
	logger *zap.Logger,
) *FrameSampler {
	if parallel <= 0 {
		parallel = 1
	}
	return &FrameSampler{
		prober:    prober,
		extractor: extractor,
		cfg:       cfg,
		parallel:  parallel,
		logger:    logger,
	}
}

// Config returns the sampling policy the sampler applies.
func (s *FrameSampler) Config() sampling.Config {
	return s.cfg
}

// SampleResult is everything one sampling pass produced.
type SampleResult struct {
	Duration  float64
	Plan      sampling.Plan
	Selection sampling.Selection
	// Frames holds the selected frames in selection order.
	Frames []port.ExtractedFrame
	// Strategies lists every extractor invocation, fallback last.
	Strategies []port.StrategyResult
}

// Sample extracts candidate frames from videoPath into framesDir and selects
// the final set. It returns sampling.ErrNoContent when nothing usable came out
// of the video, and port.ErrStrategyFailed when every extractor call failed.
func (s *FrameSampler) Sample(ctx context.Context, videoPath, framesDir string) (*SampleResult, error) {
	return s.SampleWith(ctx, s.cfg, videoPath, framesDir)
}

// SampleWith is Sample under cfg instead of the sampler's own policy.
func (s *FrameSampler) SampleWith(ctx context.Context, cfg sampling.Config, videoPath, framesDir string) (*SampleResult, error) {
	tracer := otel.Tracer("usecase")

	probeStart := time.Now()
	ctx2, spanProbe := tracer.Start(ctx, "probe_duration")
	duration, err := s.prober.ProbeDuration(ctx2, videoPath)
	spanProbe.End()
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("probe").Observe(time.Since(probeStart).Seconds())

	plan, err := cfg.Plan(duration)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sampling plan",
		zap.Float64("duration", duration),
		zap.String("table", plan.Table),
		zap.Int("total_target", plan.TotalTarget()),
	)

	extractStart := time.Now()
	ctx3, spanEx := tracer.Start(ctx, "extract_candidates")
	results, err := s.extractAll(ctx3, cfg, videoPath, framesDir, plan)
	spanEx.SetAttributes(attribute.Int("invocations", len(results)))
	spanEx.End()
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(extractStart).Seconds())

	candidates := sampling.Candidates{}
	for _, r := range results {
		candidates.Add(r.Request.Phase, r.Request.Strategy, r.Refs())
	}

	selector := cfg.Selector()
	sel, err := selector.Select(candidates, plan.PhaseOrder())
	if err != nil {
		return nil, err
	}

	var fallback []sampling.FrameRef
	if selector.NeedsFallback(sel) {
		fb := s.extractFallback(ctx, cfg, videoPath, framesDir, duration)
		results = append(results, fb)
		fallback = fb.Refs()
	}

	sel, err = selector.Complete(sel, fallback)
	if errors.Is(err, sampling.ErrNoContent) && allFailed(results) {
		return nil, fmt.Errorf("%w: all %d extractor invocations failed", port.ErrStrategyFailed, len(results))
	}
	if err != nil {
		return nil, err
	}

	if sel.Fallback {
		metrics.FallbackTotal.Inc()
	}
	metrics.FramesSelected.Observe(float64(len(sel.Frames)))

	return &SampleResult{
		Duration:   duration,
		Plan:       plan,
		Selection:  sel,
		Frames:     selectedFrames(sel, results),
		Strategies: results,
	}, nil
}

// extractAll runs every (active window, strategy) pair with bounded
// parallelism. Results are stored by index so their order matches the plan.
func (s *FrameSampler) extractAll(ctx context.Context, cfg sampling.Config, videoPath, framesDir string, plan sampling.Plan) ([]port.StrategyResult, error) {
	var reqs []port.ExtractRequest
	for _, w := range plan.Windows {
		if !w.Active() {
			continue
		}
		for _, st := range cfg.Strategies {
			reqs = append(reqs, port.ExtractRequest{
				Phase:          w.Phase,
				Strategy:       st,
				Start:          w.Start,
				End:            w.End,
				Interval:       w.Interval,
				MaxFrames:      w.Target,
				SceneThreshold: cfg.SceneThreshold,
			})
		}
	}

	results := make([]port.StrategyResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = s.invoke(gctx, videoPath, framesDir, req)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *FrameSampler) extractFallback(ctx context.Context, cfg sampling.Config, videoPath, framesDir string, duration float64) port.StrategyResult {
	return s.invoke(ctx, videoPath, framesDir, port.ExtractRequest{
		Phase:     fallbackPhase,
		Strategy:  sampling.StrategyUniform,
		Start:     0,
		End:       duration,
		Interval:  cfg.FallbackInterval,
		MaxFrames: cfg.HardCap,
	})
}

func (s *FrameSampler) invoke(ctx context.Context, videoPath, framesDir string, req port.ExtractRequest) port.StrategyResult {
	frames, err := s.extractor.Extract(ctx, videoPath, framesDir, req)
	r := port.StrategyResult{Request: req, Frames: frames, Err: err}

	outcome := r.Outcome()
	metrics.StrategyOutcomes.WithLabelValues(string(req.Strategy), string(outcome)).Inc()
	if outcome == port.OutcomeFailed {
		s.logger.Warn("strategy invocation failed",
			zap.String("phase", req.Phase),
			zap.String("strategy", string(req.Strategy)),
			zap.Error(err),
		)
	}
	return r
}

func allFailed(results []port.StrategyResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Outcome() != port.OutcomeFailed {
			return false
		}
	}
	return true
}

func selectedFrames(sel sampling.Selection, results []port.StrategyResult) []port.ExtractedFrame {
	byRef := make(map[sampling.FrameRef]port.ExtractedFrame)
	for _, r := range results {
		for _, f := range r.Frames {
			byRef[sampling.FrameRef(f.Path)] = f
		}
	}
	out := make([]port.ExtractedFrame, 0, len(sel.Frames))
	for _, ref := range sel.Frames {
		out = append(out, byRef[ref])
	}
	return out
}
