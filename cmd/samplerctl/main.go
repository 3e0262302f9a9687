package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/sampling"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/config"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-frame-sampler/internal/usecase"
	"github.com/fiapx/fiapx-frame-sampler/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "samplerctl",
		Short: "Inspect sampling plans and sample local videos",
		Long: `samplerctl runs the frame sampling policy without the queue, database or
object store. Defaults come from the same SAMPLING_* environment variables the
worker reads.

Examples:
  samplerctl plan --duration 200
  samplerctl plan --duration 45 --table v1 --budget 12
  samplerctl sample --input clip.mp4 --out ./frames`,
		SilenceUsage: true,
	}
	root.AddCommand(newPlanCmd(), newSampleCmd())
	return root
}

// policy resolves the sampling config from the environment plus flag overrides.
func policy(table string, budget int) (sampling.Config, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return sampling.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if table != "" {
		cfg.SamplingPhaseTable = table
	}
	if budget > 0 {
		cfg.SamplingFrameBudget = budget
	}
	tables, err := cfg.Tables()
	if err != nil {
		return sampling.Config{}, nil, err
	}
	sc, err := cfg.Sampling(tables)
	if err != nil {
		return sampling.Config{}, nil, err
	}
	return sc, cfg, nil
}

func newPlanCmd() *cobra.Command {
	var (
		duration float64
		table    string
		budget   int
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the per-phase sampling plan for a video duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, _, err := policy(table, budget)
			if err != nil {
				return err
			}
			plan, err := sc.Plan(duration)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), plan)
		},
	}
	cmd.Flags().Float64Var(&duration, "duration", 0, "Video duration in seconds (required)")
	cmd.Flags().StringVar(&table, "table", "", "Phase table version (default: SAMPLING_PHASE_TABLE)")
	cmd.Flags().IntVar(&budget, "budget", 0, "Frame budget (default: SAMPLING_FRAME_BUDGET)")
	cmd.MarkFlagRequired("duration")
	return cmd
}

type sampledFrame struct {
	Path   string  `json:"path"`
	Offset float64 `json:"offset_seconds"`
}

type strategyRun struct {
	Phase    string `json:"phase"`
	Strategy string `json:"strategy"`
	Outcome  string `json:"outcome"`
	Frames   int    `json:"frames"`
	Error    string `json:"error,omitempty"`
}

type sampleOutput struct {
	Plan          sampling.Plan  `json:"plan"`
	Frames        []sampledFrame `json:"frames"`
	Phases        map[string]int `json:"phase_counts"`
	Fallback      bool           `json:"fallback_used"`
	FallbackAdded int            `json:"fallback_added"`
	Strategies    []strategyRun  `json:"strategies"`
}

func newSampleCmd() *cobra.Command {
	var (
		input    string
		out      string
		table    string
		budget   int
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Probe, extract and select frames from a local video file",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, cfg, err := policy(table, budget)
			if err != nil {
				return err
			}
			log, err := logger.New(logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := os.MkdirAll(out, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			sampler := usecase.NewFrameSampler(
				ffmpeg.NewProber(cfg.FFmpegTimeout, log),
				ffmpeg.NewExtractor(cfg.FFmpegFormat, log),
				sc,
				cfg.ExtractParallel,
				log,
			)
			res, err := sampler.Sample(ctx, input, out)
			if err != nil {
				return err
			}
			if err := pruneUnselected(out, res); err != nil {
				log.Warn("failed to prune unselected frames", zap.Error(err))
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Selected %d frames from %.1fs of video\n", len(res.Frames), res.Duration)
			return writeJSON(cmd.OutOrStdout(), summarize(res))
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Local video file (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "frames", "Directory for extracted frames")
	cmd.Flags().StringVar(&table, "table", "", "Phase table version (default: SAMPLING_PHASE_TABLE)")
	cmd.Flags().IntVar(&budget, "budget", 0, "Frame budget (default: SAMPLING_FRAME_BUDGET)")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level")
	cmd.MarkFlagRequired("input")
	return cmd
}

func summarize(res *usecase.SampleResult) sampleOutput {
	o := sampleOutput{
		Plan:          res.Plan,
		Frames:        make([]sampledFrame, len(res.Frames)),
		Phases:        make(map[string]int, len(res.Selection.Phases)),
		Fallback:      res.Selection.Fallback,
		FallbackAdded: res.Selection.FallbackAdded,
	}
	for i, f := range res.Frames {
		o.Frames[i] = sampledFrame{Path: f.Path, Offset: f.Offset}
	}
	for _, p := range res.Selection.Phases {
		o.Phases[p.Phase] = len(p.Frames)
	}
	for _, r := range res.Strategies {
		run := strategyRun{
			Phase:    r.Request.Phase,
			Strategy: string(r.Request.Strategy),
			Outcome:  string(r.Outcome()),
			Frames:   len(r.Frames),
		}
		if r.Err != nil {
			run.Error = r.Err.Error()
		}
		o.Strategies = append(o.Strategies, run)
	}
	return o
}

// pruneUnselected removes extracted frame files that did not make the
// selection. Other files in dir are left alone.
func pruneUnselected(dir string, res *usecase.SampleResult) error {
	keep := make(map[string]bool, len(res.Frames))
	for _, f := range res.Frames {
		keep[filepath.Clean(f.Path)] = true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if e.IsDir() || !strings.HasPrefix(e.Name(), "frame_") || keep[p] {
			continue
		}
		if err := os.Remove(p); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
