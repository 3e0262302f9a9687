// Package sampling decides which parts of a video to pull frames from and which
// of the extracted frames to keep. It does no I/O.
package sampling

import "math"

// DefaultMinInterval is the smallest sampling interval handed to an extractor, in seconds.
const DefaultMinInterval = 1.0

// MaxFrameBudget bounds the frame budget a plan accepts.
const MaxFrameBudget = 10000

// Window is the sampling plan of one phase, in absolute seconds.
type Window struct {
	Phase    string  `json:"phase"`
	Start    float64 `json:"start_seconds"`
	End      float64 `json:"end_seconds"`
	Target   int     `json:"target_frames"`
	Interval float64 `json:"interval_seconds"`
}

// Active reports whether an extraction should be requested for the window.
func (w Window) Active() bool {
	return w.Target > 0
}

// Plan is the immutable per-job sampling plan. Windows keep table order.
type Plan struct {
	Duration float64  `json:"duration_seconds"`
	Table    string   `json:"table"`
	Budget   int      `json:"budget"`
	Windows  []Window `json:"windows"`
}

// Window returns the plan for the named phase.
func (p Plan) Window(phase string) (Window, bool) {
	for _, w := range p.Windows {
		if w.Phase == phase {
			return w, true
		}
	}
	return Window{}, false
}

// PhaseOrder returns phase names in plan order.
func (p Plan) PhaseOrder() []string {
	out := make([]string, len(p.Windows))
	for i, w := range p.Windows {
		out[i] = w.Phase
	}
	return out
}

// TotalTarget sums the targets of every window.
func (p Plan) TotalTarget() int {
	total := 0
	for _, w := range p.Windows {
		total += w.Target
	}
	return total
}

// NewPlan computes the sampling plan for a video of the given duration.
//
// Each phase receives ceil(budget*weight/totalWeight) frames, which with the
// default weights is ceil(budget/len(phases)). Rounding up keeps the sum of
// targets at or above the budget, so the global cap is what binds. Phases whose
// absolute window is empty get no frames. Intervals never drop below
// minInterval.
func NewPlan(duration float64, table PhaseTable, budget int, minInterval float64) (Plan, error) {
	if !finite(duration) || duration < 0 {
		return Plan{}, invalidf("duration must be finite and non-negative, got %v", duration)
	}
	if budget <= 0 || budget > MaxFrameBudget {
		return Plan{}, invalidf("frame budget must be in [1, %d], got %d", MaxFrameBudget, budget)
	}
	if !finite(minInterval) || minInterval <= 0 {
		return Plan{}, invalidf("minimum interval must be positive, got %v", minInterval)
	}
	if err := table.Validate(); err != nil {
		return Plan{}, err
	}

	totalWeight := 0
	for _, ph := range table.Phases {
		totalWeight += ph.weight()
	}

	windows := make([]Window, len(table.Phases))
	for i, ph := range table.Phases {
		start, end := table.bounds(ph, duration)

		target := 0
		if end > start {
			target = ceilDiv(budget*ph.weight(), totalWeight)
		}
		mustHold(target >= 0, "negative target %d for phase %q", target, ph.Name)

		interval := minInterval
		if target > 0 {
			interval = math.Max((end-start)/float64(target), minInterval)
		}
		mustHold(interval > 0, "non-positive interval for phase %q", ph.Name)

		windows[i] = Window{
			Phase:    ph.Name,
			Start:    start,
			End:      end,
			Target:   target,
			Interval: interval,
		}
	}

	return Plan{
		Duration: duration,
		Table:    table.Version,
		Budget:   budget,
		Windows:  windows,
	}, nil
}

// bounds converts a phase into absolute seconds clamped to [0, duration].
func (t PhaseTable) bounds(p Phase, duration float64) (float64, float64) {
	start, end := p.Start, p.End
	if t.Unit == UnitRatio {
		start *= duration
		end *= duration
	}
	return clamp(start, 0, duration), clamp(end, 0, duration)
}

func ceilDiv(a, b int) int {
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
