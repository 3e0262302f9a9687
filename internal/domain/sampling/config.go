package sampling

import "strings"

// Strategy names a way of proposing candidate frames inside a window.
type Strategy string

const (
	StrategyScene   Strategy = "scene"
	StrategyMotion  Strategy = "motion"
	StrategyUniform Strategy = "uniform"
)

func (s Strategy) valid() bool {
	switch s {
	case StrategyScene, StrategyMotion, StrategyUniform:
		return true
	}
	return false
}

// ParseStrategies parses a comma separated strategy list. Order is kept: it is
// the precedence used when a phase's soft cap trims candidates.
func ParseStrategies(s string) ([]Strategy, error) {
	var out []Strategy
	seen := map[Strategy]bool{}
	for _, part := range strings.Split(s, ",") {
		st := Strategy(strings.ToLower(strings.TrimSpace(part)))
		if st == "" {
			continue
		}
		if !st.valid() {
			return nil, invalidf("unknown strategy %q", st)
		}
		if seen[st] {
			continue
		}
		seen[st] = true
		out = append(out, st)
	}
	if len(out) == 0 {
		return nil, invalidf("no sampling strategies configured")
	}
	return out, nil
}

// Defaults for Config.
const (
	DefaultFrameBudget      = 20
	DefaultSoftCap          = 5
	DefaultHardCap          = 20
	DefaultMinAcceptable    = 8
	DefaultFallbackInterval = 10.0
	DefaultSceneThreshold   = 0.3
)

// Config carries every knob of planning and selection for one job.
type Config struct {
	Table            PhaseTable
	Budget           int
	SoftCap          int
	HardCap          int
	MinAcceptable    int
	MinInterval      float64
	FallbackInterval float64
	SceneThreshold   float64
	Strategies       []Strategy
}

// DefaultConfig returns the v1 sampling policy.
func DefaultConfig() Config {
	return Config{
		Table:            DefaultPhaseTable,
		Budget:           DefaultFrameBudget,
		SoftCap:          DefaultSoftCap,
		HardCap:          DefaultHardCap,
		MinAcceptable:    DefaultMinAcceptable,
		MinInterval:      DefaultMinInterval,
		FallbackInterval: DefaultFallbackInterval,
		SceneThreshold:   DefaultSceneThreshold,
		Strategies:       []Strategy{StrategyScene, StrategyMotion},
	}
}

func (c Config) Validate() error {
	if err := c.Table.Validate(); err != nil {
		return err
	}
	switch {
	case c.Budget <= 0 || c.Budget > MaxFrameBudget:
		return invalidf("frame budget must be in [1, %d]", MaxFrameBudget)
	case c.SoftCap <= 0:
		return invalidf("soft cap must be positive")
	case c.HardCap <= 0:
		return invalidf("hard cap must be positive")
	case c.MinAcceptable < 0:
		return invalidf("minimum acceptable frames must not be negative")
	case !finite(c.MinInterval) || c.MinInterval <= 0:
		return invalidf("minimum interval must be positive")
	case !finite(c.FallbackInterval) || c.FallbackInterval <= 0:
		return invalidf("fallback interval must be positive")
	case c.SceneThreshold <= 0 || c.SceneThreshold >= 1:
		return invalidf("scene threshold must be in (0, 1)")
	case len(c.Strategies) == 0:
		return invalidf("no sampling strategies configured")
	}
	for _, s := range c.Strategies {
		if !s.valid() {
			return invalidf("unknown strategy %q", s)
		}
	}
	return nil
}

// Plan computes the sampling plan for duration under c.
func (c Config) Plan(duration float64) (Plan, error) {
	return NewPlan(duration, c.Table, c.Budget, c.MinInterval)
}

// Selector builds the selector configured by c.
func (c Config) Selector() Selector {
	return Selector{
		SoftCap:       c.SoftCap,
		HardCap:       c.HardCap,
		MinAcceptable: c.MinAcceptable,
		Priority:      c.Strategies,
	}
}
