package sampling

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Unit tells how phase bounds are expressed.
type Unit string

const (
	UnitRatio   Unit = "ratio"
	UnitSeconds Unit = "seconds"
)

// MaxPhaseWeight bounds Phase.Weight.
const MaxPhaseWeight = 100

// Phase is a named range of the timeline. Weight scales the share of the frame
// budget the phase receives; zero means 1.
type Phase struct {
	Name   string  `yaml:"name"`
	Start  float64 `yaml:"start"`
	End    float64 `yaml:"end"`
	Weight int     `yaml:"weight,omitempty"`
}

func (p Phase) weight() int {
	if p.Weight <= 0 {
		return 1
	}
	return p.Weight
}

// PhaseTable is an ordered, versioned set of phases. Phases may leave gaps or
// overlap each other.
type PhaseTable struct {
	Version string  `yaml:"version"`
	Unit    Unit    `yaml:"unit"`
	Phases  []Phase `yaml:"phases"`
}

const DefaultTableVersion = "v1"

// DefaultPhaseTable splits the timeline into early, mid, late and final phases.
var DefaultPhaseTable = PhaseTable{
	Version: DefaultTableVersion,
	Unit:    UnitRatio,
	Phases: []Phase{
		{Name: "early", Start: 0, End: 0.25},
		{Name: "mid", Start: 0.25, End: 0.6},
		{Name: "late", Start: 0.6, End: 0.9},
		{Name: "final", Start: 0.9, End: 1.0},
	},
}

// hookPhaseTable front-loads the budget for short-form clips.
var hookPhaseTable = PhaseTable{
	Version: "hook-v1",
	Unit:    UnitRatio,
	Phases: []Phase{
		{Name: "hook", Start: 0, End: 0.1, Weight: 2},
		{Name: "early", Start: 0.1, End: 0.33},
		{Name: "mid", Start: 0.33, End: 0.66},
		{Name: "late", Start: 0.66, End: 1.0},
	},
}

// Names returns the phase names in table order.
func (t PhaseTable) Names() []string {
	names := make([]string, len(t.Phases))
	for i, p := range t.Phases {
		names[i] = p.Name
	}
	return names
}

// Validate checks the structural rules of a table. Zero-width phases in a
// seconds table are allowed; the planner gives them no frames.
func (t PhaseTable) Validate() error {
	if t.Version == "" {
		return invalidf("phase table has no version")
	}
	if len(t.Phases) == 0 {
		return invalidf("phase table %q is empty", t.Version)
	}
	switch t.Unit {
	case UnitRatio, UnitSeconds:
	default:
		return invalidf("phase table %q: unknown unit %q", t.Version, t.Unit)
	}

	seen := make(map[string]struct{}, len(t.Phases))
	for _, p := range t.Phases {
		if p.Name == "" {
			return invalidf("phase table %q: phase without name", t.Version)
		}
		if _, dup := seen[p.Name]; dup {
			return invalidf("phase table %q: duplicate phase %q", t.Version, p.Name)
		}
		seen[p.Name] = struct{}{}

		if !finite(p.Start) || !finite(p.End) || p.Start < 0 || p.End < 0 {
			return invalidf("phase %q: bounds must be finite and non-negative", p.Name)
		}
		if p.Weight > MaxPhaseWeight {
			return invalidf("phase %q: weight %d exceeds %d", p.Name, p.Weight, MaxPhaseWeight)
		}
		if t.Unit == UnitRatio && (p.Start >= p.End || p.End > 1) {
			return invalidf("phase %q: ratio range must satisfy 0 <= start < end <= 1", p.Name)
		}
	}
	return nil
}

// Tables is a registry of phase tables keyed by version.
type Tables map[string]PhaseTable

// BuiltinTables returns the tables compiled into the service.
func BuiltinTables() Tables {
	return Tables{
		DefaultPhaseTable.Version: DefaultPhaseTable,
		hookPhaseTable.Version:    hookPhaseTable,
	}
}

// Lookup returns the table registered under version.
func (ts Tables) Lookup(version string) (PhaseTable, error) {
	t, ok := ts[version]
	if !ok {
		return PhaseTable{}, invalidf("unknown phase table %q", version)
	}
	return t, nil
}

// Versions lists registered versions in lexical order.
func (ts Tables) Versions() []string {
	out := make([]string, 0, len(ts))
	for v := range ts {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

type tablesFile struct {
	Tables []PhaseTable `yaml:"tables"`
}

// LoadTables reads additional tables from YAML and merges them over ts.
// A table with a version already present replaces the existing one.
func (ts Tables) LoadTables(r io.Reader) error {
	var f tablesFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return fmt.Errorf("decode phase tables: %w", err)
	}
	for _, t := range f.Tables {
		if t.Unit == "" {
			t.Unit = UnitRatio
		}
		if err := t.Validate(); err != nil {
			return err
		}
		ts[t.Version] = t
	}
	return nil
}
