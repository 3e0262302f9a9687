package sampling

import "sort"

// FrameRef identifies an extracted frame. The selector only compares refs; it
// never looks inside them.
type FrameRef string

// StrategyFrames is the ordered output of one strategy for one phase.
type StrategyFrames struct {
	Strategy Strategy
	Frames   []FrameRef
}

// Candidates maps a phase name to the lists its strategies produced.
type Candidates map[string][]StrategyFrames

// Add appends a strategy list to phase.
func (c Candidates) Add(phase string, strategy Strategy, frames []FrameRef) {
	c[phase] = append(c[phase], StrategyFrames{Strategy: strategy, Frames: frames})
}

// PhaseSelection lists the frames a phase contributed to the final selection.
type PhaseSelection struct {
	Phase  string
	Frames []FrameRef
}

// Selection is the outcome of Select and Complete.
type Selection struct {
	Frames        []FrameRef
	Phases        []PhaseSelection
	Fallback      bool
	FallbackAdded int
}

// Selector merges per-phase candidates into one capped, duplicate-free list.
//
// Within a phase, lists are concatenated in Priority order (strategies absent
// from Priority go last, in the order given) and trimmed to SoftCap. Phases are
// then concatenated in the requested order, de-duplicated keeping the first
// occurrence, and trimmed to HardCap. Phase order decides which frames survive
// the hard cap.
type Selector struct {
	SoftCap       int
	HardCap       int
	MinAcceptable int
	Priority      []Strategy
}

// Select builds the selection from candidates without any fallback.
func (s Selector) Select(c Candidates, phaseOrder []string) (Selection, error) {
	if s.SoftCap <= 0 || s.HardCap <= 0 {
		return Selection{}, invalidf("caps must be positive (soft=%d hard=%d)", s.SoftCap, s.HardCap)
	}
	if s.MinAcceptable < 0 {
		return Selection{}, invalidf("minimum acceptable frames must not be negative")
	}

	type tagged struct {
		phase string
		ref   FrameRef
	}

	var merged []tagged
	for _, phase := range phaseOrder {
		n := 0
		for _, sf := range s.byPriority(c[phase]) {
			for _, ref := range sf.Frames {
				if n == s.SoftCap {
					break
				}
				merged = append(merged, tagged{phase: phase, ref: ref})
				n++
			}
		}
	}

	sel := Selection{Frames: make([]FrameRef, 0, min(len(merged), s.HardCap))}
	seen := make(map[FrameRef]struct{}, len(merged))
	for _, t := range merged {
		if len(sel.Frames) == s.HardCap {
			break
		}
		if _, dup := seen[t.ref]; dup {
			continue
		}
		seen[t.ref] = struct{}{}
		sel.Frames = append(sel.Frames, t.ref)

		if last := len(sel.Phases) - 1; last >= 0 && sel.Phases[last].Phase == t.phase {
			sel.Phases[last].Frames = append(sel.Phases[last].Frames, t.ref)
		} else {
			sel.Phases = append(sel.Phases, PhaseSelection{Phase: t.phase, Frames: []FrameRef{t.ref}})
		}
	}

	s.check(sel)
	return sel, nil
}

// NeedsFallback reports whether sel is empty or below the acceptable minimum,
// and still has room under the hard cap.
func (s Selector) NeedsFallback(sel Selection) bool {
	n := len(sel.Frames)
	return (n == 0 || n < s.MinAcceptable) && n < s.HardCap
}

// Complete finalizes sel. When it needs a fallback, refs from fallback that are
// not already selected are appended in the given order until fallback runs out
// or the hard cap is reached. Existing frames are never dropped or moved.
// An empty result yields ErrNoContent.
func (s Selector) Complete(sel Selection, fallback []FrameRef) (Selection, error) {
	if s.NeedsFallback(sel) {
		sel.Fallback = true

		seen := make(map[FrameRef]struct{}, len(sel.Frames)+len(fallback))
		for _, ref := range sel.Frames {
			seen[ref] = struct{}{}
		}

		frames := make([]FrameRef, len(sel.Frames), min(len(sel.Frames)+len(fallback), s.HardCap))
		copy(frames, sel.Frames)
		for _, ref := range fallback {
			if len(frames) >= s.HardCap {
				break
			}
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			frames = append(frames, ref)
			sel.FallbackAdded++
		}
		sel.Frames = frames
	}

	s.check(sel)
	if len(sel.Frames) == 0 {
		return sel, ErrNoContent
	}
	return sel, nil
}

func (s Selector) byPriority(lists []StrategyFrames) []StrategyFrames {
	if len(s.Priority) == 0 || len(lists) < 2 {
		return lists
	}
	rank := make(map[Strategy]int, len(s.Priority))
	for i, st := range s.Priority {
		if _, ok := rank[st]; !ok {
			rank[st] = i
		}
	}
	rankOf := func(st Strategy) int {
		if r, ok := rank[st]; ok {
			return r
		}
		return len(s.Priority)
	}

	ordered := make([]StrategyFrames, len(lists))
	copy(ordered, lists)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rankOf(ordered[i].Strategy) < rankOf(ordered[j].Strategy)
	})
	return ordered
}

func (s Selector) check(sel Selection) {
	mustHold(len(sel.Frames) <= s.HardCap, "selection of %d frames exceeds hard cap %d", len(sel.Frames), s.HardCap)
	seen := make(map[FrameRef]struct{}, len(sel.Frames))
	for _, ref := range sel.Frames {
		_, dup := seen[ref]
		mustHold(!dup, "duplicate frame %q in selection", ref)
		seen[ref] = struct{}{}
	}
}
