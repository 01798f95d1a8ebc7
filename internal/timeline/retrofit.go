package timeline

import (
	"fmt"
	"time"

	"github.com/bossmod/tracker/internal/statemachine"
	"github.com/bossmod/tracker/pkg/core"
)

// Timings are observed durations to apply to a tree.
type Timings struct {
	// States overrides node durations. Zero marks a state skipped by the
	// branch that was taken.
	States map[core.StateID]time.Duration
	// PhaseDurations overrides phase durations by index when positive.
	PhaseDurations []time.Duration
}

// ApplyTimings overwrites the durations of the given nodes and recomputes
// every derived time. Applying the same timings again gives the same tree.
func (t *Tree) ApplyTimings(tm Timings) error {
	for id := range tm.States {
		if _, ok := t.Nodes[id]; !ok {
			return &MalformedTimingDataError{StateID: id}
		}
	}
	for id, d := range tm.States {
		t.Nodes[id].Duration = d
	}
	t.recompute(tm.PhaseDurations)
	return nil
}

// Observe turns a recorded fight into timings for this tree and returns, per
// phase, the index of the branch the fight ended that phase on.
//
// Each recorded state gets the time since the previous exit. States on a
// declared path from any state already reached in the same phase to the
// current one that were never entered are zeroed, back to the phase start
// for the first state of a phase. A side branch that was skipped, including
// one that rejoins the path taken, stops counting.
func (t *Tree) Observe(trace core.EncounterTrace) (Timings, []int, error) {
	tm := Timings{
		States:         make(map[core.StateID]time.Duration, len(trace.States)),
		PhaseDurations: make([]time.Duration, len(t.Phases)),
	}
	reached := make(map[core.StateID]bool, len(trace.States))

	enter := trace.Start
	inPhase := make(map[int][]core.StateID)
	for _, rec := range trace.States {
		n, ok := t.Nodes[rec.ID]
		if !ok {
			return Timings{}, nil, &MalformedTimingDataError{StateID: rec.ID}
		}
		for _, p := range t.between(inPhase[n.Phase], rec.ID) {
			if !reached[p] {
				tm.States[p] = 0
			}
		}
		tm.States[rec.ID] = rec.Exit.Sub(enter)
		if !reached[rec.ID] {
			inPhase[n.Phase] = append(inPhase[n.Phase], rec.ID)
		}
		reached[rec.ID] = true
		enter = rec.Exit
	}

	branches := make([]int, len(t.Phases))
	phaseEnter := trace.Start
	for _, p := range trace.Phases {
		if p.ID < 0 || p.ID >= len(t.Phases) {
			return Timings{}, nil, fmt.Errorf("timing data references unknown phase %d", p.ID)
		}
		last, ok := t.Nodes[p.LastStateID]
		if !ok {
			return Timings{}, nil, &MalformedTimingDataError{StateID: p.LastStateID}
		}
		branches[p.ID] = last.BranchID - t.Phases[p.ID].FirstBranch
		tm.PhaseDurations[p.ID] = p.Exit.Sub(phaseEnter)
		phaseEnter = p.Exit
	}

	return tm, branches, nil
}

// between returns the states lying on a declared path from any of the
// reached states to id, exclusive. With nothing reached yet the paths start
// at the phase start.
func (t *Tree) between(reached []core.StateID, id core.StateID) []core.StateID {
	from := make(map[core.StateID]bool)
	for _, r := range reached {
		for d := range t.descendants(r) {
			from[d] = true
		}
	}
	if len(reached) == 0 {
		start := t.Phases[t.Nodes[id].Phase].Start
		from = t.descendants(start)
		from[start] = true
	}

	var out []core.StateID
	seen := map[core.StateID]bool{id: true}
	queue := []core.StateID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range t.preds[cur] {
			if seen[p] || !from[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
			queue = append(queue, p)
		}
	}
	return out
}

func (t *Tree) descendants(id core.StateID) map[core.StateID]bool {
	out := make(map[core.StateID]bool)
	stack := append([]core.StateID(nil), t.Nodes[id].Successors...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[cur] {
			continue
		}
		out[cur] = true
		stack = append(stack, t.Nodes[cur].Successors...)
	}
	return out
}

// Retrofit builds a fresh tree for def with the durations observed in trace.
func Retrofit(def *statemachine.Definition, trace core.EncounterTrace) (*Tree, []int, error) {
	tree := NewTree(def)
	tm, branches, err := tree.Observe(trace)
	if err != nil {
		return nil, nil, fmt.Errorf("retrofit %s: %w", def.Name(), err)
	}
	if err := tree.ApplyTimings(tm); err != nil {
		return nil, nil, fmt.Errorf("retrofit %s: %w", def.Name(), err)
	}
	return tree, branches, nil
}
