// Package timeline projects expected timings over an encounter script and
// retrofits the durations observed in a recorded fight onto that projection.
package timeline

import (
	"fmt"
	"time"

	"github.com/bossmod/tracker/internal/statemachine"
	"github.com/bossmod/tracker/pkg/core"
)

// MalformedTimingDataError is returned when recorded data names a state the
// script does not have, usually because the recording was made with another
// version of the encounter definition.
type MalformedTimingDataError struct {
	StateID core.StateID
}

func (e *MalformedTimingDataError) Error() string {
	return fmt.Sprintf("timing data references unknown state %d", e.StateID)
}

// Node is one reachable state of the script.
type Node struct {
	State core.StateID
	Name  string
	Phase int
	// BranchID is the global index of the leftmost branch through this node.
	BranchID int
	Duration time.Duration
	// Time is the worst-case time from phase start to the end of this node.
	Time time.Duration
	// Predecessor is the first predecessor found walking from the phase start.
	Predecessor core.StateID
	Successors  []core.StateID
}

// IsLeaf reports whether the phase ends after this node.
func (n *Node) IsLeaf() bool { return len(n.Successors) == 0 }

// Phase is one phase of the tree.
type Phase struct {
	Name  string
	Start core.StateID
	// FirstBranch and Branches give the global branch ids owned by the phase.
	FirstBranch int
	Branches    int
	StartTime   time.Duration
	Duration    time.Duration
	MaxTime     time.Duration
}

// Tree is a timing view over a statemachine.Definition. It copies durations
// and never changes the definition.
type Tree struct {
	Nodes         map[core.StateID]*Node
	Phases        []*Phase
	TotalBranches int
	TotalMaxTime  time.Duration

	order [][]core.StateID // per phase, topological
	preds map[core.StateID][]core.StateID
}

// NewTree lays out every state reachable from a phase start.
func NewTree(def *statemachine.Definition) *Tree {
	t := &Tree{
		Nodes: make(map[core.StateID]*Node, def.Len()),
		preds: make(map[core.StateID][]core.StateID),
	}

	branch := 0
	for pi, ph := range def.Phases() {
		phase := &Phase{Name: ph.Name, Start: ph.Initial, FirstBranch: branch}
		var post []core.StateID

		var layout func(id, pred core.StateID) bool
		layout = func(id, pred core.StateID) bool {
			if pred != core.NoState {
				t.preds[id] = append(t.preds[id], pred)
			}
			if _, seen := t.Nodes[id]; seen {
				return false
			}
			s := def.MustState(id)
			n := &Node{
				State:       id,
				Name:        s.Name,
				Phase:       pi,
				BranchID:    branch,
				Duration:    s.Duration,
				Predecessor: pred,
				Successors:  def.Successors(id),
			}
			t.Nodes[id] = n

			fresh := false
			for _, succ := range n.Successors {
				if layout(succ, id) {
					fresh = true
				}
			}
			if !fresh {
				// a branch ends here, either at a leaf or where it rejoins a known node
				branch++
			}
			post = append(post, id)
			return true
		}
		layout(ph.Initial, core.NoState)

		// reverse postorder is a topological order of the phase
		order := make([]core.StateID, len(post))
		for i, id := range post {
			order[len(post)-1-i] = id
		}
		t.order = append(t.order, order)

		phase.Branches = branch - phase.FirstBranch
		t.Phases = append(t.Phases, phase)
	}
	t.TotalBranches = branch

	t.recompute(nil)
	return t
}

// Node returns the node for a state.
func (t *Tree) Node(id core.StateID) (*Node, bool) {
	n, ok := t.Nodes[id]
	return n, ok
}

// Predecessors returns every predecessor of a node, in discovery order.
func (t *Tree) Predecessors(id core.StateID) []core.StateID {
	return t.preds[id]
}

// recompute refreshes node times, phase maxima and phase start times.
// phaseDurations overrides the expected duration of a phase when positive.
func (t *Tree) recompute(phaseDurations []time.Duration) {
	var start time.Duration
	for pi, phase := range t.Phases {
		phase.MaxTime = 0
		for _, id := range t.order[pi] {
			n := t.Nodes[id]
			var reach time.Duration
			for _, p := range t.preds[id] {
				if pt := t.Nodes[p].Time; pt > reach {
					reach = pt
				}
			}
			n.Time = reach + n.Duration
			if n.Time > phase.MaxTime {
				phase.MaxTime = n.Time
			}
		}

		phase.Duration = phase.MaxTime
		if pi < len(phaseDurations) && phaseDurations[pi] > 0 {
			phase.Duration = phaseDurations[pi]
		}
		phase.StartTime = start
		start += phase.Duration
	}

	t.TotalMaxTime = 0
	if n := len(t.Phases); n > 0 {
		last := t.Phases[n-1]
		t.TotalMaxTime = last.StartTime + max(last.Duration, last.MaxTime)
	}
}
