package timeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bossmod/tracker/internal/statemachine"
	"github.com/bossmod/tracker/pkg/core"
)

const sec = time.Second

var t0 = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func at(s float64) time.Time {
	return t0.Add(time.Duration(s * float64(sec)))
}

// branching: 1 -> {2 -> 3, 4 -> 5}; second phase 10
func branchingDefinition(t *testing.T) *statemachine.Definition {
	t.Helper()
	def, err := statemachine.NewDefinition(1, "branching", []statemachine.PhaseSpec{
		{Name: "p1", Initial: 1, States: []statemachine.State{
			{ID: 1, Name: "a", Duration: 2 * sec, Next: 2, Successors: []core.StateID{2, 4}},
			{ID: 2, Name: "b", Duration: 3 * sec, Next: 3},
			{ID: 3, Name: "c", Duration: 1 * sec},
			{ID: 4, Name: "d", Duration: 5 * sec, Next: 5},
			{ID: 5, Name: "e", Duration: 1 * sec},
		}},
		{Name: "p2", Initial: 10, States: []statemachine.State{
			{ID: 10, Name: "f", Duration: 4 * sec},
		}},
	})
	require.NoError(t, err)
	return def
}

// converging: 1 -> {2, 3} -> 4
func convergingDefinition(t *testing.T) *statemachine.Definition {
	t.Helper()
	def, err := statemachine.NewDefinition(1, "converging", []statemachine.PhaseSpec{
		{Name: "p", Initial: 1, States: []statemachine.State{
			{ID: 1, Duration: 2 * sec, Next: 2, Successors: []core.StateID{3}},
			{ID: 2, Duration: 1 * sec, Next: 4},
			{ID: 3, Duration: 5 * sec, Next: 4},
			{ID: 4, Duration: 1 * sec},
		}},
	})
	require.NoError(t, err)
	return def
}

func TestNewTree_Layout(t *testing.T) {
	tree := NewTree(branchingDefinition(t))

	wantTimes := map[core.StateID]time.Duration{1: 2 * sec, 2: 5 * sec, 3: 6 * sec, 4: 7 * sec, 5: 8 * sec, 10: 4 * sec}
	wantBranch := map[core.StateID]int{1: 0, 2: 0, 3: 0, 4: 1, 5: 1, 10: 2}
	for id, want := range wantTimes {
		n, ok := tree.Node(id)
		require.True(t, ok, "node %d", id)
		assert.Equal(t, want, n.Time, "time of %d", id)
		assert.Equal(t, wantBranch[id], n.BranchID, "branch of %d", id)
	}

	assert.Equal(t, core.StateID(1), tree.Nodes[4].Predecessor)
	assert.True(t, tree.Nodes[3].IsLeaf())
	assert.False(t, tree.Nodes[1].IsLeaf())

	assert.Equal(t, 3, tree.TotalBranches)
	require.Len(t, tree.Phases, 2)
	assert.Equal(t, Phase{Name: "p1", Start: 1, FirstBranch: 0, Branches: 2, StartTime: 0, Duration: 8 * sec, MaxTime: 8 * sec}, *tree.Phases[0])
	assert.Equal(t, Phase{Name: "p2", Start: 10, FirstBranch: 2, Branches: 1, StartTime: 8 * sec, Duration: 4 * sec, MaxTime: 4 * sec}, *tree.Phases[1])
	assert.Equal(t, 12*sec, tree.TotalMaxTime)
}

func TestNewTree_ConvergenceTakesWorstCase(t *testing.T) {
	tree := NewTree(convergingDefinition(t))

	n := tree.Nodes[4]
	assert.Equal(t, 8*sec, n.Time, "reached through the slower branch")
	assert.Equal(t, core.StateID(2), n.Predecessor)
	assert.Equal(t, []core.StateID{2, 3}, tree.Predecessors(4))
	assert.Equal(t, 0, n.BranchID)
	assert.Equal(t, 2, tree.Phases[0].Branches)
}

func TestNewTree_DoesNotTouchDefinition(t *testing.T) {
	def := branchingDefinition(t)
	tree := NewTree(def)
	require.NoError(t, tree.ApplyTimings(Timings{States: map[core.StateID]time.Duration{2: 0}}))

	assert.Equal(t, 3*sec, def.MustState(2).Duration)
	assert.Equal(t, time.Duration(0), tree.Nodes[2].Duration)
}

func TestApplyTimings_UnknownState(t *testing.T) {
	tree := NewTree(branchingDefinition(t))
	err := tree.ApplyTimings(Timings{States: map[core.StateID]time.Duration{1: sec, 77: sec}})

	var malformed *MalformedTimingDataError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, core.StateID(77), malformed.StateID)
	assert.Equal(t, 2*sec, tree.Nodes[1].Duration, "tree untouched on error")
}

func TestApplyTimings_PhaseDurations(t *testing.T) {
	tree := NewTree(branchingDefinition(t))
	require.NoError(t, tree.ApplyTimings(Timings{PhaseDurations: []time.Duration{10 * sec, 0}}))

	assert.Equal(t, 10*sec, tree.Phases[1].StartTime)
	assert.Equal(t, 4*sec, tree.Phases[1].Duration, "zero keeps the expected duration")
	assert.Equal(t, 14*sec, tree.TotalMaxTime)
}
