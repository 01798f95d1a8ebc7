package statemachine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bossmod/tracker/pkg/core"
)

var t0 = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

// flag is a predicate toggled by the test.
type flag struct{ on bool }

func (f *flag) holds(Env) bool { return f.on }

func linearDefinition(t *testing.T) *Definition {
	t.Helper()
	def, err := NewDefinition(100, "linear", []PhaseSpec{
		{Name: "p1", Initial: 1, States: []State{
			{ID: 1, Name: "a", Duration: 2 * time.Second, Next: 2},
			{ID: 2, Name: "b", Duration: 3 * time.Second},
		}},
		{Name: "p2", Initial: 10, States: []State{
			{ID: 10, Name: "c", Duration: time.Second},
		}},
	})
	require.NoError(t, err)
	return def
}

func TestCursor_IdleUntilStarted(t *testing.T) {
	c := NewCursor(linearDefinition(t), nil, nil)
	assert.Equal(t, Idle, c.Status())
	assert.Equal(t, core.NoState, c.State())

	c.Tick(at(100))
	assert.Equal(t, Idle, c.Status())
	assert.Empty(t, c.Transitions())
}

func TestCursor_WalksPhasesToComplete(t *testing.T) {
	c := NewCursor(linearDefinition(t), nil, nil)
	var seen []core.StateTransition
	c.Transitioned.Subscribe(func(tr core.StateTransition) { seen = append(seen, tr) })

	c.Start(at(0))
	assert.Equal(t, Active, c.Status())
	assert.Equal(t, StateID(1), c.State())

	c.Tick(at(1.9))
	assert.Equal(t, StateID(1), c.State())

	c.Tick(at(2))
	assert.Equal(t, StateID(2), c.State())
	assert.Equal(t, 1*time.Second, c.Elapsed(at(3)))

	c.Tick(at(5.5))
	assert.Equal(t, StateID(10), c.State())
	assert.Equal(t, 1, c.Phase())

	c.Tick(at(7))
	assert.Equal(t, Complete, c.Status())
	assert.Equal(t, core.NoState, c.State())

	c.Tick(at(100))
	assert.Len(t, c.Transitions(), 3)
	assert.Equal(t, c.Transitions(), seen)
	assert.Equal(t, core.StateTransition{Time: at(2), Phase: 0, From: 1, To: 2, Elapsed: 2 * time.Second}, seen[0])
	assert.Equal(t, core.StateTransition{Time: at(5.5), Phase: 0, From: 2, To: 10, Elapsed: 3500 * time.Millisecond}, seen[1])
	assert.Equal(t, core.StateTransition{Time: at(7), Phase: 1, From: 10, To: core.NoState, Elapsed: 1500 * time.Millisecond}, seen[2])

	tr := c.Trace()
	assert.Equal(t, at(0), tr.Start)
	assert.Equal(t, at(7), tr.End)
	assert.Equal(t, []core.StateRecord{
		{ID: 1, Name: "a", Exit: at(2)},
		{ID: 2, Name: "b", Exit: at(5.5)},
		{ID: 10, Name: "c", Exit: at(7)},
	}, tr.States)
	assert.Equal(t, []core.PhaseRecord{
		{ID: 0, Name: "p1", Enter: at(0), Exit: at(5.5), LastStateID: 2},
		{ID: 1, Name: "p2", Enter: at(5.5), Exit: at(7), LastStateID: 10},
	}, tr.Phases)
}

func TestCursor_ZeroDurationChainsOnSameTick(t *testing.T) {
	def, err := NewDefinition(1, "chain", []PhaseSpec{{Name: "p", Initial: 1, States: []State{
		{ID: 1, Duration: time.Second, Next: 2},
		{ID: 2, Next: 3},
		{ID: 3, Complete: CompleteOnCondition, Condition: always, Next: 4},
		{ID: 4, Duration: time.Minute},
	}}})
	require.NoError(t, err)

	c := NewCursor(def, nil, nil)
	c.Start(at(0))
	c.Tick(at(1))

	assert.Equal(t, StateID(4), c.State())
	tr := c.Trace()
	require.Len(t, tr.States, 3)
	for _, s := range tr.States {
		assert.Equal(t, at(1), s.Exit)
	}
}

func TestCursor_ConditionCompletion(t *testing.T) {
	dead := &flag{}
	def, err := NewDefinition(1, "cond", []PhaseSpec{{Name: "p", Initial: 1, States: []State{
		{ID: 1, Duration: time.Hour, Complete: CompleteOnCondition, Condition: dead.holds, Next: 2},
		{ID: 2, Duration: 10 * time.Second, Complete: CompleteOnBoth, Condition: dead.holds},
	}}})
	require.NoError(t, err)

	c := NewCursor(def, nil, nil)
	c.Start(at(0))
	c.Tick(at(30))
	assert.Equal(t, StateID(1), c.State())

	dead.on = true
	c.Tick(at(31))
	assert.Equal(t, StateID(2), c.State(), "both mode waits for the duration")

	c.Tick(at(41))
	assert.Equal(t, Complete, c.Status())
}

func branchingDefinition(t *testing.T, left, right *flag) *Definition {
	t.Helper()
	def, err := NewDefinition(1, "branch", []PhaseSpec{{Name: "p", Initial: 1, States: []State{
		{ID: 1, Duration: time.Second, Next: 2, Successors: []StateID{2, 3}},
		{ID: 2, Duration: time.Second, Entry: left.holds},
		{ID: 3, Duration: time.Second, Entry: right.holds},
	}}})
	require.NoError(t, err)
	return def
}

func TestCursor_BranchResolution(t *testing.T) {
	tests := []struct {
		name          string
		left, right   bool
		want          StateID
		wantAmbiguous bool
	}{
		{"first match wins", true, true, 2, false},
		{"second branch", false, true, 3, false},
		{"none holds falls back to next", false, false, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(branchingDefinition(t, &flag{tt.left}, &flag{tt.right}), nil, nil)
			c.Start(at(0))
			c.Tick(at(1))

			assert.Equal(t, tt.want, c.State())
			require.Len(t, c.Transitions(), 1)
			assert.Equal(t, tt.wantAmbiguous, c.Transitions()[0].Ambiguous)
		})
	}
}

func TestCursor_SuccessorWithoutEntryNeverMatches(t *testing.T) {
	def, err := NewDefinition(1, "branch", []PhaseSpec{{Name: "p", Initial: 1, States: []State{
		{ID: 1, Next: 3, Successors: []StateID{2, 3}},
		{ID: 2, Duration: time.Minute},
		{ID: 3, Duration: time.Minute},
	}}})
	require.NoError(t, err)

	c := NewCursor(def, nil, nil)
	c.Start(at(0))
	assert.Equal(t, StateID(3), c.State())
}

func TestCursor_StopClosesOpenState(t *testing.T) {
	c := NewCursor(linearDefinition(t), nil, nil)
	c.Start(at(0))
	c.Tick(at(2))

	tr := c.Stop(at(4))
	assert.Equal(t, Complete, c.Status())
	assert.Equal(t, at(4), tr.End)
	assert.Equal(t, []core.StateRecord{
		{ID: 1, Name: "a", Exit: at(2)},
		{ID: 2, Name: "b", Exit: at(4)},
	}, tr.States)
	assert.Equal(t, []core.PhaseRecord{
		{ID: 0, Name: "p1", Enter: at(0), Exit: at(4), LastStateID: 2},
	}, tr.Phases)

	c.Tick(at(10))
	assert.Len(t, c.Trace().States, 2)
}

func TestCursor_StartTwiceIsNoop(t *testing.T) {
	c := NewCursor(linearDefinition(t), nil, nil)
	c.Start(at(0))
	c.Start(at(1))
	assert.Equal(t, at(0), c.Trace().Start)
}

func TestCursor_Deterministic(t *testing.T) {
	run := func() ([]core.StateTransition, core.EncounterTrace) {
		sw := &flag{}
		c := NewCursor(branchingDefinition(t, &flag{}, sw), nil, nil)
		c.Start(at(0))
		for i := 1; i <= 10; i++ {
			if i == 1 {
				sw.on = true
			}
			c.Tick(at(float64(i) * 0.5))
		}
		return c.Transitions(), c.Trace()
	}

	tr1, trace1 := run()
	tr2, trace2 := run()
	assert.Equal(t, tr1, tr2)
	assert.Equal(t, trace1, trace2)
	require.NotEmpty(t, tr1)
	assert.Equal(t, StateID(3), tr1[0].To)
}

func TestCursor_StopWhileIdle(t *testing.T) {
	c := NewCursor(linearDefinition(t), nil, nil)
	tr := c.Stop(at(5))
	assert.Equal(t, Complete, c.Status())
	assert.True(t, tr.End.IsZero())
	assert.Empty(t, tr.States)
}
