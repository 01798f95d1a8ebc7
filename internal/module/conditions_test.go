package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bossmod/tracker/internal/statemachine"
	"github.com/bossmod/tracker/internal/worldstate"
	"github.com/bossmod/tracker/pkg/core"
)

const bossOID = 0x35FD

func TestConditions_Resolve(t *testing.T) {
	conds := DefaultConditions()

	tests := []struct {
		expr    string
		wantErr error
	}{
		{"always", nil},
		{" never ", nil},
		{"status:0x50", nil},
		{"cast_started:33364", nil},
		{"teleported", ErrUnknownCondition},
		{"status", nil}, // parsed below as a bad id
		{"always:1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := conds.Resolve(tt.expr)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.expr == "status" || tt.expr == "always:1":
				require.Error(t, err)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestConditions_Names(t *testing.T) {
	assert.Equal(t, []string{
		"all_enemies_dead", "always", "boss_dead", "cast_finished", "cast_started",
		"in_combat", "never", "out_of_combat", "status",
	}, DefaultConditions().Names())
}

func TestConditions_Evaluate(t *testing.T) {
	conds := DefaultConditions()
	eval := func(t *testing.T, w *worldstate.WorldState, expr string) bool {
		t.Helper()
		p, err := conds.Resolve(expr)
		require.NoError(t, err)
		return p(statemachine.Env{World: w, OID: bossOID})
	}

	w := worldstate.New(worldstate.Options{})
	player, err := w.AddActor(1, 0, core.KindPlayer, core.Vec3{}, 0, 0.5)
	require.NoError(t, err)
	boss, err := w.AddActor(2, bossOID, core.KindEnemy, core.Vec3{}, 0, 5)
	require.NoError(t, err)

	assert.False(t, eval(t, w, "boss_dead"))
	assert.False(t, eval(t, w, "all_enemies_dead"))
	assert.True(t, eval(t, w, "cast_finished"))
	assert.True(t, eval(t, w, "out_of_combat"))

	w.SetInCombat(true)
	assert.True(t, eval(t, w, "in_combat"))
	assert.False(t, eval(t, w, "out_of_combat"))

	w.UpdateCastInfo(boss, &core.CastInfo{ActionID: 33364, TotalTime: 5})
	assert.True(t, eval(t, w, "cast_started:33364"))
	assert.False(t, eval(t, w, "cast_started:1"))
	assert.False(t, eval(t, w, "cast_finished"))

	var statuses [core.StatusSlots]core.Status
	statuses[0] = core.Status{ID: 0x50, SourceID: 2}
	w.UpdateStatuses(player, &statuses)
	assert.True(t, eval(t, w, "status:80"))
	assert.False(t, eval(t, w, "status:81"))

	w.RemoveActor(2)
	assert.True(t, eval(t, w, "boss_dead"))
	assert.True(t, eval(t, w, "all_enemies_dead"))
}

func TestConditions_NoWorld(t *testing.T) {
	conds := DefaultConditions()
	for _, name := range []string{"in_combat", "out_of_combat", "boss_dead", "all_enemies_dead", "cast_finished", "status:1"} {
		p, err := conds.Resolve(name)
		require.NoError(t, err)
		assert.False(t, p(statemachine.Env{}), name)
	}
}

func TestConditions_Custom(t *testing.T) {
	conds := NewConditions()
	conds.Register("phase_two", func(string) (statemachine.Predicate, error) {
		return func(statemachine.Env) bool { return true }, nil
	})
	p, err := conds.Resolve("phase_two")
	require.NoError(t, err)
	assert.True(t, p(statemachine.Env{}))

	_, err = conds.Resolve("always")
	assert.ErrorIs(t, err, ErrUnknownCondition)
}
