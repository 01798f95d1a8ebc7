package worldstate

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bossmod/tracker/pkg/core"
)

// recorder captures every notification of a WorldState as a readable line.
type recorder struct {
	lines []string
	moves []ActorMoved
}

func newRecordedWorld(t *testing.T, opts Options) (*WorldState, *recorder) {
	t.Helper()
	w := New(opts)
	r := &recorder{}
	ev := &w.Events
	ev.ZoneChanged.Subscribe(func(z uint16) { r.add("zone %d", z) })
	ev.InCombatChanged.Subscribe(func(b bool) { r.add("combat %v", b) })
	ev.PlayerActorIDChanged.Subscribe(func(id uint32) { r.add("player %d", id) })
	ev.ActorCreated.Subscribe(func(a *core.Actor) { r.add("created %d", a.InstanceID) })
	ev.ActorDestroyed.Subscribe(func(a *core.Actor) {
		r.add("destroyed %d at (%g,%g,%g)", a.InstanceID, a.Position.X, a.Position.Y, a.Position.Z)
	})
	ev.ActorMoved.Subscribe(func(m ActorMoved) {
		r.moves = append(r.moves, m)
		r.add("moved %d", m.Actor.InstanceID)
	})
	ev.CastStarted.Subscribe(func(a *core.Actor) { r.add("cast start %d action %d", a.InstanceID, a.CastInfo.ActionID) })
	ev.CastFinished.Subscribe(func(a *core.Actor) { r.add("cast finish %d action %d", a.InstanceID, a.CastInfo.ActionID) })
	ev.StatusAdded.Subscribe(func(s ActorStatus) { r.add("status add %d slot %d id %d", s.Actor.InstanceID, s.Slot, s.Status().ID) })
	ev.StatusRemoved.Subscribe(func(s ActorStatus) {
		r.add("status remove %d slot %d id %d", s.Actor.InstanceID, s.Slot, s.Status().ID)
	})
	return w, r
}

func (r *recorder) add(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recorder) take() []string {
	out := r.lines
	r.lines = nil
	return out
}

func TestActorLifecycleScenario(t *testing.T) {
	w, r := newRecordedWorld(t, Options{})

	act, err := w.AddActor(7, 100, core.KindEnemy, core.Vec3{}, 0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, []string{"created 7"}, r.take())

	w.MoveActor(act, core.Vec3{X: 1}, 0)
	assert.Equal(t, []string{"moved 7"}, r.take())
	require.Len(t, r.moves, 1)
	assert.Equal(t, core.Vec3{}, r.moves[0].PrevPosition)
	assert.Equal(t, float32(0), r.moves[0].PrevRotation)

	w.RemoveActor(7)
	assert.Equal(t, []string{"destroyed 7 at (1,0,0)"}, r.take())
	assert.Nil(t, w.FindActor(7))
	assert.Equal(t, 0, w.Len())
}

func TestAddActor_Collision(t *testing.T) {
	w, r := newRecordedWorld(t, Options{})

	_, err := w.AddActor(1, 10, core.KindPlayer, core.Vec3{}, 0, 0.5)
	require.NoError(t, err)

	_, err = w.AddActor(1, 11, core.KindEnemy, core.Vec3{}, 0, 2)
	require.ErrorIs(t, err, ErrActorExists)
	assert.Equal(t, []string{"created 1"}, r.take())
	assert.Equal(t, uint32(10), w.FindActor(1).OID)
}

func TestAddActor_ReuseAfterRemove(t *testing.T) {
	w, _ := newRecordedWorld(t, Options{})

	_, err := w.AddActor(5, 1, core.KindEnemy, core.Vec3{}, 0, 1)
	require.NoError(t, err)
	w.RemoveActor(5)

	act, err := w.AddActor(5, 2, core.KindPet, core.Vec3{}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), act.OID)
}

func TestRemoveActor_UnknownPanics(t *testing.T) {
	w := New(Options{})
	assert.Panics(t, func() { w.RemoveActor(42) })
}

func TestFindActor_Absent(t *testing.T) {
	w := New(Options{})
	assert.Nil(t, w.FindActor(3))
}

func TestMoveActor(t *testing.T) {
	tests := []struct {
		name  string
		pos   core.Vec3
		rot   float32
		moved bool
	}{
		{"identical", core.Vec3{X: 1, Y: 2, Z: 3}, 0.5, false},
		{"position changed", core.Vec3{X: 1, Y: 2, Z: 4}, 0.5, true},
		{"rotation changed", core.Vec3{X: 1, Y: 2, Z: 3}, 0.6, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, r := newRecordedWorld(t, Options{})
			act, err := w.AddActor(1, 1, core.KindEnemy, core.Vec3{X: 1, Y: 2, Z: 3}, 0.5, 1)
			require.NoError(t, err)
			r.take()

			w.MoveActor(act, tt.pos, tt.rot)
			if tt.moved {
				assert.Equal(t, []string{"moved 1"}, r.take())
				assert.Equal(t, core.Vec3{X: 1, Y: 2, Z: 3}, r.moves[0].PrevPosition)
				assert.Equal(t, float32(0.5), r.moves[0].PrevRotation)
			} else {
				assert.Empty(t, r.take())
			}
		})
	}
}

func TestMoveActor_NegativeZeroIsAChange(t *testing.T) {
	w, r := newRecordedWorld(t, Options{})
	act, err := w.AddActor(1, 1, core.KindEnemy, core.Vec3{}, 0, 1)
	require.NoError(t, err)
	r.take()

	w.MoveActor(act, core.Vec3{}, float32(math.Copysign(0, -1)))
	assert.Equal(t, []string{"moved 1"}, r.take())
}

func TestMoveActor_NaNDoesNotRepeat(t *testing.T) {
	w, r := newRecordedWorld(t, Options{})
	act, err := w.AddActor(1, 1, core.KindEnemy, core.Vec3{}, 0, 1)
	require.NoError(t, err)
	r.take()

	nan := float32(math.NaN())
	w.MoveActor(act, core.Vec3{X: nan}, 0)
	w.MoveActor(act, core.Vec3{X: nan}, 0)
	assert.Equal(t, []string{"moved 1"}, r.take())
}

func TestGlobalSetters_FireOnlyOnChange(t *testing.T) {
	w, r := newRecordedWorld(t, Options{})

	w.SetZone(0)
	w.SetInCombat(false)
	w.SetPlayerActorID(0)
	assert.Empty(t, r.take())

	w.SetZone(777)
	w.SetZone(777)
	w.SetInCombat(true)
	w.SetInCombat(true)
	w.SetPlayerActorID(9)
	w.SetPlayerActorID(9)
	assert.Equal(t, []string{"zone 777", "combat true", "player 9"}, r.take())
	assert.Equal(t, uint16(777), w.Zone())
	assert.True(t, w.InCombat())
	assert.Equal(t, uint32(9), w.PlayerActorID())
}

func TestActors_SortedByID(t *testing.T) {
	w := New(Options{})
	for _, id := range []uint32{30, 10, 20} {
		_, err := w.AddActor(id, 1, core.KindEnemy, core.Vec3{}, 0, 1)
		require.NoError(t, err)
	}

	var ids []uint32
	for _, a := range w.Actors() {
		ids = append(ids, a.InstanceID)
	}
	assert.Equal(t, []uint32{10, 20, 30}, ids)
}
