package gormstorage

import (
	"testing"
	"time"

	"github.com/bossmod/tracker/internal/database"
	"github.com/bossmod/tracker/internal/model"
	"github.com/bossmod/tracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fightStart = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

// newTestBackend creates a Backend with no DB (queue-only mode for unit testing).
func newTestBackend() *Backend {
	return New(Dependencies{})
}

// newSqliteBackend creates a Backend over a private in-memory SQLite database.
// The writer interval is long so tests control flushing.
func newSqliteBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSqlite(database.MemoryDSN(t.Name()))
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func sampleTrace() core.EncounterTrace {
	return core.EncounterTrace{
		OID:   0x35FD,
		Name:  "Hesperos",
		Start: fightStart,
		End:   fightStart.Add(25 * time.Second),
		Phases: []core.PhaseRecord{
			{ID: 0, Name: "Phase 1", Enter: fightStart, Exit: fightStart.Add(25 * time.Second), LastStateID: 2},
		},
		States: []core.StateRecord{
			{ID: 1, Name: "Opener", Exit: fightStart.Add(10 * time.Second)},
			{ID: 2, Name: "Enrage", Exit: fightStart.Add(25 * time.Second)},
		},
	}
}

func TestInitClose(t *testing.T) {
	b := newTestBackend()

	require.NoError(t, b.Init())
	require.NotNil(t, b.queues)

	require.NoError(t, b.Close())
	// second close is a no-op
	require.NoError(t, b.Close())
}

func TestCloseWithoutInit(t *testing.T) {
	b := newTestBackend()
	assert.NoError(t, b.Close())
}

func TestRecord_QueuesWithEncounterID(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	defer b.Close()

	enc := &core.Encounter{OID: 0x35FD, Name: "Hesperos"}
	require.NoError(t, b.StartEncounter(enc))
	assert.Equal(t, uint(1), enc.ID)

	require.NoError(t, b.RecordCast(&core.CastEvent{ActorID: 1, ActionID: 26150}))
	require.NoError(t, b.RecordStatus(&core.StatusEvent{ActorID: 1, StatusID: 2941}))
	require.NoError(t, b.RecordTransition(&core.StateTransition{From: 1, To: 2}))

	assert.Equal(t, 1, b.queues.Casts.Len())
	assert.Equal(t, 1, b.queues.Statuses.Len())
	assert.Equal(t, 1, b.queues.Transitions.Len())
	assert.Equal(t, 3, b.Pending())

	casts := b.queues.Casts.GetAndEmpty()
	assert.Equal(t, uint(1), casts[0].EncounterID)
}

func TestEndEncounter_WithoutStartIsNoop(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	defer b.Close()

	assert.NoError(t, b.EndEncounter(sampleTrace()))
}

func TestSqlite_FullEncounter(t *testing.T) {
	b := newSqliteBackend(t)

	enc := &core.Encounter{OID: 0x35FD, Name: "Hesperos", Zone: 1003, Start: fightStart}
	require.NoError(t, b.StartEncounter(enc))
	require.NotZero(t, enc.ID)

	require.NoError(t, b.RecordCast(&core.CastEvent{
		Time: fightStart.Add(time.Second), ActorID: 0x400001, OID: 0x35FD, ActionID: 26150,
		Location: core.Vec3{X: 100, Y: 0, Z: 95}, TotalTime: 4.7, Started: true,
	}))
	require.NoError(t, b.RecordStatus(&core.StatusEvent{Time: fightStart.Add(2 * time.Second), ActorID: 0x10000001, StatusID: 2941, Added: true}))
	require.NoError(t, b.RecordTransition(&core.StateTransition{Time: fightStart.Add(10 * time.Second), From: 1, To: 2, Elapsed: 10 * time.Second}))

	require.NoError(t, b.EndEncounter(sampleTrace()))
	assert.Equal(t, 0, b.Pending())

	db := b.DB()

	var casts []model.CastEvent
	require.NoError(t, db.Find(&casts).Error)
	require.Len(t, casts, 1)
	assert.Equal(t, enc.ID, casts[0].EncounterID)
	assert.Equal(t, uint32(26150), casts[0].ActionID)
	coord, ok := casts[0].Location.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 100.0, coord.XY.X)
	assert.Equal(t, 95.0, coord.XY.Y)

	var statusCount, transitionCount int64
	db.Model(&model.StatusEvent{}).Count(&statusCount)
	db.Model(&model.StateTransition{}).Count(&transitionCount)
	assert.Equal(t, int64(1), statusCount)
	assert.Equal(t, int64(1), transitionCount)

	var stored model.Encounter
	require.NoError(t, db.First(&stored, enc.ID).Error)
	assert.Equal(t, int64(25000), stored.DurationMs)
	require.NotNil(t, stored.EndTime)

	trace, err := b.LoadTrace(enc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hesperos", trace.Name)
	require.Len(t, trace.States, 2)
	assert.Equal(t, core.StateID(2), trace.States[1].ID)
	assert.Equal(t, core.StateID(2), trace.Phases[0].LastStateID)
}

func TestSqlite_PhaseAndStateRows(t *testing.T) {
	b := newSqliteBackend(t)

	enc := &core.Encounter{OID: 0x35FD, Name: "Hesperos", Start: fightStart}
	require.NoError(t, b.StartEncounter(enc))
	require.NoError(t, b.EndEncounter(sampleTrace()))

	var states []model.EncounterState
	require.NoError(t, b.DB().Where("encounter_id = ?", enc.ID).Order("seq").Find(&states).Error)
	require.Len(t, states, 2)
	assert.Equal(t, uint32(1), states[0].StateID)
	assert.Equal(t, "Enrage", states[1].Name)

	var phases []model.EncounterPhase
	require.NoError(t, b.DB().Where("encounter_id = ?", enc.ID).Find(&phases).Error)
	require.Len(t, phases, 1)
	assert.Equal(t, "Phase 1", phases[0].Name)
}

func TestSqlite_CloseFlushes(t *testing.T) {
	db, err := database.OpenSqlite(database.MemoryDSN(t.Name()))
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())

	require.NoError(t, b.StartEncounter(&core.Encounter{OID: 1, Start: fightStart}))
	require.NoError(t, b.RecordCast(&core.CastEvent{ActorID: 1}))
	require.NoError(t, b.Close())

	var count int64
	db.Model(&model.CastEvent{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSqlite_LoadTraceMissing(t *testing.T) {
	b := newSqliteBackend(t)

	_, err := b.LoadTrace(999)
	require.ErrorIs(t, err, ErrNoEncounter)
}

func TestSqlite_WriterLoopDrains(t *testing.T) {
	db, err := database.OpenSqlite(database.MemoryDSN(t.Name()))
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: 20 * time.Millisecond})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartEncounter(&core.Encounter{OID: 1, Start: fightStart}))
	require.NoError(t, b.RecordStatus(&core.StatusEvent{ActorID: 1, StatusID: 5}))

	assert.Eventually(t, func() bool { return b.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
}
