package worker

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bossmod/tracker/internal/dispatcher"
	"github.com/bossmod/tracker/internal/logging"
	"github.com/bossmod/tracker/internal/module"
	"github.com/bossmod/tracker/internal/parser"
	"github.com/bossmod/tracker/internal/replay"
	"github.com/bossmod/tracker/internal/session"
	"github.com/bossmod/tracker/internal/statemachine"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) { l.add(msg) }
func (l *mockLogger) Info(msg string, keysAndValues ...any)  { l.add(msg) }
func (l *mockLogger) Error(msg string, keysAndValues ...any) { l.add(msg) }

func (l *mockLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

const bossFrame = `{"timeMs": %d, "zone": 1008, "inCombat": %t, "playerActorId": 1, "actors": [
	{"instanceId": 1, "oid": 0, "kind": "player", "hitboxRadius": 0.5},
	{"instanceId": 7, "oid": 100, "kind": "enemy", "hitboxRadius": 5}
]}`

var t0 = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func frameArgs(sec int, inCombat bool) []string {
	return []string{fmt.Sprintf(bossFrame, t0.Add(time.Duration(sec)*time.Second).UnixMilli(), inCombat)}
}

func setup(t *testing.T, recorder *replay.Writer) (*dispatcher.Dispatcher, *session.Manager, *mockLogger) {
	t.Helper()
	def, err := statemachine.NewDefinition(100, "Test Boss", []statemachine.PhaseSpec{
		{Name: "p1", Initial: 1, States: []statemachine.State{
			{ID: 1, Name: "a", Duration: 2 * time.Second, Next: 2},
			{ID: 2, Name: "b", Duration: 3 * time.Second},
		}},
	})
	require.NoError(t, err)
	reg := module.NewRegistry()
	require.NoError(t, reg.Register(def))

	sessions := session.NewManager()
	require.NoError(t, sessions.Open("live", session.Dependencies{Registry: reg}))
	t.Cleanup(func() { sessions.CloseAll(t0) })

	logger := &mockLogger{}
	d, err := dispatcher.New(logger)
	require.NoError(t, err)

	m := NewManager(Dependencies{
		Parser:      parser.NewParser(nil),
		Sessions:    sessions,
		SessionName: "live",
		Recorder:    recorder,
		LogManager:  logging.NewSlogManager(),
	})
	m.RegisterHandlers(d)
	return d, sessions, logger
}

func TestRegisterHandlers(t *testing.T) {
	d, _, _ := setup(t, nil)
	assert.Equal(t, []string{CmdEncounterReset, CmdFrame, CmdLog, CmdTick}, d.Commands())
}

func TestFrameAndTick(t *testing.T) {
	d, sessions, logger := setup(t, nil)

	res, err := d.Dispatch(dispatcher.Event{Command: CmdFrame, Args: frameArgs(0, true)})
	require.NoError(t, err)
	fr := res.(FrameResult)
	assert.Equal(t, 2, fr.Actors)
	assert.Equal(t, "Test Boss", fr.Encounter)
	assert.Equal(t, uint32(1), fr.State)

	res, err = d.Dispatch(dispatcher.Event{Command: CmdTick, Args: []string{fmt.Sprintf("%d", t0.Add(2*time.Second).UnixMilli())}})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), res.(FrameResult).State)

	res, err = d.Dispatch(dispatcher.Event{Command: CmdTick, Args: []string{fmt.Sprintf("%d", t0.Add(5*time.Second).UnixMilli())}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.(FrameResult).Finished)

	require.NoError(t, sessions.With("live", func(s *session.Session) error {
		assert.Len(t, s.Results(), 1)
		return nil
	}))
	assert.Contains(t, logger.messages, "handling event")
}

func TestFrame_ParseError(t *testing.T) {
	d, _, logger := setup(t, nil)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdFrame, Args: []string{"{not json"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse frame")
	assert.Contains(t, logger.messages, "event failed")
}

func TestReset(t *testing.T) {
	d, sessions, _ := setup(t, nil)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdFrame, Args: frameArgs(0, true)})
	require.NoError(t, err)
	_, err = d.Dispatch(dispatcher.Event{Command: CmdEncounterReset, Args: []string{fmt.Sprintf("%d", t0.Add(time.Second).UnixMilli())}})
	require.NoError(t, err)

	require.NoError(t, sessions.With("live", func(s *session.Session) error {
		require.Len(t, s.Results(), 1)
		assert.Equal(t, t0.Add(time.Second), s.Results()[0].Trace.End)
		return nil
	}))
}

func TestTickAndResetWithoutTimeUseFrameClock(t *testing.T) {
	d, sessions, _ := setup(t, nil)

	for _, sec := range []int{0, 1} {
		_, err := d.Dispatch(dispatcher.Event{Command: CmdFrame, Args: frameArgs(sec, true)})
		require.NoError(t, err)
	}

	// the host clock is far behind the wall clock
	res, err := d.Dispatch(dispatcher.Event{Command: CmdTick, Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.(FrameResult).State)
	assert.Equal(t, 0, res.(FrameResult).Finished)

	_, err = d.Dispatch(dispatcher.Event{Command: CmdEncounterReset, Timestamp: time.Now()})
	require.NoError(t, err)

	require.NoError(t, sessions.With("live", func(s *session.Session) error {
		require.Len(t, s.Results(), 1)
		tr := s.Results()[0].Trace
		assert.Equal(t, t0.Add(time.Second), tr.End)
		assert.GreaterOrEqual(t, tr.Duration(), time.Duration(0))
		for _, st := range tr.States {
			assert.False(t, st.Exit.After(tr.End), "state %d", st.ID)
		}
		return nil
	}))
}

func TestLog(t *testing.T) {
	d, _, _ := setup(t, nil)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdLog, Args: []string{"plugin", "hello", "warn"}})
	require.NoError(t, err)

	_, err = d.Dispatch(dispatcher.Event{Command: CmdLog, Args: []string{"plugin"}})
	require.Error(t, err)
}

func TestRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live"+replay.Extension)
	rec, err := replay.Create(path)
	require.NoError(t, err)

	d, _, _ := setup(t, rec)
	for _, sec := range []int{0, 1} {
		_, err = d.Dispatch(dispatcher.Event{Command: CmdFrame, Args: frameArgs(sec, true)})
		require.NoError(t, err)
	}
	_, err = d.Dispatch(dispatcher.Event{Command: CmdTick, Args: []string{fmt.Sprintf("%d", t0.Add(10*time.Second).UnixMilli())}})
	require.NoError(t, err)
	_, err = d.Dispatch(dispatcher.Event{Command: CmdFrame, Args: frameArgs(11, false)})
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	entries, err := replay.Read(path)
	require.NoError(t, err)
	kinds := make([]replay.Kind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []replay.Kind{replay.KindFrame, replay.KindFrame, replay.KindTick, replay.KindFrame, replay.KindEncounter}, kinds)
	require.Len(t, replay.Traces(entries), 1)
}

func TestUnknownSession(t *testing.T) {
	m := NewManager(Dependencies{Parser: parser.NewParser(nil), Sessions: session.NewManager(), SessionName: "gone"})
	d, err := dispatcher.New(nil)
	require.NoError(t, err)
	m.RegisterHandlers(d)

	_, err = d.Dispatch(dispatcher.Event{Command: CmdFrame, Args: frameArgs(0, true)})
	assert.ErrorIs(t, err, session.ErrNoSession)
}
