package worker

import (
	"errors"
	"fmt"

	"github.com/bossmod/tracker/internal/dispatcher"
	"github.com/bossmod/tracker/internal/session"
)

// Host commands.
const (
	CmdFrame          = ":FRAME:"
	CmdTick           = ":TICK:"
	CmdEncounterReset = ":ENCOUNTER:RESET:"
	CmdLog            = ":LOG:"
)

// FrameResult is returned by the frame and tick handlers.
type FrameResult struct {
	Actors    int
	State     uint32
	Finished  int
	Encounter string
}

// RegisterHandlers registers all command handlers with the dispatcher.
// Every handler runs synchronously on the dispatching goroutine.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdFrame, m.handleFrame, dispatcher.Logged())
	d.Register(CmdTick, m.handleTick, dispatcher.Logged())
	d.Register(CmdEncounterReset, m.handleReset, dispatcher.Logged())
	d.Register(CmdLog, m.handleLog)
}

func (m *Manager) handleFrame(e dispatcher.Event) (any, error) {
	frame, err := m.deps.Parser.ParseFrame(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse frame: %w", err)
	}

	var res FrameResult
	err = m.withSession(func(s *session.Session) error {
		before := s.Finished()
		if err := s.ApplyFrame(&frame); err != nil {
			return err
		}
		if m.deps.Recorder != nil {
			if err := m.deps.Recorder.WriteFrame(&frame); err != nil {
				return fmt.Errorf("failed to record frame: %w", err)
			}
		}
		res = m.summarize(s, before)
		return m.recordFinished(s, before)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Manager) handleTick(e dispatcher.Event) (any, error) {
	now, err := m.deps.Parser.ParseTick(e.Args)
	if err != nil {
		return nil, err
	}

	var res FrameResult
	err = m.withSession(func(s *session.Session) error {
		before := s.Finished()
		s.Tick(now)
		if m.deps.Recorder != nil {
			if err := m.deps.Recorder.WriteTick(s.Now()); err != nil {
				return fmt.Errorf("failed to record tick: %w", err)
			}
		}
		res = m.summarize(s, before)
		return m.recordFinished(s, before)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// handleReset takes an optional unix millisecond time, like a tick. Without
// one the reset happens at the last frame time.
func (m *Manager) handleReset(e dispatcher.Event) (any, error) {
	now, err := m.deps.Parser.ParseTick(e.Args)
	if err != nil {
		return nil, err
	}
	err = m.withSession(func(s *session.Session) error {
		before := s.Finished()
		s.Reset(now)
		if m.deps.Recorder != nil {
			if err := m.deps.Recorder.WriteReset(s.Now()); err != nil {
				return fmt.Errorf("failed to record reset: %w", err)
			}
		}
		return m.recordFinished(s, before)
	})
	return nil, err
}

// handleLog relays a host log line: args are source, message and level.
func (m *Manager) handleLog(e dispatcher.Event) (any, error) {
	if len(e.Args) < 2 {
		return nil, errors.New("log: want source and message")
	}
	level := "info"
	if len(e.Args) > 2 {
		level = e.Args[2]
	}
	if m.deps.LogManager != nil {
		m.deps.LogManager.WriteLog(e.Args[0], e.Args[1], level)
	}
	return nil, nil
}

func (m *Manager) withSession(fn func(*session.Session) error) error {
	return m.deps.Sessions.With(m.deps.SessionName, fn)
}

func (m *Manager) summarize(s *session.Session, before int) FrameResult {
	res := FrameResult{
		Actors:   s.World.Len(),
		Finished: s.Finished() - before,
	}
	if c := s.Cursor(); c != nil {
		res.State = uint32(c.State())
		res.Encounter = c.Definition().Name()
	}
	return res
}

// recordFinished writes the traces of encounters finished since before.
func (m *Manager) recordFinished(s *session.Session, before int) error {
	if m.deps.Recorder == nil {
		return nil
	}
	for _, r := range s.Since(before) {
		if err := m.deps.Recorder.WriteEncounter(r.Trace); err != nil {
			return fmt.Errorf("failed to record encounter: %w", err)
		}
	}
	return nil
}
