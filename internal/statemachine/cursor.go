package statemachine

import (
	"log/slog"
	"time"

	"github.com/bossmod/tracker/internal/event"
	"github.com/bossmod/tracker/internal/worldstate"
	"github.com/bossmod/tracker/pkg/core"
)

// Status is the lifecycle stage of a Cursor.
type Status uint8

const (
	Idle Status = iota
	Active
	Complete
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Cursor walks a Definition as the fight progresses. It records every state
// it leaves so the fight can be replayed against a timing tree later.
//
// A Cursor is owned by one session and is not safe for concurrent use.
type Cursor struct {
	// Transitioned is published each time the cursor leaves a state.
	Transitioned event.Channel[core.StateTransition]

	def   *Definition
	world *worldstate.WorldState
	log   *slog.Logger

	status     Status
	phase      int
	state      StateID
	enter      time.Time
	phaseEnter time.Time

	trace       core.EncounterTrace
	transitions []core.StateTransition
}

// NewCursor creates an idle cursor over def. world may be nil when only
// timeout states are used.
func NewCursor(def *Definition, world *worldstate.WorldState, logger *slog.Logger) *Cursor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cursor{
		def:   def,
		world: world,
		log:   logger.With("component", "statemachine", "encounter", def.Name()),
	}
}

// Definition returns the script this cursor walks.
func (c *Cursor) Definition() *Definition { return c.def }

// Status returns the lifecycle stage.
func (c *Cursor) Status() Status { return c.status }

// Phase returns the index of the current phase.
func (c *Cursor) Phase() int { return c.phase }

// State returns the current state, NoState unless active.
func (c *Cursor) State() StateID {
	if c.status != Active {
		return core.NoState
	}
	return c.state
}

// Elapsed returns the time spent in the current state.
func (c *Cursor) Elapsed(now time.Time) time.Duration {
	if c.status != Active {
		return 0
	}
	return now.Sub(c.enter)
}

// Transitions returns every transition recorded so far.
func (c *Cursor) Transitions() []core.StateTransition { return c.transitions }

// Start enters the initial state of the first phase and evaluates it at now.
// Calling Start on a cursor that is not idle does nothing.
func (c *Cursor) Start(now time.Time) {
	if c.status != Idle {
		return
	}
	c.status = Active
	c.trace = core.EncounterTrace{
		OID:   c.def.OID(),
		Name:  c.def.Name(),
		Start: now,
	}
	c.enterPhase(0, now)
	c.Tick(now)
}

// Tick evaluates the current state and advances for as long as states
// complete. A state with zero duration that completes on timeout is left on
// the same tick it is entered.
func (c *Cursor) Tick(now time.Time) {
	// every pass leaves a state and the phase graphs are acyclic
	for steps := 0; c.status == Active && steps <= c.def.Len(); steps++ {
		s := c.def.MustState(c.state)
		if !s.Completed(c.env(now)) {
			return
		}
		c.advance(s, now)
	}
}

// Stop ends tracking at now and returns the recorded trace. An active state
// and phase are closed at now. The cursor is Complete afterwards.
func (c *Cursor) Stop(now time.Time) core.EncounterTrace {
	if c.status == Active {
		c.exitState(c.def.MustState(c.state), now)
		c.exitPhase(now)
		c.trace.End = now
	}
	c.status = Complete
	return c.Trace()
}

// Trace returns a copy of what was recorded so far.
func (c *Cursor) Trace() core.EncounterTrace {
	t := c.trace
	t.Phases = append([]core.PhaseRecord(nil), c.trace.Phases...)
	t.States = append([]core.StateRecord(nil), c.trace.States...)
	return t
}

func (c *Cursor) env(now time.Time) Env {
	return Env{
		Now:     now,
		Elapsed: now.Sub(c.enter),
		World:   c.world,
		OID:     c.def.OID(),
	}
}

func (c *Cursor) advance(s *State, now time.Time) {
	next, ambiguous := c.resolve(s, now)
	elapsed := now.Sub(c.enter)
	c.exitState(s, now)

	if next == core.NoState {
		c.exitPhase(now)
		if c.phase+1 < len(c.def.Phases()) {
			c.publish(core.StateTransition{Time: now, Phase: c.phase, From: s.ID, To: c.def.Phases()[c.phase+1].Initial, Elapsed: elapsed, Ambiguous: ambiguous})
			c.enterPhase(c.phase+1, now)
			return
		}
		c.status = Complete
		c.trace.End = now
		c.publish(core.StateTransition{Time: now, Phase: c.phase, From: s.ID, To: core.NoState, Elapsed: elapsed, Ambiguous: ambiguous})
		c.log.Debug("encounter script complete", "state", s.ID)
		return
	}

	c.publish(core.StateTransition{Time: now, Phase: c.phase, From: s.ID, To: next, Elapsed: elapsed, Ambiguous: ambiguous})
	c.state = next
	c.enter = now
}

// resolve picks the successor of s. With declared branches the first one
// whose entry predicate holds wins; if none holds the default Next is used.
func (c *Cursor) resolve(s *State, now time.Time) (StateID, bool) {
	if len(s.Successors) == 0 {
		return s.Next, false
	}
	env := c.env(now)
	env.Elapsed = 0
	for _, id := range s.Successors {
		succ := c.def.MustState(id)
		if succ.Entry != nil && succ.Entry(env) {
			return id, false
		}
	}
	c.log.Warn("ambiguous transition, taking default successor",
		"state", s.ID, "name", s.Name, "next", s.Next, "candidates", len(s.Successors))
	return s.Next, true
}

func (c *Cursor) enterPhase(i int, now time.Time) {
	ph := c.def.Phases()[i]
	c.phase = i
	c.phaseEnter = now
	c.state = ph.Initial
	c.enter = now
	c.log.Debug("phase entered", "phase", i, "name", ph.Name)
}

func (c *Cursor) exitState(s *State, now time.Time) {
	c.trace.States = append(c.trace.States, core.StateRecord{ID: s.ID, Name: s.Name, Exit: now})
}

func (c *Cursor) exitPhase(now time.Time) {
	c.trace.Phases = append(c.trace.Phases, core.PhaseRecord{
		ID:          c.phase,
		Name:        c.def.Phases()[c.phase].Name,
		Enter:       c.phaseEnter,
		Exit:        now,
		LastStateID: c.state,
	})
}

func (c *Cursor) publish(tr core.StateTransition) {
	c.transitions = append(c.transitions, tr)
	c.Transitioned.Publish(tr)
}
