// Package statemachine holds encounter scripts: static graphs of timed states
// grouped into sequential phases, and the runtime cursor that walks them.
//
// A Definition is an arena of states addressed by StateID. It is immutable
// once built and may be shared by any number of cursors and timing trees.
package statemachine

import (
	"errors"
	"fmt"
	"time"

	"github.com/bossmod/tracker/pkg/core"
)

// StateID is an alias so callers do not need to import core for handles.
type StateID = core.StateID

var (
	// ErrUnknownState is returned for a reference to a state that is not part of the definition.
	ErrUnknownState = errors.New("unknown state")
	// ErrCycle is returned when a phase graph loops back on itself.
	ErrCycle = errors.New("state graph contains a cycle")
	// ErrDuplicateState is returned when two states share an id.
	ErrDuplicateState = errors.New("duplicate state id")
	// ErrCrossPhase is returned when a state links to a state of another phase.
	ErrCrossPhase = errors.New("state links across phases")
	// ErrMissingCondition is returned when a state completes on a condition but has none.
	ErrMissingCondition = errors.New("state has no completion condition")
	// ErrNoPhases is returned for a definition without phases.
	ErrNoPhases = errors.New("definition has no phases")
)

// State is one node of an encounter script.
type State struct {
	ID       StateID
	Name     string
	Duration time.Duration

	// Next is the default successor, NoState when the phase ends here.
	Next StateID
	// Successors are the known branch targets, in resolution order.
	Successors []StateID

	Complete  CompletionMode
	Condition Predicate
	// Entry decides whether this state is picked when a predecessor branches.
	Entry Predicate

	// Phase is the index of the owning phase, assigned on build.
	Phase int
}

// PhaseSpec describes one phase to build.
type PhaseSpec struct {
	Name    string
	Initial StateID
	States  []State
}

// Phase is a built phase.
type Phase struct {
	Name    string
	Initial StateID
	States  []StateID
}

// Definition is a validated encounter script.
type Definition struct {
	oid    uint32
	name   string
	states []State
	index  map[StateID]int
	phases []Phase
}

// NewDefinition validates the phases and builds the state arena.
func NewDefinition(oid uint32, name string, phases []PhaseSpec) (*Definition, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("definition %q: %w", name, ErrNoPhases)
	}

	d := &Definition{
		oid:   oid,
		name:  name,
		index: make(map[StateID]int),
	}

	for pi, ps := range phases {
		ph := Phase{Name: ps.Name, Initial: ps.Initial}
		for _, s := range ps.States {
			if s.ID == core.NoState {
				return nil, fmt.Errorf("phase %q: state %q: id 0 is reserved", ps.Name, s.Name)
			}
			if _, dup := d.index[s.ID]; dup {
				return nil, fmt.Errorf("phase %q: state %d: %w", ps.Name, s.ID, ErrDuplicateState)
			}
			if s.Complete != CompleteOnTimeout && s.Condition == nil {
				return nil, fmt.Errorf("phase %q: state %d (%s): %w", ps.Name, s.ID, s.Complete, ErrMissingCondition)
			}
			s.Phase = pi
			s.Successors = append([]StateID(nil), s.Successors...)
			d.index[s.ID] = len(d.states)
			d.states = append(d.states, s)
			ph.States = append(ph.States, s.ID)
		}
		d.phases = append(d.phases, ph)
	}

	for pi, ph := range d.phases {
		if err := d.checkRef(pi, ph.Initial); err != nil {
			return nil, fmt.Errorf("phase %q initial: %w", ph.Name, err)
		}
		for _, id := range ph.States {
			for _, succ := range d.Successors(id) {
				if err := d.checkRef(pi, succ); err != nil {
					return nil, fmt.Errorf("phase %q: state %d: %w", ph.Name, id, err)
				}
			}
		}
		if err := d.checkAcyclic(ph); err != nil {
			return nil, fmt.Errorf("phase %q: %w", ph.Name, err)
		}
	}

	return d, nil
}

func (d *Definition) checkRef(phase int, id StateID) error {
	i, ok := d.index[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownState, id)
	}
	if d.states[i].Phase != phase {
		return fmt.Errorf("%w: %d belongs to phase %d", ErrCrossPhase, id, d.states[i].Phase)
	}
	return nil
}

func (d *Definition) checkAcyclic(ph Phase) error {
	const (
		unvisited = iota
		onStack
		done
	)
	mark := make(map[StateID]int, len(ph.States))

	var visit func(id StateID) error
	visit = func(id StateID) error {
		switch mark[id] {
		case onStack:
			return fmt.Errorf("%w: through state %d", ErrCycle, id)
		case done:
			return nil
		}
		mark[id] = onStack
		for _, succ := range d.Successors(id) {
			if err := visit(succ); err != nil {
				return err
			}
		}
		mark[id] = done
		return nil
	}

	for _, id := range ph.States {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// OID returns the type id of the actor that starts this encounter.
func (d *Definition) OID() uint32 { return d.oid }

// Name returns the encounter name.
func (d *Definition) Name() string { return d.name }

// Phases returns the phases in order.
func (d *Definition) Phases() []Phase { return d.phases }

// Len returns the number of states.
func (d *Definition) Len() int { return len(d.states) }

// State returns the state with the given id.
func (d *Definition) State(id StateID) (*State, bool) {
	i, ok := d.index[id]
	if !ok {
		return nil, false
	}
	return &d.states[i], true
}

// MustState is State for ids known to be valid.
func (d *Definition) MustState(id StateID) *State {
	s, ok := d.State(id)
	if !ok {
		panic(fmt.Sprintf("statemachine: %v: %d", ErrUnknownState, id))
	}
	return s
}

// Successors returns Next followed by the declared branch targets, without duplicates.
func (d *Definition) Successors(id StateID) []StateID {
	s, ok := d.State(id)
	if !ok {
		return nil
	}
	out := make([]StateID, 0, 1+len(s.Successors))
	if s.Next != core.NoState {
		out = append(out, s.Next)
	}
	for _, succ := range s.Successors {
		if succ == core.NoState || containsState(out, succ) {
			continue
		}
		out = append(out, succ)
	}
	return out
}

func containsState(ids []StateID, id StateID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
