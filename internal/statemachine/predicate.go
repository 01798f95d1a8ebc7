package statemachine

import (
	"fmt"
	"strings"
	"time"

	"github.com/bossmod/tracker/internal/worldstate"
)

// Env is what a predicate may look at when a tick is evaluated.
type Env struct {
	Now time.Time
	// Elapsed is the time spent in the current state.
	Elapsed time.Duration
	World   *worldstate.WorldState
	// OID is the type id of the encounter's primary actor.
	OID uint32
}

// Predicate is a completion or entry condition.
type Predicate func(env Env) bool

// CompletionMode says how a state decides it is done.
type CompletionMode uint8

const (
	// CompleteOnTimeout completes once the expected duration has elapsed.
	CompleteOnTimeout CompletionMode = iota
	// CompleteOnCondition completes as soon as the condition holds.
	CompleteOnCondition
	// CompleteOnBoth requires the duration to elapse and the condition to hold.
	CompleteOnBoth
)

func (m CompletionMode) String() string {
	switch m {
	case CompleteOnTimeout:
		return "timeout"
	case CompleteOnCondition:
		return "condition"
	case CompleteOnBoth:
		return "both"
	default:
		return fmt.Sprintf("CompletionMode(%d)", uint8(m))
	}
}

// ParseCompletionMode accepts the names returned by String. Empty means timeout.
func ParseCompletionMode(s string) (CompletionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "timeout":
		return CompleteOnTimeout, nil
	case "condition":
		return CompleteOnCondition, nil
	case "both":
		return CompleteOnBoth, nil
	}
	return 0, fmt.Errorf("unknown completion mode %q", s)
}

// Completed evaluates the state's completion rule.
func (s *State) Completed(env Env) bool {
	timedOut := env.Elapsed >= s.Duration
	switch s.Complete {
	case CompleteOnCondition:
		return s.Condition(env)
	case CompleteOnBoth:
		return timedOut && s.Condition(env)
	default:
		return timedOut
	}
}
