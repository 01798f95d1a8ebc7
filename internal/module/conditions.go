package module

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bossmod/tracker/internal/statemachine"
	"github.com/bossmod/tracker/pkg/core"
)

// ErrUnknownCondition is returned when a definition names a condition that is not registered.
var ErrUnknownCondition = errors.New("unknown condition")

// ConditionFactory builds a predicate from the text after the colon of a
// condition expression, empty when there is none.
type ConditionFactory func(arg string) (statemachine.Predicate, error)

// Conditions is a registry of named predicates usable from definition files.
type Conditions struct {
	factories map[string]ConditionFactory
}

// NewConditions returns an empty registry.
func NewConditions() *Conditions {
	return &Conditions{factories: make(map[string]ConditionFactory)}
}

// DefaultConditions returns a registry holding the built-in conditions.
func DefaultConditions() *Conditions {
	c := NewConditions()
	c.Register("always", constant(true))
	c.Register("never", constant(false))
	c.Register("in_combat", noArg(func(env statemachine.Env) bool {
		return env.World != nil && env.World.InCombat()
	}))
	c.Register("out_of_combat", noArg(func(env statemachine.Env) bool {
		return env.World != nil && !env.World.InCombat()
	}))
	c.Register("all_enemies_dead", noArg(func(env statemachine.Env) bool {
		return env.World != nil && !anyActor(env, func(a *core.Actor) bool { return a.Kind == core.KindEnemy })
	}))
	c.Register("boss_dead", noArg(func(env statemachine.Env) bool {
		return env.World != nil && !anyActor(env, func(a *core.Actor) bool { return a.OID == env.OID })
	}))
	c.Register("cast_finished", noArg(func(env statemachine.Env) bool {
		return env.World != nil && !anyActor(env, func(a *core.Actor) bool { return a.OID == env.OID && a.CastInfo != nil })
	}))
	c.Register("cast_started", withID(func(id uint32) statemachine.Predicate {
		return func(env statemachine.Env) bool {
			return anyActor(env, func(a *core.Actor) bool {
				return a.Kind == core.KindEnemy && a.CastInfo != nil && a.CastInfo.ActionID == id
			})
		}
	}))
	c.Register("status", withID(func(id uint32) statemachine.Predicate {
		return func(env statemachine.Env) bool {
			return anyActor(env, func(a *core.Actor) bool {
				for i := range a.Statuses {
					if a.Statuses[i].ID == id {
						return true
					}
				}
				return false
			})
		}
	}))
	return c
}

// Register adds or replaces a named condition.
func (c *Conditions) Register(name string, f ConditionFactory) {
	c.factories[name] = f
}

// Names returns the registered condition names, sorted.
func (c *Conditions) Names() []string {
	out := make([]string, 0, len(c.factories))
	for name := range c.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve turns an expression such as "status:1234" into a predicate.
func (c *Conditions) Resolve(expr string) (statemachine.Predicate, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(expr), ":")
	f, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, name)
	}
	p, err := f(arg)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", expr, err)
	}
	return p, nil
}

func constant(v bool) ConditionFactory {
	return noArg(func(statemachine.Env) bool { return v })
}

func noArg(p statemachine.Predicate) ConditionFactory {
	return func(arg string) (statemachine.Predicate, error) {
		if arg != "" {
			return nil, fmt.Errorf("takes no argument, got %q", arg)
		}
		return p, nil
	}
}

func withID(build func(id uint32) statemachine.Predicate) ConditionFactory {
	return func(arg string) (statemachine.Predicate, error) {
		id, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", arg, err)
		}
		return build(uint32(id)), nil
	}
}

func anyActor(env statemachine.Env, match func(*core.Actor) bool) bool {
	if env.World == nil {
		return false
	}
	for _, a := range env.World.Actors() {
		if match(a) {
			return true
		}
	}
	return false
}
