// Package worldstate holds the incremental model of the observed world: the
// actor registry, the change-detection rules applied to each new observation,
// and the typed event channels other components subscribe to.
//
// A WorldState belongs to exactly one tracking session and is not safe for
// concurrent use. Every mutation completes its diff-and-notify sequence before
// returning.
package worldstate

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bossmod/tracker/internal/event"
	"github.com/bossmod/tracker/pkg/core"
)

// ErrActorExists is returned by AddActor when the instance id is already live.
var ErrActorExists = errors.New("actor already exists")

// ActorMoved is published after an actor's position or rotation changed.
// Actor already holds the new values.
type ActorMoved struct {
	Actor        *core.Actor
	PrevPosition core.Vec3
	PrevRotation float32
}

// ActorStatus identifies one status slot of an actor.
type ActorStatus struct {
	Actor *core.Actor
	Slot  int
}

// Status returns the slot contents at the time of the call.
func (s ActorStatus) Status() core.Status {
	return s.Actor.Statuses[s.Slot]
}

// Events groups every notification channel of a WorldState.
type Events struct {
	ZoneChanged          event.Channel[uint16]
	InCombatChanged      event.Channel[bool]
	PlayerActorIDChanged event.Channel[uint32]

	ActorCreated   event.Channel[*core.Actor]
	ActorDestroyed event.Channel[*core.Actor]
	ActorMoved     event.Channel[ActorMoved]

	// CastFinished is published while the actor still holds the finished cast.
	CastStarted  event.Channel[*core.Actor]
	CastFinished event.Channel[*core.Actor]

	// StatusRemoved is published while the slot still holds the removed status.
	StatusAdded   event.Channel[ActorStatus]
	StatusRemoved event.Channel[ActorStatus]
}

// Options configures a WorldState.
type Options struct {
	// FinishCastsOnRemove publishes CastFinished for an open cast before
	// ActorDestroyed. When false, an actor that disappears mid-cast never
	// reports its cast as finished.
	FinishCastsOnRemove bool

	Logger *slog.Logger
}

// WorldState is the set of live actors plus a few global observations.
type WorldState struct {
	Events Events

	opts    Options
	log     *slog.Logger
	metrics *metrics

	zone          uint16
	inCombat      bool
	playerActorID uint32

	actors map[uint32]*core.Actor
}

// New creates an empty WorldState.
func New(opts Options) *WorldState {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &WorldState{
		opts:    opts,
		log:     log.With("component", "worldstate"),
		metrics: newMetrics(),
		actors:  make(map[uint32]*core.Actor),
	}
}

// Zone returns the current zone id.
func (w *WorldState) Zone() uint16 { return w.zone }

// InCombat reports whether the tracked player is in combat.
func (w *WorldState) InCombat() bool { return w.inCombat }

// PlayerActorID returns the instance id of the tracked player.
func (w *WorldState) PlayerActorID() uint32 { return w.playerActorID }

// SetZone updates the zone and notifies on change.
func (w *WorldState) SetZone(zone uint16) {
	if w.zone == zone {
		return
	}
	w.zone = zone
	w.metrics.emit("zone_changed")
	w.Events.ZoneChanged.Publish(zone)
}

// SetInCombat updates the combat flag and notifies on change.
func (w *WorldState) SetInCombat(inCombat bool) {
	if w.inCombat == inCombat {
		return
	}
	w.inCombat = inCombat
	w.metrics.emit("in_combat_changed")
	w.Events.InCombatChanged.Publish(inCombat)
}

// SetPlayerActorID updates the tracked player id and notifies on change.
func (w *WorldState) SetPlayerActorID(id uint32) {
	if w.playerActorID == id {
		return
	}
	w.playerActorID = id
	w.metrics.emit("player_actor_id_changed")
	w.Events.PlayerActorIDChanged.Publish(id)
}

// FindActor returns the live actor with the given instance id, or nil.
func (w *WorldState) FindActor(id uint32) *core.Actor {
	return w.actors[id]
}

// Len returns the number of live actors.
func (w *WorldState) Len() int {
	return len(w.actors)
}

// Actors returns the live actors ordered by instance id.
func (w *WorldState) Actors() []*core.Actor {
	out := make([]*core.Actor, 0, len(w.actors))
	for _, a := range w.actors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}

// AddActor inserts a new actor and publishes ActorCreated before returning it.
func (w *WorldState) AddActor(id, oid uint32, kind core.ActorKind, pos core.Vec3, rot, hitboxRadius float32) (*core.Actor, error) {
	if _, ok := w.actors[id]; ok {
		return nil, fmt.Errorf("add actor %d: %w", id, ErrActorExists)
	}
	act := &core.Actor{
		InstanceID:   id,
		OID:          oid,
		Kind:         kind,
		Position:     pos,
		Rotation:     rot,
		HitboxRadius: hitboxRadius,
	}
	w.actors[id] = act
	w.log.Debug("actor created", "id", id, "oid", oid, "kind", kind.String())
	w.metrics.emit("actor_created")
	w.Events.ActorCreated.Publish(act)
	return act, nil
}

// RemoveActor publishes ActorDestroyed with the actor in its last known state,
// then drops it from the registry. Removing an id that is not live is a
// programming error and panics.
func (w *WorldState) RemoveActor(id uint32) {
	act, ok := w.actors[id]
	if !ok {
		panic(fmt.Sprintf("worldstate: remove of unknown actor %d", id))
	}
	if w.opts.FinishCastsOnRemove && act.CastInfo != nil {
		w.metrics.emit("cast_finished")
		w.Events.CastFinished.Publish(act)
		act.CastInfo = nil
	}
	w.metrics.emit("actor_destroyed")
	w.Events.ActorDestroyed.Publish(act)
	delete(w.actors, id)
	w.log.Debug("actor destroyed", "id", id, "oid", act.OID)
}

// MoveActor updates position and rotation. Nothing is published when both are
// bit-identical to the current values.
func (w *WorldState) MoveActor(act *core.Actor, pos core.Vec3, rot float32) {
	if act.Position.Same(pos) && sameFloat(act.Rotation, rot) {
		return
	}
	prevPos, prevRot := act.Position, act.Rotation
	act.Position = pos
	act.Rotation = rot
	w.metrics.emit("actor_moved")
	w.Events.ActorMoved.Publish(ActorMoved{Actor: act, PrevPosition: prevPos, PrevRotation: prevRot})
}
