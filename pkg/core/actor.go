// pkg/core/actor.go
package core

import (
	"fmt"
	"math"
	"time"
)

// StatusSlots is the fixed number of status-effect slots carried by every actor.
const StatusSlots = 30

// ActorKind is the host object kind, encoded as objkind<<8 | objsubkind.
type ActorKind uint16

const (
	KindNone    ActorKind = 0
	KindPlayer  ActorKind = 0x104
	KindUnknown ActorKind = 0x201
	KindPet     ActorKind = 0x202
	KindChocobo ActorKind = 0x203
	KindEnemy   ActorKind = 0x205
)

// String returns the lowercase kind name.
func (k ActorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPlayer:
		return "player"
	case KindUnknown:
		return "unknown"
	case KindPet:
		return "pet"
	case KindChocobo:
		return "chocobo"
	case KindEnemy:
		return "enemy"
	default:
		return fmt.Sprintf("kind(0x%x)", uint16(k))
	}
}

// ParseActorKind converts a kind name back to an ActorKind.
func ParseActorKind(s string) (ActorKind, bool) {
	switch s {
	case "none":
		return KindNone, true
	case "player":
		return KindPlayer, true
	case "unknown":
		return KindUnknown, true
	case "pet":
		return KindPet, true
	case "chocobo":
		return KindChocobo, true
	case "enemy":
		return KindEnemy, true
	}
	return KindNone, false
}

// Vec3 is a position in arena space.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Same reports whether both vectors are bit-identical.
// Unlike ==, NaN compares equal to itself and -0 differs from +0.
func (v Vec3) Same(o Vec3) bool {
	return math.Float32bits(v.X) == math.Float32bits(o.X) &&
		math.Float32bits(v.Y) == math.Float32bits(o.Y) &&
		math.Float32bits(v.Z) == math.Float32bits(o.Z)
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// CastInfo describes an in-progress cast.
type CastInfo struct {
	ActionType  uint8   `json:"actionType"`
	ActionID    uint32  `json:"actionId"`
	TargetID    uint32  `json:"targetId"`
	Location    Vec3    `json:"location"`
	CurrentTime float32 `json:"currentTime"`
	TotalTime   float32 `json:"totalTime"`
}

// SameAction reports whether c continues the cast described by o.
func (c *CastInfo) SameAction(o *CastInfo) bool {
	return c.ActionType == o.ActionType && c.ActionID == o.ActionID && c.TargetID == o.TargetID
}

// Status is one status-effect slot. ID 0 marks an empty slot.
type Status struct {
	ID            uint32  `json:"id"`
	Param         uint8   `json:"param"`
	StackCount    uint8   `json:"stackCount"`
	RemainingTime float32 `json:"remainingTime"`
	SourceID      uint32  `json:"sourceId"`
}

// Empty reports whether the slot holds no status.
func (s Status) Empty() bool {
	return s.ID == 0
}

// Actor is a live combatant or object tracked by the world state.
type Actor struct {
	InstanceID   uint32
	OID          uint32
	Kind         ActorKind
	Position     Vec3
	Rotation     float32
	HitboxRadius float32
	CastInfo     *CastInfo
	Statuses     [StatusSlots]Status
}

// ActorObservation is the per-tick snapshot of one actor as reported by the host.
type ActorObservation struct {
	InstanceID   uint32    `json:"instanceId"`
	OID          uint32    `json:"oid"`
	Kind         ActorKind `json:"kind"`
	Position     Vec3      `json:"position"`
	Rotation     float32   `json:"rotation"`
	HitboxRadius float32   `json:"hitboxRadius"`
	Cast         *CastInfo `json:"cast,omitempty"`
	Statuses     []Status  `json:"statuses"`
}

// Frame is one full observation of the world, supplied once per tick.
type Frame struct {
	Time          time.Time          `json:"time"`
	Zone          uint16             `json:"zone"`
	InCombat      bool               `json:"inCombat"`
	PlayerActorID uint32             `json:"playerActorId"`
	Actors        []ActorObservation `json:"actors"`
}
