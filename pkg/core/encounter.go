// pkg/core/encounter.go
package core

import "time"

// StateID identifies a state of an encounter script. IDs are unique per encounter definition.
type StateID uint32

// NoState marks the absence of a state (terminal Next, root predecessor).
const NoState StateID = 0

// Encounter identifies one tracked fight.
type Encounter struct {
	ID      uint
	OID     uint32
	Name    string
	Zone    uint16
	Start   time.Time
	Session string
}

// PhaseRecord is the persisted summary of one phase of a fight.
type PhaseRecord struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Enter       time.Time `json:"enter"`
	Exit        time.Time `json:"exit"`
	LastStateID StateID   `json:"lastStateId"`
}

// StateRecord is one entered state of a fight, with the time it was left.
type StateRecord struct {
	ID   StateID   `json:"id"`
	Name string    `json:"name,omitempty"`
	Exit time.Time `json:"exit"`
}

// EncounterTrace is the read contract used to rebuild timing trees from a recorded fight.
type EncounterTrace struct {
	OID    uint32        `json:"oid"`
	Name   string        `json:"name"`
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
	Phases []PhaseRecord `json:"phases"`
	States []StateRecord `json:"states"`
}

// Duration returns the total fight duration.
func (t *EncounterTrace) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// CastEvent is a cast start or finish observed during an encounter.
type CastEvent struct {
	Time       time.Time
	ActorID    uint32
	OID        uint32
	ActionType uint8
	ActionID   uint32
	TargetID   uint32
	Location   Vec3
	TotalTime  float32
	Started    bool // false = finished
}

// StatusEvent is a status gain or loss observed during an encounter.
type StatusEvent struct {
	Time     time.Time
	ActorID  uint32
	Slot     int
	StatusID uint32
	SourceID uint32
	Stacks   uint8
	Added    bool // false = removed
}

// StateTransition records the cursor leaving one state for another.
type StateTransition struct {
	Time      time.Time
	Phase     int
	From      StateID
	To        StateID // NoState when the encounter completed
	Elapsed   time.Duration
	Ambiguous bool
}
