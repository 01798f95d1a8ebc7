package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&TrackerInfo{},
	&Encounter{},
	&EncounterPhase{},
	&EncounterState{},
	&CastEvent{},
	&StatusEvent{},
	&StateTransition{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// TrackerInfo describes the tracker instance that wrote the database.
type TrackerInfo struct {
	gorm.Model
	Name        string `json:"name" gorm:"size:127"`
	Description string `json:"description" gorm:"size:255"`
}

func (*TrackerInfo) TableName() string {
	return "tracker_infos"
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Encounter is one tracked fight. Trace holds the full recorded trace as JSON
// so timing trees can be rebuilt without joining the phase and state tables.
type Encounter struct {
	gorm.Model
	OID        uint32         `json:"oid" gorm:"index:idx_encounter_oid"`
	Name       string         `json:"name" gorm:"size:127"`
	Zone       uint16         `json:"zone"`
	Session    string         `json:"session" gorm:"size:64"`
	StartTime  time.Time      `json:"start" gorm:"index:idx_encounter_start"`
	EndTime    *time.Time     `json:"end"`
	DurationMs int64          `json:"durationMs"`
	Trace      datatypes.JSON `json:"trace"`
	Phases     []EncounterPhase
	States     []EncounterState
}

func (*Encounter) TableName() string {
	return "encounters"
}

// EncounterPhase is one phase of a finished encounter.
type EncounterPhase struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement"`
	EncounterID uint      `json:"encounterId" gorm:"index:idx_phase_encounter_id"`
	PhaseIndex  int       `json:"phaseIndex"`
	Name        string    `json:"name" gorm:"size:127"`
	EnterTime   time.Time `json:"enter"`
	ExitTime    time.Time `json:"exit"`
	LastStateID uint32    `json:"lastStateId"`
}

func (*EncounterPhase) TableName() string {
	return "encounter_phases"
}

// EncounterState is one state entered during a finished encounter, in visit order.
type EncounterState struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement"`
	EncounterID uint      `json:"encounterId" gorm:"index:idx_state_encounter_id"`
	Seq         int       `json:"seq"`
	StateID     uint32    `json:"stateId"`
	Name        string    `json:"name" gorm:"size:127"`
	ExitTime    time.Time `json:"exit"`
}

func (*EncounterState) TableName() string {
	return "encounter_states"
}

// CastEvent is a cast start or finish. Location is the caster position with
// arena Y (height) stored as Z so the ground plane maps to XY.
type CastEvent struct {
	ID          uint       `json:"id" gorm:"primarykey;autoIncrement"`
	EncounterID uint       `json:"encounterId" gorm:"index:idx_cast_encounter_id"`
	Time        time.Time  `json:"time" gorm:"type:timestamptz"`
	ActorID     uint32     `json:"actorId" gorm:"index:idx_cast_actor_id"`
	OID         uint32     `json:"oid"`
	ActionType  uint8      `json:"actionType"`
	ActionID    uint32     `json:"actionId" gorm:"index:idx_cast_action_id"`
	TargetID    uint32     `json:"targetId"`
	Location    geom.Point `json:"location" gorm:"type:geometry"`
	TotalTime   float32    `json:"totalTime"`
	Started     bool       `json:"started"`
}

func (*CastEvent) TableName() string {
	return "cast_events"
}

// StatusEvent is a status gain or loss.
type StatusEvent struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement"`
	EncounterID uint      `json:"encounterId" gorm:"index:idx_status_encounter_id"`
	Time        time.Time `json:"time" gorm:"type:timestamptz"`
	ActorID     uint32    `json:"actorId" gorm:"index:idx_status_actor_id"`
	Slot        int       `json:"slot"`
	StatusID    uint32    `json:"statusId"`
	SourceID    uint32    `json:"sourceId"`
	Stacks      uint8     `json:"stacks"`
	Added       bool      `json:"added"`
}

func (*StatusEvent) TableName() string {
	return "status_events"
}

// StateTransition is the cursor leaving one state for another.
type StateTransition struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement"`
	EncounterID uint      `json:"encounterId" gorm:"index:idx_transition_encounter_id"`
	Time        time.Time `json:"time" gorm:"type:timestamptz"`
	Phase       int       `json:"phase"`
	FromState   uint32    `json:"from"`
	ToState     uint32    `json:"to"`
	ElapsedMs   int64     `json:"elapsedMs"`
	Ambiguous   bool      `json:"ambiguous"`
}

func (*StateTransition) TableName() string {
	return "state_transitions"
}
