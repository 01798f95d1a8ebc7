// Package streaming defines the JSON messages the tracker streams to a live
// timeline UI over WebSocket.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/bossmod/tracker/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartEncounter = "start_encounter"
	TypeEndEncounter   = "end_encounter"
	TypeCast           = "cast"
	TypeStatus         = "status"
	TypeTransition     = "transition"
)

// AckedTypes are the message types the server must acknowledge.
var AckedTypes = []string{TypeStartEncounter, TypeEndEncounter}

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartEncounterPayload announces a new encounter.
type StartEncounterPayload struct {
	ID      uint      `json:"id"`
	OID     uint32    `json:"oid"`
	Name    string    `json:"name"`
	Zone    uint16    `json:"zone"`
	Session string    `json:"session,omitempty"`
	Start   time.Time `json:"start"`
}

// EndEncounterPayload carries the recorded trace of the finished encounter.
type EndEncounterPayload struct {
	ID    uint                `json:"id"`
	Trace core.EncounterTrace `json:"trace"`
}

// CastPayload is a cast start or finish.
type CastPayload struct {
	Time       time.Time `json:"time"`
	ActorID    uint32    `json:"actorId"`
	OID        uint32    `json:"oid"`
	ActionType uint8     `json:"actionType"`
	ActionID   uint32    `json:"actionId"`
	TargetID   uint32    `json:"targetId"`
	Location   core.Vec3 `json:"location"`
	TotalTime  float32   `json:"totalTime"`
	Started    bool      `json:"started"`
}

// StatusPayload is a status gain or loss.
type StatusPayload struct {
	Time     time.Time `json:"time"`
	ActorID  uint32    `json:"actorId"`
	Slot     int       `json:"slot"`
	StatusID uint32    `json:"statusId"`
	SourceID uint32    `json:"sourceId"`
	Stacks   uint8     `json:"stacks"`
	Added    bool      `json:"added"`
}

// TransitionPayload is the cursor leaving one state for another.
type TransitionPayload struct {
	Time      time.Time    `json:"time"`
	Phase     int          `json:"phase"`
	From      core.StateID `json:"from"`
	To        core.StateID `json:"to"`
	ElapsedMs int64        `json:"elapsedMs"`
	Ambiguous bool         `json:"ambiguous,omitempty"`
}

// NewStartEncounter builds the payload for e.
func NewStartEncounter(e *core.Encounter) StartEncounterPayload {
	return StartEncounterPayload{ID: e.ID, OID: e.OID, Name: e.Name, Zone: e.Zone, Session: e.Session, Start: e.Start}
}

// NewCast builds the payload for e.
func NewCast(e *core.CastEvent) CastPayload {
	return CastPayload{
		Time:       e.Time,
		ActorID:    e.ActorID,
		OID:        e.OID,
		ActionType: e.ActionType,
		ActionID:   e.ActionID,
		TargetID:   e.TargetID,
		Location:   e.Location,
		TotalTime:  e.TotalTime,
		Started:    e.Started,
	}
}

// NewStatus builds the payload for e.
func NewStatus(e *core.StatusEvent) StatusPayload {
	return StatusPayload{
		Time:     e.Time,
		ActorID:  e.ActorID,
		Slot:     e.Slot,
		StatusID: e.StatusID,
		SourceID: e.SourceID,
		Stacks:   e.Stacks,
		Added:    e.Added,
	}
}

// NewTransition builds the payload for e.
func NewTransition(e *core.StateTransition) TransitionPayload {
	return TransitionPayload{
		Time:      e.Time,
		Phase:     e.Phase,
		From:      e.From,
		To:        e.To,
		ElapsedMs: e.Elapsed.Milliseconds(),
		Ambiguous: e.Ambiguous,
	}
}
