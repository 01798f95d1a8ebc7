// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/bossmod/tracker/internal/model"
	"github.com/bossmod/tracker/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// vec3ToPoint converts an arena position to a geom.Point. Arena Y is height,
// so it becomes Z and the ground plane (X, Z) becomes XY.
func vec3ToPoint(v core.Vec3) geom.Point {
	coords := geom.Coordinates{
		XY:   geom.XY{X: float64(v.X), Y: float64(v.Z)},
		Z:    float64(v.Y),
		Type: geom.DimXYZ,
	}
	return geom.NewPoint(coords)
}

// CoreToEncounter converts a core.Encounter to a GORM model.Encounter.
func CoreToEncounter(e core.Encounter) model.Encounter {
	return model.Encounter{
		OID:       e.OID,
		Name:      e.Name,
		Zone:      e.Zone,
		Session:   e.Session,
		StartTime: e.Start,
		Trace:     datatypes.JSON("{}"),
	}
}

// CoreToCastEvent converts a core.CastEvent to a GORM model.CastEvent.
func CoreToCastEvent(e core.CastEvent) model.CastEvent {
	return model.CastEvent{
		Time:       e.Time,
		ActorID:    e.ActorID,
		OID:        e.OID,
		ActionType: e.ActionType,
		ActionID:   e.ActionID,
		TargetID:   e.TargetID,
		Location:   vec3ToPoint(e.Location),
		TotalTime:  e.TotalTime,
		Started:    e.Started,
	}
}

// CoreToStatusEvent converts a core.StatusEvent to a GORM model.StatusEvent.
func CoreToStatusEvent(e core.StatusEvent) model.StatusEvent {
	return model.StatusEvent{
		Time:     e.Time,
		ActorID:  e.ActorID,
		Slot:     e.Slot,
		StatusID: e.StatusID,
		SourceID: e.SourceID,
		Stacks:   e.Stacks,
		Added:    e.Added,
	}
}

// CoreToStateTransition converts a core.StateTransition to a GORM model.StateTransition.
func CoreToStateTransition(e core.StateTransition) model.StateTransition {
	return model.StateTransition{
		Time:      e.Time,
		Phase:     e.Phase,
		FromState: uint32(e.From),
		ToState:   uint32(e.To),
		ElapsedMs: e.Elapsed.Milliseconds(),
		Ambiguous: e.Ambiguous,
	}
}

// TraceToRows converts a finished trace to phase and state rows for encounterID,
// plus the JSON document stored on the encounter itself.
func TraceToRows(encounterID uint, trace core.EncounterTrace) ([]model.EncounterPhase, []model.EncounterState, datatypes.JSON, error) {
	doc, err := json.Marshal(trace)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal trace: %w", err)
	}

	phases := make([]model.EncounterPhase, 0, len(trace.Phases))
	for _, p := range trace.Phases {
		phases = append(phases, model.EncounterPhase{
			EncounterID: encounterID,
			PhaseIndex:  p.ID,
			Name:        p.Name,
			EnterTime:   p.Enter,
			ExitTime:    p.Exit,
			LastStateID: uint32(p.LastStateID),
		})
	}

	states := make([]model.EncounterState, 0, len(trace.States))
	for i, s := range trace.States {
		states = append(states, model.EncounterState{
			EncounterID: encounterID,
			Seq:         i,
			StateID:     uint32(s.ID),
			Name:        s.Name,
			ExitTime:    s.Exit,
		})
	}

	return phases, states, datatypes.JSON(doc), nil
}
