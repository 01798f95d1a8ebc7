package convert

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bossmod/tracker/internal/model"
	"github.com/bossmod/tracker/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToVec3 reverses vec3ToPoint.
func pointToVec3(p geom.Point) core.Vec3 {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Vec3{}
	}
	return core.Vec3{X: float32(coord.XY.X), Y: float32(coord.Z), Z: float32(coord.XY.Y)}
}

// CastEventToCore converts a GORM CastEvent to a core.CastEvent.
func CastEventToCore(e model.CastEvent) core.CastEvent {
	return core.CastEvent{
		Time:       e.Time,
		ActorID:    e.ActorID,
		OID:        e.OID,
		ActionType: e.ActionType,
		ActionID:   e.ActionID,
		TargetID:   e.TargetID,
		Location:   pointToVec3(e.Location),
		TotalTime:  e.TotalTime,
		Started:    e.Started,
	}
}

// EncounterToTrace rebuilds the recorded trace of an encounter. The JSON
// document is preferred; the phase and state rows are the fallback when it
// is empty.
func EncounterToTrace(e model.Encounter) (core.EncounterTrace, error) {
	if len(e.Trace) > 2 {
		var trace core.EncounterTrace
		if err := json.Unmarshal(e.Trace, &trace); err != nil {
			return core.EncounterTrace{}, fmt.Errorf("failed to decode trace of encounter %d: %w", e.ID, err)
		}
		return trace, nil
	}

	trace := core.EncounterTrace{
		OID:   e.OID,
		Name:  e.Name,
		Start: e.StartTime,
	}
	if e.EndTime != nil {
		trace.End = *e.EndTime
	}

	phases := append([]model.EncounterPhase(nil), e.Phases...)
	sort.Slice(phases, func(i, j int) bool { return phases[i].PhaseIndex < phases[j].PhaseIndex })
	for _, p := range phases {
		trace.Phases = append(trace.Phases, core.PhaseRecord{
			ID:          p.PhaseIndex,
			Name:        p.Name,
			Enter:       p.EnterTime,
			Exit:        p.ExitTime,
			LastStateID: core.StateID(p.LastStateID),
		})
	}

	states := append([]model.EncounterState(nil), e.States...)
	sort.Slice(states, func(i, j int) bool { return states[i].Seq < states[j].Seq })
	for _, s := range states {
		trace.States = append(trace.States, core.StateRecord{
			ID:   core.StateID(s.StateID),
			Name: s.Name,
			Exit: s.ExitTime,
		})
	}
	return trace, nil
}
