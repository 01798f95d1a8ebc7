package worldstate

import (
	"errors"
	"fmt"

	"github.com/bossmod/tracker/pkg/core"
)

// ErrStatusCount is returned when an observation does not carry exactly core.StatusSlots statuses.
var ErrStatusCount = errors.New("status array has wrong length")

// ErrDuplicateObservation is returned when a frame reports the same instance id twice.
var ErrDuplicateObservation = errors.New("duplicate actor observation")

// ApplyFrame merges one full observation of the world.
//
// The whole frame is validated first; an invalid frame leaves the world untouched.
// Updates are applied in this order: zone, removal of actors missing from the
// frame (ascending id), creation or update of observed actors (frame order),
// player id, combat flag. Combat-start handlers therefore already see every
// actor of the frame.
func (w *WorldState) ApplyFrame(frame *core.Frame) error {
	seen := make(map[uint32]struct{}, len(frame.Actors))
	for i := range frame.Actors {
		obs := &frame.Actors[i]
		if len(obs.Statuses) != core.StatusSlots {
			return fmt.Errorf("actor %d: %w: got %d, want %d", obs.InstanceID, ErrStatusCount, len(obs.Statuses), core.StatusSlots)
		}
		if _, dup := seen[obs.InstanceID]; dup {
			return fmt.Errorf("actor %d: %w", obs.InstanceID, ErrDuplicateObservation)
		}
		seen[obs.InstanceID] = struct{}{}
	}

	w.SetZone(frame.Zone)

	for _, act := range w.Actors() {
		if _, ok := seen[act.InstanceID]; !ok {
			w.RemoveActor(act.InstanceID)
		}
	}

	for i := range frame.Actors {
		obs := &frame.Actors[i]
		act := w.FindActor(obs.InstanceID)
		if act != nil && (act.OID != obs.OID || act.Kind != obs.Kind) {
			// the host reused the instance id for an unrelated actor
			w.RemoveActor(act.InstanceID)
			act = nil
		}
		if act == nil {
			var err error
			act, err = w.AddActor(obs.InstanceID, obs.OID, obs.Kind, obs.Position, obs.Rotation, obs.HitboxRadius)
			if err != nil {
				return err
			}
		} else {
			w.MoveActor(act, obs.Position, obs.Rotation)
		}
		w.UpdateCastInfo(act, obs.Cast)

		var statuses [core.StatusSlots]core.Status
		copy(statuses[:], obs.Statuses)
		w.UpdateStatuses(act, &statuses)
	}

	w.SetPlayerActorID(frame.PlayerActorID)
	w.SetInCombat(frame.InCombat)
	return nil
}
