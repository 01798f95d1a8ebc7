package worldstate

import "github.com/bossmod/tracker/pkg/core"

// UpdateStatuses merges a full replacement status array into the actor.
//
// A slot is matched by (status id, source id). A match only refreshes param,
// stack count and remaining time, silently. Otherwise the old status is
// reported removed (if the slot was occupied) and the new one added (if the
// slot is now occupied), as two separate notifications.
//
// TODO: stack count changes on a matched slot are a candidate for their own
// notification once a mechanic module needs them.
func (w *WorldState) UpdateStatuses(act *core.Actor, statuses *[core.StatusSlots]core.Status) {
	for i := range act.Statuses {
		cur := &act.Statuses[i]
		next := statuses[i]

		if cur.ID == next.ID && cur.SourceID == next.SourceID {
			cur.Param = next.Param
			cur.StackCount = next.StackCount
			cur.RemainingTime = next.RemainingTime
			continue
		}

		if !cur.Empty() {
			w.metrics.emit("status_removed")
			w.Events.StatusRemoved.Publish(ActorStatus{Actor: act, Slot: i})
		}
		*cur = next
		if !cur.Empty() {
			w.metrics.emit("status_added")
			w.Events.StatusAdded.Publish(ActorStatus{Actor: act, Slot: i})
		}
	}
}
