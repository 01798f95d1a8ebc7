package worldstate

import "github.com/bossmod/tracker/pkg/core"

// UpdateCastInfo replaces the actor's cast with cast (nil = not casting).
//
// A cast with the same action type, action id and target as the current one
// continues it: only the timers are refreshed and nothing is published. Any
// other value finishes the previous cast (if any) and then starts the new one
// (if any). The actor still holds the old cast while CastFinished handlers run
// and already holds the new cast when CastStarted handlers run.
func (w *WorldState) UpdateCastInfo(act *core.Actor, cast *core.CastInfo) {
	if cast == nil && act.CastInfo == nil {
		return
	}

	if cast != nil && act.CastInfo != nil && cast.SameAction(act.CastInfo) {
		act.CastInfo.CurrentTime = cast.CurrentTime
		act.CastInfo.TotalTime = cast.TotalTime
		return
	}

	if act.CastInfo != nil {
		w.metrics.emit("cast_finished")
		w.Events.CastFinished.Publish(act)
	}

	if cast == nil {
		act.CastInfo = nil
		return
	}

	c := *cast
	act.CastInfo = &c
	w.metrics.emit("cast_started")
	w.Events.CastStarted.Publish(act)
}
