// Package session ties one world model to the encounter cursor it drives and
// forwards what happens to a storage backend.
package session

import (
	"log/slog"
	"time"

	"github.com/bossmod/tracker/internal/event"
	"github.com/bossmod/tracker/internal/module"
	"github.com/bossmod/tracker/internal/statemachine"
	"github.com/bossmod/tracker/internal/storage"
	"github.com/bossmod/tracker/internal/timeline"
	"github.com/bossmod/tracker/internal/worldstate"
	"github.com/bossmod/tracker/pkg/core"
)

// Dependencies holds everything a Session needs from outside.
type Dependencies struct {
	Registry *module.Registry
	// Backend may be nil when nothing should be persisted.
	Backend             storage.Backend
	Logger              *slog.Logger
	FinishCastsOnRemove bool
	// MaxResults bounds the finished encounters kept in memory. Zero means
	// DefaultMaxResults.
	MaxResults int
}

// DefaultMaxResults is how many finished encounters a session keeps.
const DefaultMaxResults = 16

// Result is one finished encounter.
type Result struct {
	Encounter core.Encounter
	Trace     core.EncounterTrace
	// Tree is the timing projection with the observed durations applied.
	Tree *timeline.Tree
	// Branches holds, per phase, the index of the branch the fight ended on.
	Branches []int
	// Err is set when the trace could not be retrofitted onto the tree.
	Err error
}

// Session tracks one stream of frames. It is not safe for concurrent use;
// Manager serializes access.
type Session struct {
	Name  string
	World *worldstate.WorldState

	deps Dependencies
	log  *slog.Logger

	now       time.Time
	bossID    uint32
	cursor    *statemachine.Cursor
	encounter *core.Encounter
	results   []Result
	finished  int

	unsubs      []event.Unsubscribe
	cursorUnsub event.Unsubscribe
}

// New creates a session with an empty world.
func New(name string, deps Dependencies) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = module.NewRegistry()
	}
	if deps.MaxResults <= 0 {
		deps.MaxResults = DefaultMaxResults
	}
	logger = logger.With("session", name)

	s := &Session{
		Name: name,
		World: worldstate.New(worldstate.Options{
			FinishCastsOnRemove: deps.FinishCastsOnRemove,
			Logger:              logger,
		}),
		deps: deps,
		log:  logger,
	}
	s.subscribe()
	return s
}

func (s *Session) subscribe() {
	ev := &s.World.Events
	s.unsubs = append(s.unsubs,
		ev.ActorCreated.Subscribe(s.onActorCreated),
		ev.ActorDestroyed.Subscribe(s.onActorDestroyed),
		ev.InCombatChanged.Subscribe(s.onInCombatChanged),
		ev.CastStarted.Subscribe(func(a *core.Actor) { s.recordCast(a, true) }),
		ev.CastFinished.Subscribe(func(a *core.Actor) { s.recordCast(a, false) }),
		ev.StatusAdded.Subscribe(func(st worldstate.ActorStatus) { s.recordStatus(st, true) }),
		ev.StatusRemoved.Subscribe(func(st worldstate.ActorStatus) { s.recordStatus(st, false) }),
	)
}

// ApplyFrame feeds one observation into the world and then ticks the
// active encounter at the frame time.
func (s *Session) ApplyFrame(frame *core.Frame) error {
	s.now = frame.Time
	if err := s.World.ApplyFrame(frame); err != nil {
		return err
	}
	s.Tick(frame.Time)
	return nil
}

// Tick advances the encounter clock. A zero or earlier time ticks at the
// last observed time.
func (s *Session) Tick(now time.Time) {
	now = s.at(now)
	s.now = now
	if s.cursor == nil || s.cursor.Status() != statemachine.Active {
		return
	}
	s.cursor.Tick(now)
	if s.cursor.Status() == statemachine.Complete {
		s.finish(now)
	}
}

// Reset ends the active encounter, if any, and re-arms for the next pull
// against whatever actors are live.
func (s *Session) Reset(now time.Time) {
	now = s.at(now)
	s.now = now
	if s.encounter != nil {
		s.finish(now)
	}
	s.disarm()
	for _, a := range s.World.Actors() {
		if s.arm(a) {
			break
		}
	}
}

// Close ends the active encounter and detaches from the world. A zero time
// closes at the last observed time.
func (s *Session) Close(now time.Time) {
	now = s.at(now)
	if s.encounter != nil {
		s.finish(now)
	}
	s.disarm()
	for _, u := range s.unsubs {
		u()
	}
	s.unsubs = nil
}

// Now returns the last frame or tick time the session has seen.
func (s *Session) Now() time.Time { return s.now }

// at resolves now against the session clock, which never runs backwards.
func (s *Session) at(now time.Time) time.Time {
	if now.IsZero() || now.Before(s.now) {
		return s.now
	}
	return now
}

// Cursor returns the armed cursor, or nil.
func (s *Session) Cursor() *statemachine.Cursor { return s.cursor }

// Encounter returns the encounter being recorded, or nil.
func (s *Session) Encounter() *core.Encounter { return s.encounter }

// Results returns the most recently finished encounters, oldest first.
func (s *Session) Results() []Result { return s.results }

// Finished returns how many encounters the session has finished in total.
func (s *Session) Finished() int { return s.finished }

// Since returns the retained results finished after the first n.
func (s *Session) Since(n int) []Result {
	k := min(s.finished-n, len(s.results))
	if k <= 0 {
		return nil
	}
	return s.results[len(s.results)-k:]
}

func (s *Session) onActorCreated(a *core.Actor) {
	if s.cursor != nil {
		return
	}
	if s.arm(a) && s.World.InCombat() {
		s.start()
	}
}

func (s *Session) onActorDestroyed(a *core.Actor) {
	if s.cursor == nil || a.InstanceID != s.bossID {
		return
	}
	if s.encounter != nil {
		s.finish(s.now)
	}
	s.disarm()
}

func (s *Session) onInCombatChanged(inCombat bool) {
	if s.cursor == nil {
		return
	}
	switch {
	case inCombat && s.cursor.Status() == statemachine.Idle:
		s.start()
	case !inCombat && s.encounter != nil:
		s.finish(s.now)
	}
}

// arm creates an idle cursor when a has a registered definition.
func (s *Session) arm(a *core.Actor) bool {
	def, ok := s.deps.Registry.Lookup(a.OID)
	if !ok {
		return false
	}
	s.bossID = a.InstanceID
	s.cursor = statemachine.NewCursor(def, s.World, s.log)
	s.cursorUnsub = s.cursor.Transitioned.Subscribe(s.recordTransition)
	s.log.Info("encounter armed", "name", def.Name(), "oid", a.OID, "actor", a.InstanceID)
	return true
}

func (s *Session) disarm() {
	if s.cursorUnsub != nil {
		s.cursorUnsub()
		s.cursorUnsub = nil
	}
	s.cursor = nil
	s.bossID = 0
}

func (s *Session) start() {
	def := s.cursor.Definition()
	s.encounter = &core.Encounter{
		OID:     def.OID(),
		Name:    def.Name(),
		Zone:    s.World.Zone(),
		Start:   s.now,
		Session: s.Name,
	}
	if s.deps.Backend != nil {
		if err := s.deps.Backend.StartEncounter(s.encounter); err != nil {
			s.log.Warn("storage rejected encounter start", "name", def.Name(), "error", err)
		}
	}
	s.log.Info("encounter started", "name", def.Name(), "zone", s.encounter.Zone)
	s.cursor.Start(s.now)
	if s.cursor.Status() == statemachine.Complete {
		s.finish(s.now)
	}
}

// finish stops the cursor, persists the trace and builds the timing tree.
// A cursor for a boss that is still alive is re-armed for the next pull.
func (s *Session) finish(now time.Time) {
	trace := s.cursor.Stop(now)
	def := s.cursor.Definition()
	enc := *s.encounter
	s.encounter = nil

	if s.deps.Backend != nil {
		if err := s.deps.Backend.EndEncounter(trace); err != nil {
			s.log.Warn("storage rejected encounter end", "name", def.Name(), "error", err)
		}
	}

	res := Result{Encounter: enc, Trace: trace}
	res.Tree, res.Branches, res.Err = timeline.Retrofit(def, trace)
	if res.Err != nil {
		s.log.Error("failed to project encounter timings", "name", def.Name(), "error", res.Err)
	}
	if len(s.results) >= s.deps.MaxResults {
		s.results = append(s.results[:0:0], s.results[len(s.results)-s.deps.MaxResults+1:]...)
	}
	s.results = append(s.results, res)
	s.finished++
	s.log.Info("encounter finished",
		"name", def.Name(),
		"duration", trace.End.Sub(trace.Start),
		"states", len(trace.States))

	boss := s.World.FindActor(s.bossID)
	s.disarm()
	if boss != nil {
		s.arm(boss)
	}
}

func (s *Session) recordCast(a *core.Actor, started bool) {
	if s.encounter == nil || s.deps.Backend == nil || a.CastInfo == nil {
		return
	}
	c := a.CastInfo
	ev := &core.CastEvent{
		Time:       s.now,
		ActorID:    a.InstanceID,
		OID:        a.OID,
		ActionType: c.ActionType,
		ActionID:   c.ActionID,
		TargetID:   c.TargetID,
		Location:   c.Location,
		TotalTime:  c.TotalTime,
		Started:    started,
	}
	if err := s.deps.Backend.RecordCast(ev); err != nil {
		s.log.Warn("failed to record cast", "actor", a.InstanceID, "action", c.ActionID, "error", err)
	}
}

func (s *Session) recordStatus(st worldstate.ActorStatus, added bool) {
	if s.encounter == nil || s.deps.Backend == nil {
		return
	}
	cur := st.Status()
	ev := &core.StatusEvent{
		Time:     s.now,
		ActorID:  st.Actor.InstanceID,
		Slot:     st.Slot,
		StatusID: cur.ID,
		SourceID: cur.SourceID,
		Stacks:   cur.StackCount,
		Added:    added,
	}
	if err := s.deps.Backend.RecordStatus(ev); err != nil {
		s.log.Warn("failed to record status", "actor", st.Actor.InstanceID, "status", cur.ID, "error", err)
	}
}

func (s *Session) recordTransition(tr core.StateTransition) {
	if s.encounter == nil || s.deps.Backend == nil {
		return
	}
	if err := s.deps.Backend.RecordTransition(&tr); err != nil {
		s.log.Warn("failed to record transition", "from", tr.From, "to", tr.To, "error", err)
	}
}
