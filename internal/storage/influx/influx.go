package influx

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bossmod/tracker/internal/config"
	"github.com/bossmod/tracker/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
)

// Measurement names written by the backend.
const (
	MeasurementCast       = "cast"
	MeasurementStatus     = "status"
	MeasurementTransition = "transition"
	MeasurementState      = "state_duration"
	MeasurementPhase      = "phase_duration"
	MeasurementEncounter  = "encounter_duration"
)

// ConnectTimeout bounds the initial ping and bucket setup.
const ConnectTimeout = 10 * time.Second

// Backend implements storage.Backend by writing one point per record. The
// timing points written at EndEncounter are what dashboards aggregate over.
type Backend struct {
	mgr *Manager

	mu        sync.Mutex
	encounter *core.Encounter
	nextID    uint
}

// New creates an influx backend; the connection is made in Init.
func New(cfg config.InfluxConfig, log zerolog.Logger) *Backend {
	return &Backend{mgr: NewManager(cfg, log)}
}

// Manager exposes the underlying connection manager.
func (b *Backend) Manager() *Manager {
	return b.mgr
}

// Init connects to the server or opens the backup file.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), ConnectTimeout)
	defer cancel()
	return b.mgr.Connect(ctx)
}

// Close flushes and releases the connection.
func (b *Backend) Close() error {
	return b.mgr.Close()
}

// StartEncounter remembers the encounter whose tags are put on every point.
func (b *Backend) StartEncounter(e *core.Encounter) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	e.ID = b.nextID
	enc := *e
	b.encounter = &enc
	return nil
}

// EndEncounter writes the per-state, per-phase and total duration points.
func (b *Backend) EndEncounter(trace core.EncounterTrace) error {
	b.mu.Lock()
	enc := b.encounter
	b.encounter = nil
	b.mu.Unlock()

	if enc == nil {
		return nil
	}
	var errs []error
	for _, p := range TracePoints(*enc, trace) {
		errs = append(errs, b.mgr.WritePoint(p))
	}
	return errors.Join(errs...)
}

// RecordCast writes a cast point.
func (b *Backend) RecordCast(e *core.CastEvent) error {
	enc, ok := b.current()
	if !ok {
		return nil
	}
	return b.mgr.WritePoint(CastPoint(enc, e))
}

// RecordStatus writes a status point.
func (b *Backend) RecordStatus(e *core.StatusEvent) error {
	enc, ok := b.current()
	if !ok {
		return nil
	}
	return b.mgr.WritePoint(StatusPoint(enc, e))
}

// RecordTransition writes a transition point.
func (b *Backend) RecordTransition(e *core.StateTransition) error {
	enc, ok := b.current()
	if !ok {
		return nil
	}
	return b.mgr.WritePoint(TransitionPoint(enc, e))
}

func (b *Backend) current() (core.Encounter, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.encounter == nil {
		return core.Encounter{}, false
	}
	return *b.encounter, true
}

func hex(v uint32) string {
	return "0x" + strconv.FormatUint(uint64(v), 16)
}

// optionalTag skips empty values, which line protocol cannot carry.
func optionalTag(p *influxdb2_write.Point, key, value string) {
	if value != "" {
		p.AddTag(key, value)
	}
}

func encounterTags(p *influxdb2_write.Point, enc core.Encounter) *influxdb2_write.Point {
	optionalTag(p, "encounter", enc.Name)
	return p.
		AddTag("oid", hex(enc.OID)).
		AddTag("zone", strconv.Itoa(int(enc.Zone)))
}

// CastPoint builds the point for a cast event.
func CastPoint(enc core.Encounter, e *core.CastEvent) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementCast)
	encounterTags(p, enc).
		AddTag("action", strconv.FormatUint(uint64(e.ActionID), 10)).
		AddTag("caster_oid", hex(e.OID)).
		AddField("actor", int64(e.ActorID)).
		AddField("target", int64(e.TargetID)).
		AddField("total_time", float64(e.TotalTime)).
		AddField("started", e.Started).
		SetTime(e.Time)
	return p
}

// StatusPoint builds the point for a status event.
func StatusPoint(enc core.Encounter, e *core.StatusEvent) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementStatus)
	encounterTags(p, enc).
		AddTag("status", strconv.FormatUint(uint64(e.StatusID), 10)).
		AddField("actor", int64(e.ActorID)).
		AddField("source", int64(e.SourceID)).
		AddField("slot", int64(e.Slot)).
		AddField("stacks", int64(e.Stacks)).
		AddField("added", e.Added).
		SetTime(e.Time)
	return p
}

// TransitionPoint builds the point for a state transition.
func TransitionPoint(enc core.Encounter, e *core.StateTransition) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementTransition)
	encounterTags(p, enc).
		AddTag("phase", strconv.Itoa(e.Phase)).
		AddField("from", int64(e.From)).
		AddField("to", int64(e.To)).
		AddField("elapsed_ms", e.Elapsed.Milliseconds()).
		AddField("ambiguous", e.Ambiguous).
		SetTime(e.Time)
	return p
}

// TracePoints builds one point per visited state and phase plus the total,
// each stamped at the moment it ended.
func TracePoints(enc core.Encounter, trace core.EncounterTrace) []*influxdb2_write.Point {
	points := make([]*influxdb2_write.Point, 0, len(trace.States)+len(trace.Phases)+1)

	enter := trace.Start
	for _, s := range trace.States {
		p := influxdb2_write.NewPointWithMeasurement(MeasurementState)
		encounterTags(p, enc).
			AddTag("state", strconv.FormatUint(uint64(s.ID), 10)).
			AddField("duration_ms", s.Exit.Sub(enter).Milliseconds()).
			SetTime(s.Exit)
		optionalTag(p, "state_name", s.Name)
		points = append(points, p)
		enter = s.Exit
	}

	for _, ph := range trace.Phases {
		p := influxdb2_write.NewPointWithMeasurement(MeasurementPhase)
		encounterTags(p, enc).
			AddTag("phase", strconv.Itoa(ph.ID)).
			AddField("duration_ms", ph.Exit.Sub(ph.Enter).Milliseconds()).
			AddField("last_state", int64(ph.LastStateID)).
			SetTime(ph.Exit)
		optionalTag(p, "phase_name", ph.Name)
		points = append(points, p)
	}

	p := influxdb2_write.NewPointWithMeasurement(MeasurementEncounter)
	encounterTags(p, enc).
		AddField("duration_ms", trace.Duration().Milliseconds()).
		AddField("states", int64(len(trace.States))).
		SetTime(trace.End)
	points = append(points, p)

	return points
}
