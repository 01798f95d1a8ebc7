// Package memory keeps encounter records in memory and exports each finished
// encounter to a JSON file.
package memory

import (
	"sync"

	"github.com/bossmod/tracker/internal/config"
	"github.com/bossmod/tracker/pkg/core"
)

// EncounterRecord groups an encounter with everything recorded while it was open
type EncounterRecord struct {
	Encounter   core.Encounter
	Casts       []core.CastEvent
	Statuses    []core.StatusEvent
	Transitions []core.StateTransition
	Trace       *core.EncounterTrace
}

// DefaultMaxFinished is how many finished encounters are kept when the
// config leaves it unset.
const DefaultMaxFinished = 32

// Backend stores encounter data in memory and exports to JSON. Only the most
// recent finished encounters are kept; older ones survive as exported files.
type Backend struct {
	cfg      config.MemoryConfig
	current  *EncounterRecord
	finished []EncounterRecord

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	if cfg.MaxFinished <= 0 {
		cfg.MaxFinished = DefaultMaxFinished
	}
	return &Backend{
		cfg: cfg,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartEncounter begins recording a new encounter. An encounter still open is
// discarded without export.
func (b *Backend) StartEncounter(e *core.Encounter) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	e.ID = b.idCounter

	b.current = &EncounterRecord{Encounter: *e}
	return nil
}

// EndEncounter attaches the trace, exports the encounter and archives it.
func (b *Backend) EndEncounter(trace core.EncounterTrace) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return nil
	}
	record := b.current
	record.Trace = &trace
	b.current = nil
	if len(b.finished) >= b.cfg.MaxFinished {
		b.finished = append(b.finished[:0:0], b.finished[len(b.finished)-b.cfg.MaxFinished+1:]...)
	}
	b.finished = append(b.finished, *record)

	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON(record)
}

// RecordCast appends a cast event to the open encounter
func (b *Backend) RecordCast(e *core.CastEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil {
		b.current.Casts = append(b.current.Casts, *e)
	}
	return nil
}

// RecordStatus appends a status event to the open encounter
func (b *Backend) RecordStatus(e *core.StatusEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil {
		b.current.Statuses = append(b.current.Statuses, *e)
	}
	return nil
}

// RecordTransition appends a state transition to the open encounter
func (b *Backend) RecordTransition(e *core.StateTransition) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil {
		b.current.Transitions = append(b.current.Transitions, *e)
	}
	return nil
}

// Current returns a copy of the open encounter record
func (b *Backend) Current() (EncounterRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.current == nil {
		return EncounterRecord{}, false
	}
	return *b.current, true
}

// Encounters returns the retained finished encounters in completion order
func (b *Backend) Encounters() []EncounterRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]EncounterRecord, len(b.finished))
	copy(out, b.finished)
	return out
}

// LastExportPath returns the file written by the last EndEncounter
func (b *Backend) LastExportPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
