// Package gormstorage implements the storage.Backend interface on GORM with
// internal queues drained by a background writer. The sqlite and postgres
// backends embed it and only differ in how the connection is made.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bossmod/tracker/internal/model"
	"github.com/bossmod/tracker/internal/model/convert"
	"github.com/bossmod/tracker/internal/queue"
	"github.com/bossmod/tracker/pkg/core"

	"gorm.io/gorm"
)

// DefaultFlushInterval is how often the background writer drains the queues.
const DefaultFlushInterval = 2 * time.Second

// ErrNoEncounter is returned when reading back an encounter that was never stored.
var ErrNoEncounter = errors.New("encounter not found")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
	// SkipMigrate is set when the caller already ran database.Setup.
	SkipMigrate bool
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Casts       *queue.Queue[model.CastEvent]
	Statuses    *queue.Queue[model.StatusEvent]
	Transitions *queue.Queue[model.StateTransition]
}

func newQueues() *queues {
	return &queues{
		Casts:       queue.New[model.CastEvent](),
		Statuses:    queue.New[model.StatusEvent](),
		Transitions: queue.New[model.StateTransition](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps        Dependencies
	log         *slog.Logger
	queues      *queues
	encounterID atomic.Uint64
	localIDs    atomic.Uint64
	flushMu     sync.Mutex
	stopChan    chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		deps:   deps,
		log:    log.With("component", "gormstorage"),
		queues: newQueues(),
	}
}

// DB returns the underlying connection (nil in queue-only mode).
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema and starts the DB writer goroutine. Without a DB
// the backend only queues, which is how the unit tests drive it.
func (b *Backend) Init() error {
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB == nil {
		close(b.done)
		return nil
	}

	if !b.deps.SkipMigrate {
		if err := b.deps.DB.AutoMigrate(model.DatabaseModels...); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopChan == nil {
			return
		}
		close(b.stopChan)
		<-b.done
		err = b.Flush()
	})
	return err
}

// StartEncounter inserts the encounter row synchronously so that every queued
// event can be stamped with its id.
func (b *Backend) StartEncounter(e *core.Encounter) error {
	if b.deps.DB == nil {
		e.ID = uint(b.localIDs.Add(1))
		b.encounterID.Store(uint64(e.ID))
		return nil
	}

	row := convert.CoreToEncounter(*e)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert encounter: %w", err)
	}
	e.ID = row.ID
	b.encounterID.Store(uint64(row.ID))
	return nil
}

// EndEncounter drains the queues, then stores the trace on the encounter row
// together with its phase and state rows in one transaction.
func (b *Backend) EndEncounter(trace core.EncounterTrace) error {
	id := uint(b.encounterID.Swap(0))
	if id == 0 {
		return nil
	}
	if err := b.Flush(); err != nil {
		return err
	}
	if b.deps.DB == nil {
		return nil
	}

	phases, states, doc, err := convert.TraceToRows(id, trace)
	if err != nil {
		return err
	}
	end := trace.End

	return b.deps.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Encounter{}).Where("id = ?", id).Updates(map[string]any{
			"end_time":    end,
			"duration_ms": trace.Duration().Milliseconds(),
			"trace":       doc,
		}).Error; err != nil {
			return fmt.Errorf("failed to update encounter %d: %w", id, err)
		}
		if len(phases) > 0 {
			if err := tx.Create(&phases).Error; err != nil {
				return fmt.Errorf("failed to insert phases: %w", err)
			}
		}
		if len(states) > 0 {
			if err := tx.Create(&states).Error; err != nil {
				return fmt.Errorf("failed to insert states: %w", err)
			}
		}
		return nil
	})
}

// RecordCast converts and queues a cast event.
func (b *Backend) RecordCast(e *core.CastEvent) error {
	row := convert.CoreToCastEvent(*e)
	row.EncounterID = uint(b.encounterID.Load())
	b.queues.Casts.Push(row)
	return nil
}

// RecordStatus converts and queues a status event.
func (b *Backend) RecordStatus(e *core.StatusEvent) error {
	row := convert.CoreToStatusEvent(*e)
	row.EncounterID = uint(b.encounterID.Load())
	b.queues.Statuses.Push(row)
	return nil
}

// RecordTransition converts and queues a state transition.
func (b *Backend) RecordTransition(e *core.StateTransition) error {
	row := convert.CoreToStateTransition(*e)
	row.EncounterID = uint(b.encounterID.Load())
	b.queues.Transitions.Push(row)
	return nil
}

// Pending returns the number of queued rows not yet written.
func (b *Backend) Pending() int {
	return b.queues.Casts.Len() + b.queues.Statuses.Len() + b.queues.Transitions.Len()
}

// Flush writes every queued row. Failed batches are requeued and the first
// error is returned.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return nil
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	return errors.Join(
		writeQueue(b.deps.DB, b.queues.Casts, "cast events", b.log),
		writeQueue(b.deps.DB, b.queues.Statuses, "status events", b.log),
		writeQueue(b.deps.DB, b.queues.Transitions, "state transitions", b.log),
	)
}

// LoadTrace reads back the recorded trace of a stored encounter.
func (b *Backend) LoadTrace(encounterID uint) (core.EncounterTrace, error) {
	return LoadTrace(b.deps.DB, encounterID)
}

// LoadTrace reads back the recorded trace of a stored encounter.
func LoadTrace(db *gorm.DB, encounterID uint) (core.EncounterTrace, error) {
	var enc model.Encounter
	err := db.Preload("Phases").Preload("States").First(&enc, encounterID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.EncounterTrace{}, fmt.Errorf("%w: %d", ErrNoEncounter, encounterID)
	}
	if err != nil {
		return core.EncounterTrace{}, fmt.Errorf("failed to load encounter %d: %w", encounterID, err)
	}
	return convert.EncounterToTrace(enc)
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) error {
	if q.Empty() {
		return nil
	}

	items := q.GetAndEmpty()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error creating rows", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Requeue(items)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := tx.Commit().Error; err != nil {
		q.Requeue(items)
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return nil
}

// writerLoop periodically drains queues into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.log.Warn("Flush failed, rows requeued", "error", err)
			}
		}
	}
}
