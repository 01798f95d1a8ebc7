// Package storage defines the sink for encounter records.
package storage

import "github.com/bossmod/tracker/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Encounter management. StartEncounter may assign e.ID.
	StartEncounter(e *core.Encounter) error
	EndEncounter(trace core.EncounterTrace) error

	// Event recording
	RecordCast(e *core.CastEvent) error
	RecordStatus(e *core.StatusEvent) error
	RecordTransition(e *core.StateTransition) error
}

// Exporter is an optional interface for backends that write a file per encounter.
type Exporter interface {
	LastExportPath() string
}
