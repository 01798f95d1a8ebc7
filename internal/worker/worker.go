// Package worker turns host commands into session calls.
package worker

import (
	"github.com/bossmod/tracker/internal/logging"
	"github.com/bossmod/tracker/internal/parser"
	"github.com/bossmod/tracker/internal/replay"
	"github.com/bossmod/tracker/internal/session"
)

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Parser      *parser.Parser
	Sessions    *session.Manager
	SessionName string
	// Recorder, when set, receives every applied frame, tick and reset plus
	// the traces of finished encounters.
	Recorder   *replay.Writer
	LogManager *logging.SlogManager
}

// Manager routes host commands to one named session.
type Manager struct {
	deps Dependencies
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	return &Manager{deps: deps}
}
