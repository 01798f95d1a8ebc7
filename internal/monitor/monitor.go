// Package monitor periodically writes a status snapshot of every open session.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bossmod/tracker/internal/session"
	"github.com/bossmod/tracker/internal/storage"
)

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = time.Second

// PendingWriter is implemented by backends that queue writes.
type PendingWriter interface {
	Pending() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Sessions   *session.Manager
	Backend    storage.Backend
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// SessionStatus describes one session.
type SessionStatus struct {
	Name      string `json:"name"`
	Zone      uint16 `json:"zone"`
	InCombat  bool   `json:"inCombat"`
	Actors    int    `json:"actors"`
	Encounter string `json:"encounter,omitempty"`
	Phase     int    `json:"phase"`
	State     uint32 `json:"state"`
	Cursor    string `json:"cursor,omitempty"`
	ElapsedMs int64  `json:"elapsedMs"`
	Finished  int    `json:"finished"`
}

// Status is one snapshot.
type Status struct {
	Time          time.Time       `json:"time"`
	Sessions      []SessionStatus `json:"sessions"`
	PendingWrites int             `json:"pendingWrites"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot collects the current status of every session.
func (s *Service) Snapshot() Status {
	now := s.deps.Now()
	st := Status{Time: now, Sessions: []SessionStatus{}}

	for _, name := range s.deps.Sessions.Names() {
		_ = s.deps.Sessions.With(name, func(sess *session.Session) error {
			ss := SessionStatus{
				Name:     name,
				Zone:     sess.World.Zone(),
				InCombat: sess.World.InCombat(),
				Actors:   sess.World.Len(),
				Finished: sess.Finished(),
			}
			if c := sess.Cursor(); c != nil {
				ss.Encounter = c.Definition().Name()
				ss.Phase = c.Phase()
				ss.State = uint32(c.State())
				ss.Cursor = c.Status().String()
				ss.ElapsedMs = c.Elapsed(now).Milliseconds()
			}
			st.Sessions = append(st.Sessions, ss)
			return nil
		})
	}

	if p, ok := s.deps.Backend.(PendingWriter); ok {
		st.PendingWrites = p.Pending()
	}
	return st
}

// WriteStatus overwrites the status file with the current snapshot.
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := os.WriteFile(s.deps.StatusFile, data, 0o644); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if s.deps.StatusFile == "" {
		return fmt.Errorf("monitor: no status file configured")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stopChan, s.done)
	return nil
}

func (s *Service) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	logger := s.deps.Logger
	logger.Debug("Starting status monitor", "file", s.deps.StatusFile, "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.WriteStatus(); err != nil {
				logger.Error("Error writing status", "error", err)
			}
		}
	}
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
