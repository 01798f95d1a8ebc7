// Package websocket streams encounter records to a live timeline UI.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bossmod/tracker/pkg/core"
	"github.com/bossmod/tracker/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
	// ReconnectBackoff is the first reconnect delay; it doubles per attempt.
	ReconnectBackoff time.Duration
	Logger           *slog.Logger
}

// Backend streams encounter data over WebSocket. Start and end of an
// encounter wait for a server ack; everything else is fire-and-forget.
type Backend struct {
	conn   *connection
	cfg    Config
	nextID uint
}

// New creates a new WebSocket storage backend.
func New(cfg Config) *Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("component", "websocket"), cfg.ReconnectBackoff),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Connected reports whether the socket is currently up.
func (b *Backend) Connected() bool {
	return b.conn.connected()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartEncounter assigns a stream-local id, announces the encounter and
// waits for the server ack.
func (b *Backend) StartEncounter(e *core.Encounter) error {
	b.nextID++
	e.ID = b.nextID

	data, err := marshalEnvelope(streaming.TypeStartEncounter, streaming.NewStartEncounter(e))
	if err != nil {
		return err
	}
	b.conn.setOpenEncounter(data)

	return b.conn.sendAndWait(data, streaming.TypeStartEncounter, ackTimeout)
}

// EndEncounter sends the trace and waits for the server ack.
func (b *Backend) EndEncounter(trace core.EncounterTrace) error {
	data, err := marshalEnvelope(streaming.TypeEndEncounter, streaming.EndEncounterPayload{ID: b.nextID, Trace: trace})
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndEncounter, ackTimeout)

	// the encounter is over whether or not the ack arrived
	b.conn.setOpenEncounter(nil)
	return err
}

func (b *Backend) RecordCast(e *core.CastEvent) error {
	return b.sendEnvelope(streaming.TypeCast, streaming.NewCast(e))
}

func (b *Backend) RecordStatus(e *core.StatusEvent) error {
	return b.sendEnvelope(streaming.TypeStatus, streaming.NewStatus(e))
}

func (b *Backend) RecordTransition(e *core.StateTransition) error {
	return b.sendEnvelope(streaming.TypeTransition, streaming.NewTransition(e))
}
