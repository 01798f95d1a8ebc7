package streaming

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bossmod/tracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	start := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	payload := NewStartEncounter(&core.Encounter{ID: 3, OID: 0x35FD, Name: "Hesperos", Zone: 1008, Start: start})

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(Envelope{Type: TypeStartEncounter, Payload: raw})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, TypeStartEncounter, env.Type)

	var got StartEncounterPayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, payload, got)
}

func TestStartEncounterOmitsEmptySession(t *testing.T) {
	data, err := json.Marshal(NewStartEncounter(&core.Encounter{OID: 1}))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "session")
}

func TestNewTransition(t *testing.T) {
	p := NewTransition(&core.StateTransition{Phase: 1, From: 10, To: 20, Elapsed: 2500 * time.Millisecond, Ambiguous: true})
	assert.Equal(t, int64(2500), p.ElapsedMs)
	assert.Equal(t, core.StateID(20), p.To)
	assert.True(t, p.Ambiguous)

	data, err := json.Marshal(NewTransition(&core.StateTransition{From: 1, To: 2}))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ambiguous")
}

func TestNewCastAndStatus(t *testing.T) {
	c := NewCast(&core.CastEvent{ActorID: 7, ActionID: 26150, TargetID: 9, Location: core.Vec3{X: 1, Y: 2, Z: 3}, Started: true})
	assert.Equal(t, uint32(7), c.ActorID)
	assert.Equal(t, core.Vec3{X: 1, Y: 2, Z: 3}, c.Location)
	assert.True(t, c.Started)

	s := NewStatus(&core.StatusEvent{ActorID: 7, Slot: 3, StatusID: 50, SourceID: 7, Stacks: 2})
	assert.Equal(t, 3, s.Slot)
	assert.Equal(t, uint8(2), s.Stacks)
	assert.False(t, s.Added)
}

func TestAckMessage(t *testing.T) {
	var ack AckMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ack","for":"end_encounter"}`), &ack))
	assert.Equal(t, TypeEndEncounter, ack.For)
	assert.Contains(t, AckedTypes, ack.For)
}
