package parser

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bossmod/tracker/pkg/core"
)

var fixedNow = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func newTestParser() *Parser {
	p := NewParser(slog.Default())
	p.now = func() time.Time { return fixedNow }
	return p
}

func TestNewParser(t *testing.T) {
	p := newTestParser()
	require.NotNil(t, p)
}

func TestParseUintFromFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    uint64
		wantErr bool
	}{
		{"integer", "32", 32, false},
		{"zero", "0", 0, false},
		{"float with decimals", "32.00", 32, false},
		{"float with trailing zero", "30.0", 30, false},
		{"large integer", "65535", 65535, false},
		{"large float", "65535.00", 65535, false},
		{"fractional rejects", "10.99", 0, true},
		{"empty string", "", 0, true},
		{"non-numeric", "abc", 0, true},
		{"negative", "-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseUintFromFloat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseIntFromFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"integer", "32", 32, false},
		{"zero", "0", 0, false},
		{"negative integer", "-1", -1, false},
		{"float with decimals", "32.00", 32, false},
		{"negative float", "-1.00", -1, false},
		{"large integer", "65535", 65535, false},
		{"fractional rejects", "10.99", 0, true},
		{"empty string", "", 0, true},
		{"non-numeric", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntFromFloat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}


func TestParseFrame(t *testing.T) {
	p := newTestParser()

	frame, err := p.ParseFrame([]string{`{
		"time": "2024-03-01T20:00:05Z",
		"zone": 1008,
		"inCombat": true,
		"playerActorId": 268435457,
		"actors": [
			{"instanceId": 268435457, "oid": 0, "kind": "player", "position": {"x": 100, "y": 0, "z": 95}, "rotation": 3.14, "hitboxRadius": 0.5,
			 "statuses": [{"id": 50, "sourceId": 7, "stackCount": 1, "remainingTime": 10}]},
			{"instanceId": 1073741825, "oid": 13821, "kind": 517, "position": {"x": 100, "y": 0, "z": 100}, "hitboxRadius": 7.5,
			 "cast": {"actionType": 1, "actionId": 27134, "targetId": 268435457, "currentTime": 1.2, "totalTime": 5}}
		]
	}`})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 1, 20, 0, 5, 0, time.UTC), frame.Time)
	assert.Equal(t, uint16(1008), frame.Zone)
	assert.True(t, frame.InCombat)
	assert.Equal(t, uint32(268435457), frame.PlayerActorID)
	require.Len(t, frame.Actors, 2)

	player := frame.Actors[0]
	assert.Equal(t, core.KindPlayer, player.Kind)
	assert.Equal(t, core.Vec3{X: 100, Z: 95}, player.Position)
	require.Len(t, player.Statuses, core.StatusSlots, "padded to full length")
	assert.Equal(t, core.Status{ID: 50, SourceID: 7, StackCount: 1, RemainingTime: 10}, player.Statuses[0])
	assert.True(t, player.Statuses[29].Empty())
	assert.Nil(t, player.Cast)

	boss := frame.Actors[1]
	assert.Equal(t, core.KindEnemy, boss.Kind)
	assert.Equal(t, uint32(13821), boss.OID)
	require.NotNil(t, boss.Cast)
	assert.Equal(t, uint32(27134), boss.Cast.ActionID)
	assert.Equal(t, float32(5), boss.Cast.TotalTime)
}

func TestParseFrame_Time(t *testing.T) {
	p := newTestParser()

	frame, err := p.ParseFrame([]string{`{"timeMs": 1709323205000}`})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 20, 0, 5, 0, time.UTC), frame.Time)

	frame, err = p.ParseFrame([]string{`{"timeMs": 1709323205000.0}`})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 20, 0, 5, 0, time.UTC), frame.Time)

	frame, err = p.ParseFrame([]string{`{}`})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, frame.Time)
	assert.Empty(t, frame.Actors)
}

func TestParseFrame_QuotedPayload(t *testing.T) {
	p := newTestParser()
	frame, err := p.ParseFrame([]string{`"{""zone"": 7}"`})
	require.NoError(t, err)
	assert.Equal(t, uint16(7), frame.Zone)
}

func TestParseFrame_EmptyStringInBarePayload(t *testing.T) {
	p := newTestParser()
	frame, err := p.ParseFrame([]string{`{"zone": 7, "label": "", "actors": [{"instanceId": 1, "kind": "enemy"}]}`})
	require.NoError(t, err)
	assert.Equal(t, uint16(7), frame.Zone)
	require.Len(t, frame.Actors, 1)
	assert.Equal(t, core.KindEnemy, frame.Actors[0].Kind)
}

func TestParseFrame_Kinds(t *testing.T) {
	tests := []struct {
		kind    string
		want    core.ActorKind
		wantErr bool
	}{
		{`"enemy"`, core.KindEnemy, false},
		{`"chocobo"`, core.KindChocobo, false},
		{`"0x202"`, core.KindPet, false},
		{`260`, core.KindPlayer, false},
		{`513.0`, core.KindUnknown, false},
		{`null`, core.KindNone, false},
		{`"dragon"`, 0, true},
		{`"0x999"`, 0, true},
		{`1`, 0, true},
		{`65797`, 0, true},
		{`-1`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			frame, err := newTestParser().ParseFrame([]string{`{"actors": [{"instanceId": 1, "kind": ` + tt.kind + `}]}`})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, frame.Actors[0].Kind)
		})
	}
}

func TestParseFrame_Errors(t *testing.T) {
	tooMany := `{"actors": [{"instanceId": 1, "statuses": [` +
		`{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{}` +
		`]}]}`

	p := newTestParser()
	_, err := p.ParseFrame([]string{tooMany})
	require.ErrorIs(t, err, ErrTooManyStatuses)

	_, err = p.ParseFrame(nil)
	assert.Error(t, err)

	_, err = p.ParseFrame([]string{`{"zone": "high"}`})
	assert.Error(t, err)

	_, err = p.ParseFrame([]string{`{"timeMs": 1.5}`})
	assert.Error(t, err)
}

func TestParseTick(t *testing.T) {
	p := newTestParser()

	ts, err := p.ParseTick([]string{"1709323205000"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 20, 0, 5, 0, time.UTC), ts)

	ts, err = p.ParseTick(nil)
	require.NoError(t, err)
	assert.True(t, ts.IsZero(), "no argument leaves the time to the session")

	_, err = p.ParseTick([]string{"soon"})
	assert.Error(t, err)
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"hello", "hello"},
		{`"hello"`, "hello"},
		{`he"llo`, `he"llo`},
		{`"{""a"":1}"`, `{"a":1}`},
		{`a""""b`, `a""""b`},
		{`"`, `"`},
		{`{"label":""}`, `{"label":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, unquote(tt.input))
		})
	}
}
