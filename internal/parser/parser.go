// Package parser turns raw host payloads into core frames.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bossmod/tracker/pkg/core"
)

// ErrTooManyStatuses is returned when an actor reports more than core.StatusSlots statuses.
var ErrTooManyStatuses = errors.New("too many statuses")

// parseUintFromFloat parses a string that may be an integer ("32") or float ("32.00") into uint64.
// Hosts that only have float numbers may serialize ids that way.
func parseUintFromFloat(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != float64(uint64(f)) {
		return 0, fmt.Errorf("parseUintFromFloat: %q is not a valid uint64", s)
	}
	return uint64(f), nil
}

// parseIntFromFloat parses a string that may be an integer or float into int64.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

// unquote strips the outer quotes a host adds around string arguments and
// collapses its doubled inner quotes. Arguments without outer quotes are
// returned as is.
func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
}

type rawFrame struct {
	Time          *time.Time   `json:"time"`
	TimeMs        *json.Number `json:"timeMs"`
	Zone          uint16       `json:"zone"`
	InCombat      bool         `json:"inCombat"`
	PlayerActorID uint32       `json:"playerActorId"`
	Actors        []rawActor   `json:"actors"`
}

type rawActor struct {
	InstanceID   uint32          `json:"instanceId"`
	OID          uint32          `json:"oid"`
	Kind         json.RawMessage `json:"kind"`
	Position     core.Vec3       `json:"position"`
	Rotation     float32         `json:"rotation"`
	HitboxRadius float32         `json:"hitboxRadius"`
	Cast         *core.CastInfo  `json:"cast"`
	Statuses     []core.Status   `json:"statuses"`
}

// Parser provides pure []string -> core struct conversion.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger, now: time.Now}
}

// ParseFrame parses one JSON frame from data[0]. Frames without a timestamp
// are stamped with the current time.
func (p *Parser) ParseFrame(data []string) (core.Frame, error) {
	var frame core.Frame
	if len(data) == 0 {
		return frame, errors.New("frame: missing payload")
	}

	payload := unquote(data[0])
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()

	var raw rawFrame
	if err := dec.Decode(&raw); err != nil {
		return frame, fmt.Errorf("error unmarshalling frame: %w", err)
	}

	switch {
	case raw.Time != nil:
		frame.Time = *raw.Time
	case raw.TimeMs != nil:
		ms, err := parseIntFromFloat(raw.TimeMs.String())
		if err != nil {
			return frame, fmt.Errorf("frame timeMs: %w", err)
		}
		frame.Time = time.UnixMilli(ms).UTC()
	default:
		frame.Time = p.now()
	}

	frame.Zone = raw.Zone
	frame.InCombat = raw.InCombat
	frame.PlayerActorID = raw.PlayerActorID
	frame.Actors = make([]core.ActorObservation, 0, len(raw.Actors))

	for i := range raw.Actors {
		obs, err := convertActor(&raw.Actors[i])
		if err != nil {
			return frame, fmt.Errorf("actor %d: %w", raw.Actors[i].InstanceID, err)
		}
		frame.Actors = append(frame.Actors, obs)
	}

	p.logger.Debug("Parsed frame",
		"time", frame.Time,
		"zone", frame.Zone,
		"actors", len(frame.Actors))

	return frame, nil
}

// ParseTick parses a unix millisecond timestamp from data[0]. Without an
// argument it returns the zero time, which a session reads as its own clock.
func (p *Parser) ParseTick(data []string) (time.Time, error) {
	if len(data) == 0 {
		return time.Time{}, nil
	}
	ms, err := parseIntFromFloat(unquote(data[0]))
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing tick time: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func convertActor(raw *rawActor) (core.ActorObservation, error) {
	kind, err := parseKind(raw.Kind)
	if err != nil {
		return core.ActorObservation{}, err
	}
	if len(raw.Statuses) > core.StatusSlots {
		return core.ActorObservation{}, fmt.Errorf("%w: got %d, max %d", ErrTooManyStatuses, len(raw.Statuses), core.StatusSlots)
	}

	statuses := make([]core.Status, core.StatusSlots)
	copy(statuses, raw.Statuses)

	return core.ActorObservation{
		InstanceID:   raw.InstanceID,
		OID:          raw.OID,
		Kind:         kind,
		Position:     raw.Position,
		Rotation:     raw.Rotation,
		HitboxRadius: raw.HitboxRadius,
		Cast:         raw.Cast,
		Statuses:     statuses,
	}, nil
}

// parseKind accepts a kind name ("enemy") or its numeric code (517 or "0x205").
func parseKind(raw json.RawMessage) (core.ActorKind, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return core.KindNone, nil
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if kind, ok := core.ParseActorKind(name); ok {
			return kind, nil
		}
		if code, err := strconv.ParseUint(name, 0, 16); err == nil {
			return knownKind(code)
		}
		return core.KindNone, fmt.Errorf("unknown actor kind %q", name)
	}

	code, err := parseUintFromFloat(string(raw))
	if err != nil {
		return core.KindNone, fmt.Errorf("invalid actor kind %s: %w", raw, err)
	}
	return knownKind(code)
}

func knownKind(code uint64) (core.ActorKind, error) {
	switch kind := core.ActorKind(code); kind {
	case core.KindNone, core.KindPlayer, core.KindUnknown, core.KindPet, core.KindChocobo, core.KindEnemy:
		if uint64(kind) == code {
			return kind, nil
		}
	}
	return core.KindNone, fmt.Errorf("unknown actor kind code 0x%x", code)
}
