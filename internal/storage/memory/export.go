package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ExportVersion is bumped whenever the export layout changes
const ExportVersion = 1

// EncounterExport is the root JSON structure
type EncounterExport struct {
	Version    int         `json:"version"`
	ID         uint        `json:"id"`
	OID        uint32      `json:"oid"`
	Name       string      `json:"name"`
	Zone       uint16      `json:"zone"`
	Session    string      `json:"session,omitempty"`
	Start      time.Time   `json:"start"`
	DurationMs int64       `json:"durationMs"`
	Phases     []PhaseJSON `json:"phases"`
	States     []StateJSON `json:"states"`
	Events     [][]any     `json:"events"`
}

// PhaseJSON is one phase with times relative to the encounter start
type PhaseJSON struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	EnterMs     int64  `json:"enterMs"`
	ExitMs      int64  `json:"exitMs"`
	LastStateID uint32 `json:"lastStateId"`
}

// StateJSON is one visited state with times relative to the encounter start
type StateJSON struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name,omitempty"`
	EnterMs int64  `json:"enterMs"`
	ExitMs  int64  `json:"exitMs"`
}

// exportJSON writes the encounter data to a (gzipped) JSON file
func (b *Backend) exportJSON(record *EncounterRecord) error {
	export := buildExport(record)

	name := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(record.Encounter.Name)
	timestamp := record.Encounter.Start.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s_%d.json.gz", name, timestamp, record.Encounter.ID)
	} else {
		filename = fmt.Sprintf("%s_%s_%d.json", name, timestamp, record.Encounter.ID)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func buildExport(record *EncounterRecord) EncounterExport {
	enc := record.Encounter
	start := enc.Start
	ms := func(t time.Time) int64 { return t.Sub(start).Milliseconds() }

	export := EncounterExport{
		Version: ExportVersion,
		ID:      enc.ID,
		OID:     enc.OID,
		Name:    enc.Name,
		Zone:    enc.Zone,
		Session: enc.Session,
		Start:   start,
		Phases:  make([]PhaseJSON, 0),
		States:  make([]StateJSON, 0),
		Events:  make([][]any, 0, len(record.Casts)+len(record.Statuses)+len(record.Transitions)),
	}

	if trace := record.Trace; trace != nil {
		export.DurationMs = trace.Duration().Milliseconds()

		for _, p := range trace.Phases {
			export.Phases = append(export.Phases, PhaseJSON{
				ID:          p.ID,
				Name:        p.Name,
				EnterMs:     ms(p.Enter),
				ExitMs:      ms(p.Exit),
				LastStateID: uint32(p.LastStateID),
			})
		}

		// a state is entered when the previous one is left
		enter := trace.Start
		for _, s := range trace.States {
			export.States = append(export.States, StateJSON{
				ID:      uint32(s.ID),
				Name:    s.Name,
				EnterMs: ms(enter),
				ExitMs:  ms(s.Exit),
			})
			enter = s.Exit
		}
	}

	// Format: [ms, "cast_start"|"cast_finish", actorId, actionId, targetId, [x, y, z]]
	for _, c := range record.Casts {
		kind := "cast_finish"
		if c.Started {
			kind = "cast_start"
		}
		export.Events = append(export.Events, []any{
			ms(c.Time),
			kind,
			c.ActorID,
			c.ActionID,
			c.TargetID,
			[]float32{c.Location.X, c.Location.Y, c.Location.Z},
		})
	}

	// Format: [ms, "status_gain"|"status_lose", actorId, statusId, sourceId, slot]
	for _, s := range record.Statuses {
		kind := "status_lose"
		if s.Added {
			kind = "status_gain"
		}
		export.Events = append(export.Events, []any{
			ms(s.Time),
			kind,
			s.ActorID,
			s.StatusID,
			s.SourceID,
			s.Slot,
		})
	}

	// Format: [ms, "transition", phase, from, to, ambiguous]
	for _, tr := range record.Transitions {
		export.Events = append(export.Events, []any{
			ms(tr.Time),
			"transition",
			tr.Phase,
			uint32(tr.From),
			uint32(tr.To),
			boolToInt(tr.Ambiguous),
		})
	}

	sort.SliceStable(export.Events, func(i, j int) bool {
		return export.Events[i][0].(int64) < export.Events[j][0].(int64)
	})

	return export
}

func writeJSON(path string, data EncounterExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data EncounterExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
