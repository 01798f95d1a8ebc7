// Package replay records frame streams as zstd-compressed JSON lines and
// plays them back through a session.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bossmod/tracker/pkg/core"
)

// Extension is the file suffix used for replay files.
const Extension = ".jsonl.zst"

// Kind says what an Entry carries.
type Kind string

const (
	KindFrame Kind = "frame"
	KindTick  Kind = "tick"
	KindReset Kind = "reset"
	// KindEncounter holds the trace of an encounter finished while recording.
	KindEncounter Kind = "encounter"
)

// Entry is one line of a replay file.
type Entry struct {
	Kind      Kind                 `json:"kind"`
	Time      time.Time            `json:"time"`
	Frame     *core.Frame          `json:"frame,omitempty"`
	Encounter *core.EncounterTrace `json:"encounter,omitempty"`
}

// Writer appends entries to one replay file.
type Writer struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *zstd.Encoder
	w    *bufio.Writer
}

// Create opens a new replay file at path, creating parent directories.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// NewFileName returns a replay file name stamped with t.
func NewFileName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s%s", prefix, t.UTC().Format("20060102-150405"), Extension)
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// Write appends one entry.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// WriteFrame appends a frame entry.
func (w *Writer) WriteFrame(f *core.Frame) error {
	return w.Write(Entry{Kind: KindFrame, Time: f.Time, Frame: f})
}

// WriteTick appends a clock tick.
func (w *Writer) WriteTick(t time.Time) error {
	return w.Write(Entry{Kind: KindTick, Time: t})
}

// WriteReset appends an encounter reset.
func (w *Writer) WriteReset(t time.Time) error {
	return w.Write(Entry{Kind: KindReset, Time: t})
}

// WriteEncounter appends a finished encounter trace.
func (w *Writer) WriteEncounter(trace core.EncounterTrace) error {
	return w.Write(Entry{Kind: KindEncounter, Time: trace.End, Encounter: &trace})
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}

	var err1 error
	if err := w.w.Flush(); err != nil {
		err1 = err
	}
	if err := w.enc.Close(); err != nil && err1 == nil {
		err1 = err
	}
	if err := w.f.Close(); err != nil && err1 == nil {
		err1 = err
	}
	w.w, w.enc, w.f = nil, nil, nil
	return err1
}

// Read returns every entry of a replay file in order.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var out []Entry
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s:%d: unmarshal: %w", filepath.Base(path), line, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// Traces returns the encounter traces recorded in entries.
func Traces(entries []Entry) []core.EncounterTrace {
	var out []core.EncounterTrace
	for _, e := range entries {
		if e.Kind == KindEncounter && e.Encounter != nil {
			out = append(out, *e.Encounter)
		}
	}
	return out
}
