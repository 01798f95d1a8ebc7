package replay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bossmod/tracker/internal/session"
)

// Player feeds recorded entries into a session.
type Player struct {
	Entries []Entry
	Logger  *slog.Logger
}

// Open reads path into a Player.
func Open(path string, logger *slog.Logger) (*Player, error) {
	entries, err := Read(path)
	if err != nil {
		return nil, err
	}
	return &Player{Entries: entries, Logger: logger}, nil
}

// Run applies every frame, tick and reset in order, closes the session at the
// time of the last entry and returns the encounters the session finished
// during the run. Recorded encounter entries are not replayed; they are what
// the run can be compared against.
func (p *Player) Run(ctx context.Context, s *session.Session) ([]session.Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var results []session.Result
	seen := s.Finished()
	collect := func() {
		results = append(results, s.Since(seen)...)
		seen = s.Finished()
	}

	var frames int
	for i := range p.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := &p.Entries[i]
		switch e.Kind {
		case KindFrame:
			if e.Frame == nil {
				return nil, fmt.Errorf("entry %d: frame entry without frame", i)
			}
			if err := s.ApplyFrame(e.Frame); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			frames++
		case KindTick:
			s.Tick(e.Time)
		case KindReset:
			s.Reset(e.Time)
		case KindEncounter:
		default:
			logger.Warn("skipping unknown replay entry", "index", i, "kind", e.Kind)
		}
		collect()
	}
	if n := len(p.Entries); n > 0 {
		s.Close(p.Entries[n-1].Time)
	}
	collect()

	logger.Info("replay finished", "entries", len(p.Entries), "frames", frames, "encounters", len(results))
	return results, nil
}
