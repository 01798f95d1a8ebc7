package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/bossmod/tracker/internal/config"
	"github.com/bossmod/tracker/internal/module"
	"github.com/bossmod/tracker/internal/replay"
	"github.com/bossmod/tracker/internal/session"
	"github.com/bossmod/tracker/internal/timeline"
)

// replayFiles runs each replay file through its own session and prints the
// encounters it produces.
func (a *app) replayFiles(paths []string, w io.Writer) error {
	if len(paths) == 0 {
		return fmt.Errorf("no replay files provided")
	}

	sessions := session.NewManager()
	defer sessions.CloseAll(time.Time{})

	for _, path := range paths {
		p, err := replay.Open(path, a.logger)
		if err != nil {
			return err
		}

		name := "replay:" + filepath.Base(path)
		err = sessions.Open(name, session.Dependencies{
			Registry:            a.registry,
			Logger:              a.logger,
			FinishCastsOnRemove: config.GetTrackerConfig().FinishCastsOnRemove,
		})
		if err != nil {
			return err
		}

		var results []session.Result
		err = sessions.With(name, func(s *session.Session) error {
			results, err = p.Run(context.Background(), s)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		recorded := replay.Traces(p.Entries)
		fmt.Fprintf(w, "%s: %d entries, %d encounters (%d recorded)\n", path, len(p.Entries), len(results), len(recorded))
		for i, r := range results {
			fmt.Fprintf(w, "encounter %d: %s (oid %d) %s\n", i+1, r.Trace.Name, r.Trace.OID, r.Trace.Duration().Round(time.Millisecond))
			if r.Err != nil {
				fmt.Fprintf(w, "  retrofit failed: %v\n", r.Err)
				continue
			}
			fmt.Fprintf(w, "  branches: %v\n", r.Branches)
			printTree(w, r.Tree)
		}
	}
	return nil
}

// printTrees prints the expected timeline of each definition file.
func (a *app) printTrees(paths []string, w io.Writer) error {
	if len(paths) == 0 {
		return fmt.Errorf("no definition files provided")
	}
	for _, path := range paths {
		def, err := module.LoadFile(path, a.conds)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s (oid %d)\n", def.Name(), def.OID())
		printTree(w, timeline.NewTree(def))
	}
	return nil
}

// validate loads every definition directory into a scratch registry.
func (a *app) validate(dirs []string, w io.Writer) error {
	if len(dirs) == 0 {
		dirs = []string{config.GetTrackerConfig().DefinitionsDir}
	}
	for _, dir := range dirs {
		reg := module.NewRegistry()
		n, err := module.LoadDir(dir, reg, a.conds)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		fmt.Fprintf(w, "%s: %d definitions OK %v\n", dir, n, reg.OIDs())
	}
	return nil
}

func printTree(w io.Writer, t *timeline.Tree) {
	fmt.Fprintf(w, "  total %s, %d branches\n", t.TotalMaxTime, t.TotalBranches)

	nodes := make([]*timeline.Node, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Phase != b.Phase {
			return a.Phase < b.Phase
		}
		if a.BranchID != b.BranchID {
			return a.BranchID < b.BranchID
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.State < b.State
	})

	phase := -1
	for _, n := range nodes {
		if n.Phase != phase {
			phase = n.Phase
			ph := t.Phases[phase]
			fmt.Fprintf(w, "  phase %d %q start %s max %s\n", phase, ph.Name, ph.StartTime, ph.MaxTime)
		}
		fmt.Fprintf(w, "    [%d] %d %-24s %8s at %8s\n", n.BranchID, n.State, n.Name, n.Duration, n.Time)
	}
}
