package module

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bossmod/tracker/internal/statemachine"
	"github.com/bossmod/tracker/pkg/core"
)

type rawDefinition struct {
	OID    uint32     `yaml:"oid"`
	Name   string     `yaml:"name"`
	Phases []rawPhase `yaml:"phases"`
}

type rawPhase struct {
	Name    string     `yaml:"name"`
	Initial uint32     `yaml:"initial"`
	States  []rawState `yaml:"states"`
}

type rawState struct {
	ID         uint32   `yaml:"id"`
	Name       string   `yaml:"name"`
	Duration   float64  `yaml:"duration"` // seconds
	Next       uint32   `yaml:"next"`
	Successors []uint32 `yaml:"successors"`
	Complete   string   `yaml:"complete"`
	Condition  string   `yaml:"condition"`
	Entry      string   `yaml:"entry"`
}

// Parse builds a definition from YAML, resolving condition names with conds.
func Parse(data []byte, conds *Conditions) (*statemachine.Definition, error) {
	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	if raw.OID == 0 {
		return nil, fmt.Errorf("definition %q: missing oid", raw.Name)
	}

	phases := make([]statemachine.PhaseSpec, 0, len(raw.Phases))
	for _, rp := range raw.Phases {
		ps := statemachine.PhaseSpec{Name: rp.Name, Initial: core.StateID(rp.Initial)}
		for _, rs := range rp.States {
			s, err := buildState(rs, conds)
			if err != nil {
				return nil, fmt.Errorf("definition %q: phase %q: state %d: %w", raw.Name, rp.Name, rs.ID, err)
			}
			ps.States = append(ps.States, s)
		}
		phases = append(phases, ps)
	}

	return statemachine.NewDefinition(raw.OID, raw.Name, phases)
}

func buildState(rs rawState, conds *Conditions) (statemachine.State, error) {
	if rs.Duration < 0 || math.IsNaN(rs.Duration) || math.IsInf(rs.Duration, 0) {
		return statemachine.State{}, fmt.Errorf("invalid duration %v", rs.Duration)
	}
	mode, err := statemachine.ParseCompletionMode(rs.Complete)
	if err != nil {
		return statemachine.State{}, err
	}

	s := statemachine.State{
		ID:       core.StateID(rs.ID),
		Name:     rs.Name,
		Duration: time.Duration(rs.Duration * float64(time.Second)),
		Next:     core.StateID(rs.Next),
		Complete: mode,
	}
	for _, id := range rs.Successors {
		s.Successors = append(s.Successors, core.StateID(id))
	}
	if rs.Condition != "" {
		if s.Condition, err = conds.Resolve(rs.Condition); err != nil {
			return statemachine.State{}, err
		}
	}
	if rs.Entry != "" {
		if s.Entry, err = conds.Resolve(rs.Entry); err != nil {
			return statemachine.State{}, err
		}
	}
	return s, nil
}

// LoadFile parses one definition file.
func LoadFile(path string, conds *Conditions) (*statemachine.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := Parse(data, conds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return def, nil
}

// LoadDir registers every definition file of dir in name order and returns
// how many were loaded. The first failing file aborts the load.
func LoadDir(dir string, reg *Registry, conds *Conditions) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isDefinitionFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for i, name := range names {
		def, err := LoadFile(filepath.Join(dir, name), conds)
		if err != nil {
			return i, err
		}
		if err := reg.Register(def); err != nil {
			return i, fmt.Errorf("%s: %w", name, err)
		}
	}
	return len(names), nil
}

func isDefinitionFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
