package narrative

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jwebster45206/quantum-theater/pkg/board"
)

//go:embed default_script.json
var defaultScript []byte

// Rule is one row of the transition table. A rule applies when the story is
// in Act, the event kind is On, and every optional constraint holds. Zone
// matches the zone the event lands in (the destination for moves); FromZone
// only applies to moves.
type Rule struct {
	Act      Act             `json:"act"`
	On       board.EventKind `json:"on"`
	Zone     string          `json:"zone,omitempty"`
	FromZone string          `json:"from_zone,omitempty"`
	Role     string          `json:"role,omitempty"`
	Requires []string        `json:"requires,omitempty"`
	Forbids  []string        `json:"forbids,omitempty"`
	To       Act             `json:"to,omitempty"`
	Set      []string        `json:"set,omitempty"`
	Clear    []string        `json:"clear,omitempty"`
}

// Script is the narrative content: marker roles and the transition rules.
// Roles are keyed by marker id.
type Script struct {
	Roles map[string]string `json:"roles,omitempty"`
	Rules []Rule            `json:"rules"`
}

// ParseScript decodes a script document, rejecting unknown fields.
func ParseScript(data []byte) (Script, error) {
	var s Script
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Script{}, fmt.Errorf("decode script: %w", err)
	}
	return s, nil
}

// DefaultScript is the built-in story used when no script file is configured.
func DefaultScript() Script {
	s, err := ParseScript(defaultScript)
	if err != nil {
		panic(fmt.Sprintf("narrative: built-in script is invalid: %v", err))
	}
	return s
}

// Validate returns every problem in the script, joined.
func (s Script) Validate() error {
	var errs []error
	for key := range s.Roles {
		if _, err := strconv.Atoi(key); err != nil {
			errs = append(errs, fmt.Errorf("role key %q is not a marker id", key))
		}
	}
	for i, r := range s.Rules {
		where := fmt.Sprintf("rule %d", i)
		if !r.Act.Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown act %q", where, r.Act))
		} else if r.Act.Terminal() {
			errs = append(errs, fmt.Errorf("%s: act %q is terminal and takes no rules", where, r.Act))
		}
		if !r.On.Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown event kind %q", where, r.On))
		}
		if r.To != "" && !r.To.Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown target act %q", where, r.To))
		}
		if r.FromZone != "" && r.On != board.PieceMoved {
			errs = append(errs, fmt.Errorf("%s: from_zone only applies to moved events", where))
		}
		if r.To == "" && len(r.Set) == 0 && len(r.Clear) == 0 {
			errs = append(errs, fmt.Errorf("%s: rule changes nothing", where))
		}
	}
	return errors.Join(errs...)
}

type ruleKey struct {
	act  Act
	kind board.EventKind
}

// Table is a compiled, read-only Script.
type Table struct {
	rules map[ruleKey][]Rule
	roles map[int]string
}

// Compile validates the script and indexes its rules by (act, event kind),
// preserving file order within each key.
func Compile(s Script) (*Table, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	t := &Table{
		rules: make(map[ruleKey][]Rule),
		roles: make(map[int]string, len(s.Roles)),
	}
	for key, role := range s.Roles {
		id, _ := strconv.Atoi(key)
		t.roles[id] = role
	}
	for _, r := range s.Rules {
		k := ruleKey{act: r.Act, kind: r.On}
		t.rules[k] = append(t.rules[k], r)
	}
	return t, nil
}

// DefaultTable compiles DefaultScript.
func DefaultTable() *Table {
	t, err := Compile(DefaultScript())
	if err != nil {
		panic(fmt.Sprintf("narrative: built-in script is invalid: %v", err))
	}
	return t
}

// Role returns the story role of a marker, or "" when it has none.
func (t *Table) Role(markerID int) string {
	return t.roles[markerID]
}

// Roles returns a copy of the marker role map.
func (t *Table) Roles() map[int]string {
	out := make(map[int]string, len(t.roles))
	for id, r := range t.roles {
		out[id] = r
	}
	return out
}
