package narrative

import (
	"slices"

	"github.com/jwebster45206/quantum-theater/pkg/board"
)

// RequestKind says what a NarrativeRequest should narrate.
type RequestKind string

const (
	RequestTransition RequestKind = "transition" // the story state changed
	RequestNoChange   RequestKind = "no_change"  // the event did not move the story
	RequestTerminal   RequestKind = "terminal"   // the story has ended
	RequestReplay     RequestKind = "replay"     // the event was already applied before a restart
)

// NarrativeRequest is everything the narrator needs to describe one board
// event. Every board event yields exactly one request.
type NarrativeRequest struct {
	ID          string           `json:"id,omitempty"`
	Kind        RequestKind      `json:"kind"`
	Event       board.BoardEvent `json:"event"`
	Role        string           `json:"role,omitempty"`
	PreviousAct Act              `json:"previous_act"`
	State       NarrativeState   `json:"state"`
}

// Changed reports whether the request follows a state change.
func (r NarrativeRequest) Changed() bool {
	return r.Kind == RequestTransition
}

// Transition computes the state that follows ev. It does not mutate state
// and depends on nothing but its arguments and the table.
func (t *Table) Transition(state NarrativeState, ev board.BoardEvent) (NarrativeState, NarrativeRequest) {
	req := NarrativeRequest{
		Event:       ev,
		Role:        t.Role(ev.MarkerID),
		PreviousAct: state.Act,
	}

	switch {
	case state.Act.Terminal():
		req.Kind = RequestTerminal
		req.State = state.Clone()
		return state.Clone(), req
	case !ev.Kind.Valid():
		req.Kind = RequestNoChange
		req.State = state.Clone()
		return state.Clone(), req
	}

	for _, r := range t.rules[ruleKey{act: state.Act, kind: ev.Kind}] {
		if !r.matches(state, ev, req.Role) {
			continue
		}
		next := r.apply(state)
		if next.sameStory(state) {
			break
		}
		next.History = append(next.History, ev.String())
		next.LastSeq = max(state.LastSeq, ev.Seq)
		req.Kind = RequestTransition
		req.State = next.Clone()
		return next, req
	}

	req.Kind = RequestNoChange
	req.State = state.Clone()
	return state.Clone(), req
}

func (r Rule) matches(state NarrativeState, ev board.BoardEvent, role string) bool {
	if r.Zone != "" && r.Zone != ev.TargetZone() {
		return false
	}
	if r.FromZone != "" && r.FromZone != ev.FromZone {
		return false
	}
	if r.Role != "" && r.Role != role {
		return false
	}
	for _, f := range r.Requires {
		if !state.HasFlag(f) {
			return false
		}
	}
	return !slices.ContainsFunc(r.Forbids, state.HasFlag)
}

func (r Rule) apply(state NarrativeState) NarrativeState {
	next := state.Clone()
	if r.To != "" {
		next.Act = r.To
	}
	for _, f := range r.Clear {
		next.clearFlag(f)
	}
	for _, f := range r.Set {
		next.setFlag(f)
	}
	return next
}
