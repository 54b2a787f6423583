package narrative

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quantum-theater/pkg/board"
	"github.com/jwebster45206/quantum-theater/pkg/chat"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeStore struct {
	mu       sync.Mutex
	failures int
	saved    []NarrativeState
	attempts int
}

func (f *fakeStore) Save(_ context.Context, s NarrativeState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	f.saved = append(f.saved, s.Clone())
	return nil
}

func withEvent(ev board.BoardEvent, seq int64) board.BoardEvent {
	ev.Seq = seq
	return ev
}

func stateAt(act Act, flags ...string) NarrativeState {
	s := DefaultState()
	s.Act = act
	s.Flags = append(s.Flags, flags...)
	return s.Normalize()
}

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, "protagonist", table.Role(79))
	assert.Equal(t, "antagonist", table.Role(88))
	assert.Equal(t, "", table.Role(7))
	assert.Len(t, table.Roles(), 6)
}

func TestTransition(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		name      string
		state     NarrativeState
		event     board.BoardEvent
		wantKind  RequestKind
		wantAct   Act
		wantFlags []string
	}{
		{
			name:      "first placement starts the story",
			state:     DefaultState(),
			event:     board.Placed("altar", 7),
			wantKind:  RequestTransition,
			wantAct:   Investigation,
			wantFlags: []string{"story_begun"},
		},
		{
			name:      "removal in intro changes nothing",
			state:     DefaultState(),
			event:     board.Removed("altar", 7),
			wantKind:  RequestNoChange,
			wantAct:   Intro,
			wantFlags: []string{},
		},
		{
			name:      "move to pedestal raises the relic",
			state:     stateAt(Investigation, "story_begun"),
			event:     board.Moved(7, "altar", "pedestal"),
			wantKind:  RequestTransition,
			wantAct:   Investigation,
			wantFlags: []string{"relic_raised", "story_begun"},
		},
		{
			name:      "move elsewhere changes nothing",
			state:     stateAt(Investigation, "story_begun"),
			event:     board.Moved(7, "altar", "3"),
			wantKind:  RequestNoChange,
			wantAct:   Investigation,
			wantFlags: []string{"story_begun"},
		},
		{
			name:      "placement after the relic reveals the truth",
			state:     stateAt(Investigation, "relic_raised", "story_begun"),
			event:     board.Placed("1", 62),
			wantKind:  RequestTransition,
			wantAct:   Revelation,
			wantFlags: []string{"relic_raised", "story_begun", "truth_glimpsed"},
		},
		{
			name:      "antagonist placement is matched by role",
			state:     stateAt(Investigation, "story_begun"),
			event:     board.Placed("1", 88),
			wantKind:  RequestTransition,
			wantAct:   Investigation,
			wantFlags: []string{"antagonist_revealed", "story_begun"},
		},
		{
			name:      "forbidden flag falls through to the next rule",
			state:     stateAt(Investigation, "antagonist_revealed", "story_begun"),
			event:     board.Placed("1", 88),
			wantKind:  RequestTransition,
			wantAct:   Investigation,
			wantFlags: []string{"antagonist_revealed", "clue_found", "story_begun"},
		},
		{
			name:      "rule that sets an existing flag is no change",
			state:     stateAt(Investigation, "clue_found", "story_begun"),
			event:     board.Placed("2", 5),
			wantKind:  RequestNoChange,
			wantAct:   Investigation,
			wantFlags: []string{"clue_found", "story_begun"},
		},
		{
			name:      "clear and set in one rule",
			state:     stateAt(Investigation, "clue_found", "story_begun"),
			event:     board.Removed("2", 5),
			wantKind:  RequestTransition,
			wantAct:   Investigation,
			wantFlags: []string{"clue_lost", "story_begun"},
		},
		{
			name:      "removal in revelation resolves the story",
			state:     stateAt(Revelation, "truth_glimpsed"),
			event:     board.Removed("altar", 7),
			wantKind:  RequestTransition,
			wantAct:   Resolution,
			wantFlags: []string{"collapsed", "truth_glimpsed"},
		},
		{
			name:      "terminal act ignores events",
			state:     stateAt(Resolution, "collapsed"),
			event:     board.Placed("altar", 7),
			wantKind:  RequestTerminal,
			wantAct:   Resolution,
			wantFlags: []string{"collapsed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.state.Clone()
			next, req := table.Transition(tt.state, tt.event)

			assert.Equal(t, tt.wantKind, req.Kind)
			assert.Equal(t, tt.wantAct, next.Act)
			assert.Equal(t, tt.wantFlags, next.Flags)
			assert.Equal(t, next, req.State)
			assert.Equal(t, tt.event, req.Event)
			assert.Equal(t, before.Act, req.PreviousAct)
			assert.Equal(t, before, tt.state, "input state was mutated")

			if req.Changed() {
				assert.Equal(t, append(before.History, tt.event.String()), next.History)
			} else {
				assert.Equal(t, before, next)
			}
		})
	}
}

func TestTransition_IsDeterministic(t *testing.T) {
	table := DefaultTable()
	state := stateAt(Investigation, "story_begun")
	events := []board.BoardEvent{
		board.Placed("altar", 7),
		board.Removed("altar", 7),
		board.Moved(7, "altar", "pedestal"),
		board.Placed("1", 88),
	}
	for _, ev := range events {
		first, firstReq := table.Transition(state, ev)
		for i := 0; i < 5; i++ {
			again, againReq := table.Transition(state, ev)
			require.Equal(t, first, again)
			require.Equal(t, firstReq, againReq)
		}
	}
}

func TestTransition_RecordsSequence(t *testing.T) {
	table := DefaultTable()
	next, _ := table.Transition(DefaultState(), withEvent(board.Placed("altar", 7), 12))
	assert.Equal(t, int64(12), next.LastSeq)

	same, _ := table.Transition(next, withEvent(board.Placed("altar", 8), 13))
	assert.Equal(t, int64(13), same.LastSeq)
}

func TestScript_Validate(t *testing.T) {
	tests := map[string]Rule{
		"terminal act":           {Act: Resolution, On: board.PiecePlaced, Set: []string{"x"}},
		"unknown act":            {Act: "prologue", On: board.PiecePlaced, Set: []string{"x"}},
		"unknown kind":           {Act: Intro, On: "teleported", Set: []string{"x"}},
		"unknown target":         {Act: Intro, On: board.PiecePlaced, To: "epilogue"},
		"from_zone on placement": {Act: Intro, On: board.PiecePlaced, FromZone: "altar", Set: []string{"x"}},
		"no effect":              {Act: Intro, On: board.PiecePlaced},
	}
	for name, rule := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(Script{Rules: []Rule{rule}})
			assert.Error(t, err)
		})
	}

	_, err := Compile(Script{Roles: map[string]string{"hero": "protagonist"}})
	assert.Error(t, err)

	_, err = ParseScript([]byte(`{"rules":[],"acts":[]}`))
	assert.Error(t, err)
}

func TestScript_FirstMatchWins(t *testing.T) {
	table, err := Compile(Script{Rules: []Rule{
		{Act: Intro, On: board.PiecePlaced, Zone: "altar", To: Revelation},
		{Act: Intro, On: board.PiecePlaced, To: Investigation},
	}})
	require.NoError(t, err)

	next, _ := table.Transition(DefaultState(), board.Placed("altar", 1))
	assert.Equal(t, Revelation, next.Act)
	next, _ = table.Transition(DefaultState(), board.Placed("door", 1))
	assert.Equal(t, Investigation, next.Act)
}

func TestMachine_PersistsTransitions(t *testing.T) {
	store := &fakeStore{}
	m := NewMachine(DefaultTable(), DefaultState(), store, quietLog)

	req := m.Apply(context.Background(), withEvent(board.Placed("altar", 7), 1))
	assert.Equal(t, RequestTransition, req.Kind)
	require.Len(t, store.saved, 1)
	assert.Equal(t, Investigation, store.saved[0].Act)
	assert.Equal(t, int64(1), store.saved[0].LastSeq)

	// No change, no write.
	req = m.Apply(context.Background(), withEvent(board.Moved(7, "altar", "3"), 2))
	assert.Equal(t, RequestNoChange, req.Kind)
	assert.Len(t, store.saved, 1)
	assert.False(t, m.Unsynced())
}

func TestMachine_ReplayDoesNotTransition(t *testing.T) {
	store := &fakeStore{}
	start := stateAt(Investigation, "story_begun")
	start.LastSeq = 5
	m := NewMachine(DefaultTable(), start, store, quietLog)

	req := m.Apply(context.Background(), withEvent(board.Placed("altar", 7), 5))
	assert.Equal(t, RequestReplay, req.Kind)
	assert.Equal(t, start, m.State())
	assert.Zero(t, store.attempts)
}

func TestMachine_TerminalNeverWrites(t *testing.T) {
	store := &fakeStore{}
	start := stateAt(Resolution, "collapsed")
	m := NewMachine(DefaultTable(), start, store, quietLog)

	for i, ev := range []board.BoardEvent{board.Placed("altar", 7), board.Removed("1", 2), board.Moved(3, "1", "2")} {
		req := m.Apply(context.Background(), withEvent(ev, int64(i+1)))
		assert.Equal(t, RequestTerminal, req.Kind)
	}
	assert.Equal(t, start, m.State())
	assert.Zero(t, store.attempts)
}

func TestMachine_SaveRetriedOnce(t *testing.T) {
	store := &fakeStore{failures: 1}
	m := NewMachine(DefaultTable(), DefaultState(), store, quietLog)

	m.Apply(context.Background(), withEvent(board.Placed("altar", 7), 1))
	assert.Equal(t, 2, store.attempts)
	assert.Len(t, store.saved, 1)
	assert.False(t, m.Unsynced())
}

func TestMachine_UnsyncedUntilNextSuccessfulSave(t *testing.T) {
	store := &fakeStore{failures: 2}
	m := NewMachine(DefaultTable(), DefaultState(), store, quietLog)

	req := m.Apply(context.Background(), withEvent(board.Placed("altar", 7), 1))
	assert.Equal(t, RequestTransition, req.Kind)
	assert.True(t, m.Unsynced())
	assert.Equal(t, Investigation, m.State().Act, "in-memory state keeps serving")
	assert.Empty(t, store.saved)

	// The next event writes again even though it changes nothing.
	m.Apply(context.Background(), withEvent(board.Moved(7, "altar", "3"), 2))
	assert.False(t, m.Unsynced())
	require.Len(t, store.saved, 1)
	assert.Equal(t, Investigation, store.saved[0].Act)
}

func TestPromptBuilder(t *testing.T) {
	table := DefaultTable()
	_, req := table.Transition(DefaultState(), board.Placed("altar", 79))

	msgs := NewPromptBuilder(req).Build()
	require.Len(t, msgs, 3)
	assert.Equal(t, chat.ChatRoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "Current act: Investigation.")
	assert.Contains(t, msgs[1].Content, "story begun")
	assert.Equal(t, chat.ChatRoleUser, msgs[2].Role)
	assert.Contains(t, msgs[2].Content, "The protagonist appears at the altar.")
	assert.Contains(t, msgs[2].Content, "leaves the Intro act and enters the Investigation act")

	_, req = table.Transition(stateAt(Resolution), board.Removed("altar", 7))
	msgs = NewPromptBuilder(req).Build()
	assert.True(t, strings.Contains(msgs[2].Content, "already ended"))
}

func TestPromptBuilder_HistoryLimit(t *testing.T) {
	st := stateAt(Investigation)
	for i := 0; i < 10; i++ {
		st.History = append(st.History, board.Placed("altar", i).String())
	}
	msgs := NewPromptBuilder(NarrativeRequest{Kind: RequestNoChange, State: st}).WithHistoryLimit(2).Build()
	assert.Equal(t, 2, strings.Count(msgs[1].Content, "\n- "))
	assert.Contains(t, msgs[1].Content, "marker 9 placed in altar")
}
