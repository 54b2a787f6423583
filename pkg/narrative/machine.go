package narrative

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jwebster45206/quantum-theater/pkg/board"
)

// Store is the durable mirror of the narrative state.
type Store interface {
	Save(ctx context.Context, state NarrativeState) error
}

// Machine owns the authoritative NarrativeState. Every state change is saved
// before Apply returns. If a save fails twice the machine keeps serving the
// new state from memory and reports itself unsynced until a later save
// succeeds.
type Machine struct {
	table *Table
	store Store
	log   *slog.Logger

	mu       sync.RWMutex
	state    NarrativeState
	unsynced bool
}

func NewMachine(table *Table, initial NarrativeState, store Store, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		table: table,
		store: store,
		log:   log,
		state: initial.Normalize(),
	}
}

// Apply feeds one board event through the transition table and returns the
// request to narrate. Events whose seq is not newer than the last applied
// one were already applied before a restart; they do not transition again
// and are narrated from the current state.
func (m *Machine) Apply(ctx context.Context, ev board.BoardEvent) NarrativeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Seq > 0 && ev.Seq <= m.state.LastSeq {
		m.log.Info("replaying already applied event", "seq", ev.Seq, "last_seq", m.state.LastSeq)
		return NarrativeRequest{
			Kind:        RequestReplay,
			Event:       ev,
			Role:        m.table.Role(ev.MarkerID),
			PreviousAct: m.state.Act,
			State:       m.state.Clone(),
		}
	}

	next, req := m.table.Transition(m.state, ev)
	switch req.Kind {
	case RequestTransition:
		m.state = next
		m.log.Info("narrative transition",
			"seq", ev.Seq,
			"event", ev.String(),
			"from_act", req.PreviousAct,
			"act", next.Act,
			"flags", next.Flags)
		m.persist(ctx)
	case RequestTerminal:
		m.log.Info("story has ended, event ignored", "seq", ev.Seq, "event", ev.String())
		if m.unsynced {
			m.persist(ctx)
		}
	default:
		m.log.Debug("event did not change the story", "seq", ev.Seq, "event", ev.String(), "act", m.state.Act)
		if m.unsynced {
			m.persist(ctx)
		}
	}
	return req
}

// persist saves the current state, retrying once. Callers hold m.mu.
func (m *Machine) persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	err := m.store.Save(ctx, m.state)
	if err != nil {
		m.log.Warn("saving narrative state failed, retrying", "error", err)
		err = m.store.Save(ctx, m.state)
	}
	if err != nil {
		m.log.Error("narrative state unsynced", "error", err, "act", m.state.Act)
		m.unsynced = true
		return
	}
	if m.unsynced {
		m.log.Info("narrative state synced")
	}
	m.unsynced = false
}

// State returns a copy of the current state.
func (m *Machine) State() NarrativeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// Unsynced reports whether the in-memory state is ahead of the store.
func (m *Machine) Unsynced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unsynced
}

// Table returns the transition table the machine runs.
func (m *Machine) Table() *Table {
	return m.table
}
