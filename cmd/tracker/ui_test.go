package main

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quantum-theater/internal/sensing"
	"github.com/jwebster45206/quantum-theater/pkg/board"
	"github.com/jwebster45206/quantum-theater/pkg/vision"
)

func testZones() []board.Zone {
	return []board.Zone{
		{ID: "gate", Center: &vision.Point{X: 0, Y: 0}, Radius: 5},
		{ID: "tower", Center: &vision.Point{X: 50, Y: 0}, Radius: 5},
	}
}

func sized(t *testing.T, m TrackerUI) TrackerUI {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(TrackerUI)
}

func send(t *testing.T, m TrackerUI, msg tea.Msg) (TrackerUI, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(TrackerUI), cmd
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTrackerUI_ShowsCycle(t *testing.T) {
	m := sized(t, NewTrackerUI(testZones(), nil))
	assert.Contains(t, m.View(), "waiting for pieces to move")

	ev := board.Placed("gate", 7)
	ev.Seq = 3
	m, _ = send(t, m, cycleMsg(sensing.Cycle{
		FrameIndex: 12,
		Snapshot:   board.NewSnapshot(map[string]int{"gate": 7}, 12, time.Now()),
		Events:     []board.BoardEvent{ev},
		Backlog:    2,
	}))

	view := m.View()
	assert.Contains(t, view, "marker 7 placed in gate")
	assert.Contains(t, view, "#3")
	assert.Contains(t, view, "frame 12")
	assert.Contains(t, view, "2 events waiting for queue")
	assert.Contains(t, view, "tower")
}

func TestTrackerUI_SkippedFrameKeepsBoard(t *testing.T) {
	m := sized(t, NewTrackerUI(testZones(), nil))
	m, _ = send(t, m, cycleMsg(sensing.Cycle{
		FrameIndex: 1,
		Snapshot:   board.NewSnapshot(map[string]int{"tower": 4}, 1, time.Now()),
	}))
	m, _ = send(t, m, cycleMsg(sensing.Cycle{
		FrameIndex: 2,
		Err:        vision.ErrUnreadableFrame,
	}))

	id, ok := m.cycle.Snapshot.Occupant("tower")
	require.True(t, ok)
	assert.Equal(t, 4, id)
	assert.Equal(t, 1, m.skipped)
	assert.Contains(t, m.View(), "frame 2 skipped")
}

func TestTrackerUI_CopySnapshot(t *testing.T) {
	var copied string
	m := sized(t, NewTrackerUI(testZones(), func(s string) error {
		copied = s
		return nil
	}))
	m, _ = send(t, m, cycleMsg(sensing.Cycle{
		FrameIndex: 5,
		Snapshot:   board.NewSnapshot(map[string]int{"gate": 9}, 5, time.Now()),
	}))

	m, _ = send(t, m, key("y"))
	assert.Contains(t, copied, `"gate": 9`)
	assert.Contains(t, copied, `"frame": 5`)
	assert.Contains(t, m.View(), "snapshot copied")
}

func TestTrackerUI_CopyFailureIsShown(t *testing.T) {
	m := sized(t, NewTrackerUI(testZones(), func(string) error {
		return errors.New("no clipboard")
	}))

	m, _ = send(t, m, key("y"))
	assert.Contains(t, m.View(), "no clipboard")
}

func TestTrackerUI_ClearAndQuit(t *testing.T) {
	m := sized(t, NewTrackerUI(testZones(), nil))
	m, _ = send(t, m, cycleMsg(sensing.Cycle{
		FrameIndex: 1,
		Snapshot:   board.NewSnapshot(map[string]int{"gate": 1}, 1, time.Now()),
		Events:     []board.BoardEvent{board.Placed("gate", 1)},
	}))
	require.Len(t, m.eventLog, 1)

	m, _ = send(t, m, key("c"))
	assert.Empty(t, m.eventLog)

	_, cmd := send(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTrackerUI_SourceDone(t *testing.T) {
	m := sized(t, NewTrackerUI(testZones(), nil))
	m, _ = send(t, m, sourceDoneMsg{})
	assert.Contains(t, m.View(), "source ended")
}

func TestTrackerUI_EventLogIsBounded(t *testing.T) {
	m := sized(t, NewTrackerUI(testZones(), nil))
	for i := 0; i < eventLogLimit+10; i++ {
		m, _ = send(t, m, cycleMsg(sensing.Cycle{
			FrameIndex: int64(i + 1),
			Snapshot:   board.NewSnapshot(nil, int64(i+1), time.Now()),
			Events:     []board.BoardEvent{board.Removed("gate", i)},
		}))
	}
	assert.Len(t, m.eventLog, eventLogLimit)
}
