package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jwebster45206/quantum-theater/internal/sensing"
	"github.com/jwebster45206/quantum-theater/pkg/board"
	"github.com/jwebster45206/quantum-theater/pkg/tracking"
)

// eventLogLimit caps the lines kept in the event pane.
const eventLogLimit = 200

// TrackerUI is the BubbleTea model for the live sensing dashboard.
// https://github.com/charmbracelet/bubbletea
type TrackerUI struct {
	zones    []board.Zone
	copyFunc func(string) error

	eventViewport viewport.Model
	eventLog      []string
	ready         bool
	width         int
	height        int

	cycle   sensing.Cycle
	frames  int
	skipped int
	done    bool
	status  string
	err     error
}

type cycleMsg sensing.Cycle

type sourceDoneMsg struct {
	err error
}

var (
	boardPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(2).
			PaddingRight(2)

	eventPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	occupiedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// NewTrackerUI builds the dashboard for the given zones. copyFunc receives
// the snapshot JSON when the user presses y.
func NewTrackerUI(zones []board.Zone, copyFunc func(string) error) TrackerUI {
	vp := viewport.New(40, 20)
	vp.MouseWheelEnabled = true
	return TrackerUI{
		zones:         zones,
		copyFunc:      copyFunc,
		eventViewport: vp,
		cycle:         sensing.Cycle{Snapshot: board.NewSnapshot(nil, 0, time.Time{})},
	}
}

func (m TrackerUI) Init() tea.Cmd {
	return nil
}

func (m TrackerUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		boardWidth := m.boardWidth()
		m.eventViewport.Width = max(m.width-boardWidth-4, 20)
		m.eventViewport.Height = max(m.height-4, 5)
		m.ready = true
		m.refreshEvents()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "y":
			m.status, m.err = m.copySnapshot()
			return m, nil
		case "c":
			m.eventLog = nil
			m.refreshEvents()
			return m, nil
		}

	case cycleMsg:
		c := sensing.Cycle(msg)
		m.frames++
		if c.Err != nil {
			m.skipped++
			m.appendEvent(errorStyle.Render(fmt.Sprintf("frame %d skipped: %v", c.FrameIndex, c.Err)))
			// The board still shows the last good frame.
			c.Snapshot = m.cycle.Snapshot
			c.Tracks = m.cycle.Tracks
		}
		for _, ev := range c.Events {
			m.appendEvent(formatEvent(ev))
		}
		m.cycle = c
		m.refreshEvents()
		return m, nil

	case sourceDoneMsg:
		m.done = true
		m.err = msg.err
		return m, nil
	}

	m.eventViewport, cmd = m.eventViewport.Update(msg)
	return m, cmd
}

func (m TrackerUI) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	boardPanel := boardPanelStyle.Width(m.boardWidth()).Render(m.renderBoard())
	eventPanel := eventPanelStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("EVENTS"),
			"",
			m.eventViewport.View(),
		),
	)
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, boardPanel, eventPanel),
		m.renderFooter(),
	)
}

func (m TrackerUI) boardWidth() int {
	return max(m.width*2/5, 30)
}

func (m TrackerUI) renderBoard() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("BOARD") + "\n\n")

	snap := m.cycle.Snapshot
	for _, z := range m.zones {
		if id, ok := snap.Occupant(z.ID); ok {
			sb.WriteString(occupiedStyle.Render(fmt.Sprintf("● %-14s marker %d", z.ID, id)) + "\n")
		} else {
			sb.WriteString(emptyStyle.Render(fmt.Sprintf("○ %s", z.ID)) + "\n")
		}
	}
	for _, c := range snap.Conflicts() {
		sb.WriteString(warnStyle.Render(fmt.Sprintf("! %s: marker %d kept, %d ignored", c.Zone, c.Winner, c.Loser)) + "\n")
	}

	sb.WriteString("\n" + titleStyle.Render("MARKERS") + "\n\n")
	if len(m.cycle.Tracks) == 0 {
		sb.WriteString(emptyStyle.Render("none in view") + "\n")
	}
	for _, t := range m.cycle.Tracks {
		sb.WriteString(formatTrack(t) + "\n")
	}
	return sb.String()
}

func (m TrackerUI) renderFooter() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("frame %d", m.cycle.FrameIndex))
	parts = append(parts, fmt.Sprintf("%d processed", m.frames))
	if m.skipped > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("%d skipped", m.skipped)))
	}
	if m.cycle.Backlog > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("%d events waiting for queue", m.cycle.Backlog)))
	}
	if m.done {
		parts = append(parts, warnStyle.Render("source ended"))
	}
	line := strings.Join(parts, " · ")
	if m.err != nil {
		line += "  " + errorStyle.Render(m.err.Error())
	} else if m.status != "" {
		line += "  " + occupiedStyle.Render(m.status)
	}
	return "  " + line + "\n  " + helpStyle.Render("y: copy snapshot · c: clear events · q: quit")
}

func (m *TrackerUI) appendEvent(line string) {
	m.eventLog = append(m.eventLog, line)
	if over := len(m.eventLog) - eventLogLimit; over > 0 {
		m.eventLog = m.eventLog[over:]
	}
}

func (m *TrackerUI) refreshEvents() {
	if len(m.eventLog) == 0 {
		m.eventViewport.SetContent(emptyStyle.Render("waiting for pieces to move"))
		return
	}
	m.eventViewport.SetContent(strings.Join(m.eventLog, "\n"))
	m.eventViewport.GotoBottom()
}

func (m TrackerUI) copySnapshot() (string, error) {
	data, err := json.MarshalIndent(m.cycle.Snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := m.copyFunc(string(data)); err != nil {
		return "", fmt.Errorf("copy to clipboard: %w", err)
	}
	return "snapshot copied", nil
}

func formatEvent(ev board.BoardEvent) string {
	if ev.Seq > 0 {
		return fmt.Sprintf("#%-4d %s", ev.Seq, ev.String())
	}
	return "      " + ev.String()
}

func formatTrack(t tracking.Track) string {
	line := fmt.Sprintf("%-4d %-12s (%6.1f, %6.1f) %3.0f%%",
		t.ID, t.State, t.Pose.Position.X, t.Pose.Position.Y, t.Confidence*100)
	switch t.State {
	case tracking.Present:
		return occupiedStyle.Render(line)
	case tracking.Appearing, tracking.Disappearing:
		return warnStyle.Render(line)
	default:
		return emptyStyle.Render(line)
	}
}
