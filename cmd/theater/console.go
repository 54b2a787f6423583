package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/quantum-theater/internal/storage"
	"github.com/jwebster45206/quantum-theater/internal/worker"
)

const consoleWidth = 72

var (
	actStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	eventStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	fallbackStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214"))
)

// consoleTranscript prints each narration to the operator's terminal before
// recording it.
type consoleTranscript struct {
	next worker.Transcript
	out  io.Writer
	mu   sync.Mutex
}

func newConsoleTranscript(next worker.Transcript, out io.Writer) *consoleTranscript {
	return &consoleTranscript{next: next, out: out}
}

func (c *consoleTranscript) Append(ctx context.Context, e storage.TranscriptEntry) error {
	c.mu.Lock()
	fmt.Fprintln(c.out, formatEntry(e))
	c.mu.Unlock()
	return c.next.Append(ctx, e)
}

func formatEntry(e storage.TranscriptEntry) string {
	header := eventStyle.Render(fmt.Sprintf("#%d %s", e.Seq, e.Event))
	if e.PreviousAct != e.Act {
		header += "  " + actStyle.Render(fmt.Sprintf("%s → %s", e.PreviousAct.Title(), e.Act.Title()))
	}
	text := wordwrap.String(e.Text, consoleWidth)
	if e.Fallback {
		text = fallbackStyle.Render(text)
	}
	return "\n" + header + "\n" + text + "\n"
}
