package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quantum-theater/internal/storage"
	"github.com/jwebster45206/quantum-theater/pkg/narrative"
)

type captureTranscript struct {
	entries []storage.TranscriptEntry
}

func (c *captureTranscript) Append(_ context.Context, e storage.TranscriptEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

func TestConsoleTranscript_PrintsAndDelegates(t *testing.T) {
	var out bytes.Buffer
	next := &captureTranscript{}
	ct := newConsoleTranscript(next, &out)

	entry := storage.TranscriptEntry{
		Seq:         4,
		Event:       "marker 79 placed in altar",
		PreviousAct: narrative.Intro,
		Act:         narrative.Investigation,
		Text:        strings.Repeat("The candles gutter as a stranger arrives. ", 4),
	}
	require.NoError(t, ct.Append(context.Background(), entry))

	require.Len(t, next.entries, 1)
	printed := out.String()
	assert.Contains(t, printed, "#4 marker 79 placed in altar")
	assert.Contains(t, printed, "Intro → Investigation")
	assert.Greater(t, strings.Count(printed, "\n"), 4, "long narration is wrapped")
}

func TestFormatEntry_SameActHasNoHeaderTransition(t *testing.T) {
	got := formatEntry(storage.TranscriptEntry{
		Seq:         2,
		Event:       "marker 7 removed from gate",
		PreviousAct: narrative.Revelation,
		Act:         narrative.Revelation,
		Text:        "Nothing stirs.",
	})
	assert.NotContains(t, got, "→")
	assert.Contains(t, got, "Nothing stirs.")
}
