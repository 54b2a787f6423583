package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quantum-theater/pkg/board"
	"github.com/jwebster45206/quantum-theater/pkg/narrative"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileStore_MissingFileIsDefault(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), quietLog())

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, narrative.DefaultState(), st)
}

func TestFileStore_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewFileStore(path, quietLog())
	ctx := context.Background()

	want := narrative.NarrativeState{
		Act:     narrative.Revelation,
		Flags:   []string{"relic_raised", "story_begun"},
		History: []string{"marker 79 placed in altar"},
		LastSeq: 12,
	}
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// No temp files are left beside the state file.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_SaveReplacesPreviousState(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), quietLog())
	ctx := context.Background()

	first := narrative.DefaultState()
	require.NoError(t, store.Save(ctx, first))

	second := narrative.DefaultState()
	second.Act = narrative.Investigation
	second.Flags = []string{"story_begun"}
	second.LastSeq = 1
	require.NoError(t, store.Save(ctx, second))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, narrative.Investigation, got.Act)
	assert.Equal(t, int64(1), got.LastSeq)
}

func TestFileStore_LoadNormalizesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"act":"investigation","flags":["b","a","b"]}`), 0o644))

	st, err := NewFileStore(path, quietLog()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, st.Flags)
	assert.NotNil(t, st.History)
}

func TestFileStore_Corrupt(t *testing.T) {
	tests := map[string]string{
		"not json":      `{"act":`,
		"unknown act":   `{"act":"epilogue","flags":[]}`,
		"negative seq":  `{"act":"intro","last_seq":-3}`,
		"wrong type":    `{"act":"intro","flags":"story_begun"}`,
		"empty content": ``,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := NewFileStore(path, quietLog()).Load(context.Background())
			assert.True(t, errors.Is(err, ErrCorruptState), "got %v", err)
		})
	}
}

func TestFileStore_RejectsInvalidState(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), quietLog())
	err := store.Save(context.Background(), narrative.NarrativeState{Act: "epilogue"})
	assert.Error(t, err)

	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStore_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// The parent "directory" is a regular file.
	store := NewFileStore(filepath.Join(blocker, "state.json"), quietLog())
	assert.Error(t, store.Save(context.Background(), narrative.DefaultState()))
}

func TestLoadCalibration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"grid": {"cols": 3, "rows": 3},
		"board": {"width": 300, "height": 300},
		"reference_markers": [0, 1, 2, 3]
	}`), 0o644))

	cal, err := LoadCalibration(path)
	require.NoError(t, err)
	assert.Len(t, cal.AllZones(), 9)

	_, err = LoadCalibration(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "calibration not found")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"zonez": []}`), 0o644))
	_, err = LoadCalibration(bad)
	assert.ErrorIs(t, err, board.ErrInvalidCalibration)
}

func TestLoadScript(t *testing.T) {
	table, err := LoadScript("")
	require.NoError(t, err)
	assert.Equal(t, "protagonist", table.Role(79))

	dir := t.TempDir()
	path := filepath.Join(dir, "script.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"roles": {"5": "hero"},
		"rules": [{"act": "intro", "on": "placed", "to": "investigation"}]
	}`), 0o644))
	table, err = LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, "hero", table.Role(5))

	require.NoError(t, os.WriteFile(path, []byte(`{"rules": [{"act": "resolution", "on": "placed", "to": "intro"}]}`), 0o644))
	_, err = LoadScript(path)
	assert.Error(t, err)

	_, err = LoadScript(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "not found")
}

func TestTranscriptStore_AppendListExport(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenTranscript(filepath.Join(dir, "transcript.db"), "session-a")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	at := time.Date(2026, 3, 14, 20, 15, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, TranscriptEntry{
		RequestID:   "req-1",
		Seq:         1,
		Event:       "marker 79 placed in altar",
		PreviousAct: narrative.Intro,
		Act:         narrative.Investigation,
		Text:        "A figure steps into the candlelight.",
		Timestamp:   at,
	}))
	require.NoError(t, store.Append(ctx, TranscriptEntry{
		RequestID:   "req-2",
		Seq:         2,
		Event:       "marker 79 removed from altar",
		PreviousAct: narrative.Investigation,
		Act:         narrative.Investigation,
		Text:        narrative.FallbackNarration,
		Fallback:    true,
		AudioPath:   "audio_outputs/narration_req-2.mp3",
		Timestamp:   at.Add(time.Minute),
	}))
	assert.Error(t, store.Append(ctx, TranscriptEntry{RequestID: "req-3"}), "empty text")

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0].RequestID)
	assert.Equal(t, narrative.Investigation, entries[0].Act)
	assert.Equal(t, at, entries[0].Timestamp)
	assert.True(t, entries[1].Fallback)
	assert.Equal(t, "audio_outputs/narration_req-2.mp3", entries[1].AudioPath)

	final := narrative.DefaultState()
	final.Act = narrative.Investigation
	out := filepath.Join(dir, "transcripts")
	path, err := store.Export(ctx, out, final, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "quantum_theater_session_20260314_211500.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		SessionInfo struct {
			SessionID  string                   `json:"session_id"`
			StartTime  time.Time                `json:"start_time"`
			FinalState narrative.NarrativeState `json:"final_state"`
		} `json:"session_info"`
		Transcript []TranscriptEntry `json:"transcript"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "session-a", doc.SessionInfo.SessionID)
	assert.Equal(t, at, doc.SessionInfo.StartTime)
	assert.Equal(t, narrative.Investigation, doc.SessionInfo.FinalState.Act)
	assert.Len(t, doc.Transcript, 2)
}

func TestTranscriptStore_SessionsAreSeparate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.db")
	ctx := context.Background()

	first, err := OpenTranscript(path, "first")
	require.NoError(t, err)
	require.NoError(t, first.Append(ctx, TranscriptEntry{RequestID: "a", Seq: 1, Text: "one"}))
	require.NoError(t, first.Close())

	second, err := OpenTranscript(path, "second")
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	entries, err := second.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, second.Append(ctx, TranscriptEntry{RequestID: "b", Seq: 2, Text: "two"}))
	entries, err = second.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].RequestID)
}

func TestOpenTranscript_RequiresArguments(t *testing.T) {
	_, err := OpenTranscript("", "s")
	assert.Error(t, err)
	_, err = OpenTranscript(filepath.Join(t.TempDir(), "t.db"), "")
	assert.Error(t, err)
}
