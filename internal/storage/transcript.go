package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwebster45206/quantum-theater/pkg/narrative"
)

const transcriptSchema = `
CREATE TABLE IF NOT EXISTS narrations (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT    NOT NULL,
	request_id   TEXT    NOT NULL,
	seq          INTEGER NOT NULL,
	event        TEXT    NOT NULL,
	previous_act TEXT    NOT NULL,
	act          TEXT    NOT NULL,
	text         TEXT    NOT NULL,
	audio_path   TEXT    NOT NULL DEFAULT '',
	fallback     INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS narrations_session ON narrations (session_id, id);
`

// TranscriptEntry is one narrated event.
type TranscriptEntry struct {
	RequestID   string        `json:"request_id"`
	Seq         int64         `json:"seq"`
	Event       string        `json:"event"`
	PreviousAct narrative.Act `json:"previous_act"`
	Act         narrative.Act `json:"act"`
	Text        string        `json:"text"`
	AudioPath   string        `json:"audio_path,omitempty"`
	Fallback    bool          `json:"fallback"`
	Timestamp   time.Time     `json:"timestamp"`
}

// TranscriptStore records the narrations of one theater session in SQLite.
// Earlier sessions stay in the same database under their own session id.
type TranscriptStore struct {
	sqlDB     *sql.DB
	sessionID string
}

// OpenTranscript opens (creating if needed) the transcript database at path.
func OpenTranscript(path, sessionID string) (*TranscriptStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("transcript path is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(transcriptSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create transcript schema: %w", err)
	}
	return &TranscriptStore{sqlDB: sqlDB, sessionID: sessionID}, nil
}

// SessionID returns the session this store appends to.
func (s *TranscriptStore) SessionID() string {
	return s.sessionID
}

// Close releases the SQLite connection.
func (s *TranscriptStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Append records one narration.
func (s *TranscriptStore) Append(ctx context.Context, e TranscriptEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("narration text is required")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO narrations (
	session_id,
	request_id,
	seq,
	event,
	previous_act,
	act,
	text,
	audio_path,
	fallback,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		s.sessionID,
		e.RequestID,
		e.Seq,
		e.Event,
		string(e.PreviousAct),
		string(e.Act),
		e.Text,
		e.AudioPath,
		e.Fallback,
		e.Timestamp.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append narration: %w", err)
	}
	return nil
}

// List returns this session's narrations, oldest first.
func (s *TranscriptStore) List(ctx context.Context) ([]TranscriptEntry, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT request_id, seq, event, previous_act, act, text, audio_path, fallback, created_at
FROM narrations
WHERE session_id = ?
ORDER BY id ASC
`, s.sessionID)
	if err != nil {
		return nil, fmt.Errorf("list narrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]TranscriptEntry, 0)
	for rows.Next() {
		var (
			e              TranscriptEntry
			prevAct, act   string
			createdAtMilli int64
		)
		if err := rows.Scan(&e.RequestID, &e.Seq, &e.Event, &prevAct, &act, &e.Text, &e.AudioPath, &e.Fallback, &createdAtMilli); err != nil {
			return nil, fmt.Errorf("scan narration: %w", err)
		}
		e.PreviousAct = narrative.Act(prevAct)
		e.Act = narrative.Act(act)
		e.Timestamp = time.UnixMilli(createdAtMilli).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate narrations: %w", err)
	}
	return entries, nil
}

type sessionInfo struct {
	SessionID  string                   `json:"session_id"`
	StartTime  *time.Time               `json:"start_time"`
	EndTime    time.Time                `json:"end_time"`
	FinalState narrative.NarrativeState `json:"final_state"`
}

type sessionExport struct {
	SessionInfo sessionInfo       `json:"session_info"`
	Transcript  []TranscriptEntry `json:"transcript"`
}

// Export writes the session to dir as
// quantum_theater_session_<YYYYMMDD_HHMMSS>.json and returns the file path.
func (s *TranscriptStore) Export(ctx context.Context, dir string, final narrative.NarrativeState, now time.Time) (string, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	doc := sessionExport{
		SessionInfo: sessionInfo{
			SessionID:  s.sessionID,
			EndTime:    now.UTC(),
			FinalState: final,
		},
		Transcript: entries,
	}
	if len(entries) > 0 {
		start := entries[0].Timestamp
		doc.SessionInfo.StartTime = &start
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript directory: %w", err)
	}
	path := filepath.Join(dir, "quantum_theater_session_"+now.Format("20060102_150405")+".json")
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}
