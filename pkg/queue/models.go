package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwebster45206/quantum-theater/pkg/board"
)

// Source identifies who put an entry on the event queue.
type Source string

const (
	// SourceSensing is the in-process sensing loop
	SourceSensing Source = "sensing"

	// SourceInject is the inject command, used without a camera
	SourceInject Source = "inject"
)

// Entry is one board event as stored on the queue.
type Entry struct {
	Event      board.BoardEvent `json:"event"`
	Source     Source           `json:"source"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// Encode serializes the entry for Redis storage.
func (e Entry) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode queue entry: %w", err)
	}
	return string(data), nil
}

// DecodeEntry parses an entry read from Redis.
func DecodeEntry(raw string) (Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, fmt.Errorf("decode queue entry: %w", err)
	}
	if err := e.Event.Validate(); err != nil {
		return Entry{}, fmt.Errorf("decode queue entry: %w", err)
	}
	return e, nil
}
