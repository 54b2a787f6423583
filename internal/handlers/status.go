package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/quantum-theater/pkg/board"
	"github.com/jwebster45206/quantum-theater/pkg/narrative"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// NarrativeSource exposes the live narrative state.
type NarrativeSource interface {
	State() narrative.NarrativeState
	Unsynced() bool
}

// BoardSource exposes the latest board snapshot.
type BoardSource interface {
	Latest() board.Snapshot
}

// QueueSource reports how many events wait for narration.
type QueueSource interface {
	Depth(ctx context.Context) (int, error)
}

type NarrativeResponse struct {
	State    narrative.NarrativeState `json:"state"`
	Title    string                   `json:"title"`
	Unsynced bool                     `json:"unsynced"`
}

type QueueResponse struct {
	Depth int `json:"depth"`
}

// NarrativeHandler serves GET /v1/narrative.
type NarrativeHandler struct {
	source NarrativeSource
	logger *slog.Logger
}

func NewNarrativeHandler(source NarrativeSource, logger *slog.Logger) *NarrativeHandler {
	return &NarrativeHandler{source: source, logger: logger}
}

func (h *NarrativeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := h.source.State()
	writeJSON(w, http.StatusOK, NarrativeResponse{
		State:    st,
		Title:    st.Act.Title(),
		Unsynced: h.source.Unsynced(),
	}, h.logger)
}

// BoardHandler serves GET /v1/board.
type BoardHandler struct {
	source BoardSource
	logger *slog.Logger
}

func NewBoardHandler(source BoardSource, logger *slog.Logger) *BoardHandler {
	return &BoardHandler{source: source, logger: logger}
}

func (h *BoardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.source.Latest(), h.logger)
}

// QueueHandler serves GET /v1/queue.
type QueueHandler struct {
	source QueueSource
	logger *slog.Logger
}

func NewQueueHandler(source QueueSource, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{source: source, logger: logger}
}

func (h *QueueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	depth, err := h.source.Depth(ctx)
	if err != nil {
		h.logger.Warn("Failed to read queue depth", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "queue unavailable"}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, QueueResponse{Depth: depth}, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}
