package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quantum-theater/pkg/narrative"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelError, // Reduce noise in tests
}))

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeNarrative struct {
	state    narrative.NarrativeState
	unsynced bool
}

func (f fakeNarrative) State() narrative.NarrativeState { return f.state }
func (f fakeNarrative) Unsynced() bool                   { return f.unsynced }

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name            string
		redis           Pinger
		unsynced        bool
		expectedStatus  int
		expectedHealth  string
		expectedQueue   string
		expectedNarrate string
	}{
		{
			name:            "redis healthy",
			redis:           fakePinger{},
			expectedStatus:  http.StatusOK,
			expectedHealth:  "healthy",
			expectedQueue:   "healthy",
			expectedNarrate: "synced",
		},
		{
			name:            "redis down",
			redis:           fakePinger{err: errors.New("connection refused")},
			expectedStatus:  http.StatusServiceUnavailable,
			expectedHealth:  "degraded",
			expectedQueue:   "unhealthy",
			expectedNarrate: "synced",
		},
		{
			name:            "in-process queue with unsynced state",
			unsynced:        true,
			expectedStatus:  http.StatusOK,
			expectedHealth:  "healthy",
			expectedQueue:   "memory",
			expectedNarrate: "unsynced",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.redis, fakeNarrative{state: narrative.DefaultState(), unsynced: tt.unsynced}, testLogger)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.expectedHealth, resp.Status)
			assert.Equal(t, "quantum-theater", resp.Service)
			assert.Equal(t, tt.expectedQueue, resp.Components["queue"])
			assert.Equal(t, tt.expectedNarrate, resp.Components["narrative_state"])
		})
	}
}
