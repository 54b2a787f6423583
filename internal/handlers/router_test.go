package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quantum-theater/pkg/board"
	"github.com/jwebster45206/quantum-theater/pkg/narrative"
)

type fakeBoard struct{ snap board.Snapshot }

func (f fakeBoard) Latest() board.Snapshot { return f.snap }

type fakeQueue struct {
	depth int
	err   error
}

func (f fakeQueue) Depth(context.Context) (int, error) { return f.depth, f.err }

func testRouter(q fakeQueue) http.Handler {
	st := narrative.DefaultState()
	st.Act = narrative.Revelation
	st.Flags = []string{"relic_raised", "truth_glimpsed"}
	st.LastSeq = 9
	return NewRouter(Sources{
		Narrative: fakeNarrative{state: st, unsynced: true},
		Board:     fakeBoard{snap: board.NewSnapshot(map[string]int{"altar": 79}, 120, time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC))},
		Queue:     q,
	}, testLogger)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestRouter_Narrative(t *testing.T) {
	rr := get(t, testRouter(fakeQueue{}), "/v1/narrative")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp NarrativeResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, narrative.Revelation, resp.State.Act)
	assert.Equal(t, "Revelation", resp.Title)
	assert.Equal(t, []string{"relic_raised", "truth_glimpsed"}, resp.State.Flags)
	assert.Equal(t, int64(9), resp.State.LastSeq)
	assert.True(t, resp.Unsynced)
}

func TestRouter_Board(t *testing.T) {
	rr := get(t, testRouter(fakeQueue{}), "/v1/board")
	require.Equal(t, http.StatusOK, rr.Code)

	var snap board.Snapshot
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&snap))
	id, ok := snap.Occupant("altar")
	assert.True(t, ok)
	assert.Equal(t, 79, id)
	assert.Equal(t, int64(120), snap.FrameIndex())
}

func TestRouter_Queue(t *testing.T) {
	rr := get(t, testRouter(fakeQueue{depth: 3}), "/v1/queue")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp QueueResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Depth)

	rr = get(t, testRouter(fakeQueue{err: errors.New("redis down")}), "/v1/queue")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, "queue unavailable", errResp.Error)
}

func TestRouter_ReadOnly(t *testing.T) {
	h := testRouter(fakeQueue{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/narrative", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/gamestate").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
}

type panicBoard struct{}

func (panicBoard) Latest() board.Snapshot { panic("snapshot unavailable") }

func TestRouter_RecoversFromPanics(t *testing.T) {
	h := NewRouter(Sources{
		Narrative: fakeNarrative{state: narrative.DefaultState()},
		Board:     panicBoard{},
		Queue:     fakeQueue{},
	}, testLogger)

	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/v1/board").Code)
}
