package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevenLabsService_Synthesize(t *testing.T) {
	var got elevenLabsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("content-type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	svc := NewElevenLabsService("xi-key", "voice-1", "", quietLog).WithBaseURL(srv.URL)
	audio, err := svc.Synthesize(context.Background(), "The relic hums.")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), audio)
	assert.Equal(t, "The relic hums.", got.Text)
	assert.Equal(t, DefaultElevenLabsModel, got.ModelID)
}

func TestElevenLabsService_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := NewElevenLabsService("xi-key", "voice-1", "", quietLog).WithBaseURL(srv.URL)
	_, err := svc.Synthesize(context.Background(), "text")
	assert.ErrorContains(t, err, "401")
}

func TestMockTTS(t *testing.T) {
	m := NewMockTTS()
	audio, err := m.Synthesize(context.Background(), "one")
	require.NoError(t, err)
	assert.NotEmpty(t, audio)

	m.SetSynthesizeError(errors.New("no voice"))
	_, err = m.Synthesize(context.Background(), "two")
	assert.Error(t, err)
	assert.Equal(t, []string{"one", "two"}, m.Calls())
}
