package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// TTSService turns narration text into playable audio.
type TTSService interface {
	// Synthesize returns encoded audio (mp3) for text.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

	DefaultElevenLabsModel = "eleven_monolingual_v1"
)

// ElevenLabsService implements TTSService against the ElevenLabs API.
type ElevenLabsService struct {
	apiKey     string
	voiceID    string
	modelID    string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ TTSService = (*ElevenLabsService)(nil)

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

func NewElevenLabsService(apiKey, voiceID, modelID string, logger *slog.Logger) *ElevenLabsService {
	if modelID == "" {
		modelID = DefaultElevenLabsModel
	}
	return &ElevenLabsService{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: modelID,
		baseURL: elevenLabsBaseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL points the client at another endpoint, e.g. a test server.
func (e *ElevenLabsService) WithBaseURL(url string) *ElevenLabsService {
	e.baseURL = url
	return e
}

func (e *ElevenLabsService) Synthesize(ctx context.Context, text string) ([]byte, error) {
	reqBody, err := json.Marshal(elevenLabsRequest{
		Text:          text,
		ModelID:       e.modelID,
		VoiceSettings: elevenLabsVoiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", e.baseURL, e.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "audio/mpeg")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty audio response")
	}

	e.logger.Debug("speech synthesized", "voice_id", e.voiceID, "bytes", len(body))
	return body, nil
}

// MockTTS is a TTSService for tests. By default it returns a few fake bytes.
type MockTTS struct {
	SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

	SynthesizeCalls []string

	mu sync.Mutex
}

var _ TTSService = (*MockTTS)(nil)

func NewMockTTS() *MockTTS {
	return &MockTTS{SynthesizeCalls: make([]string, 0)}
}

func (m *MockTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	m.mu.Lock()
	m.SynthesizeCalls = append(m.SynthesizeCalls, text)
	fn := m.SynthesizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return []byte("ID3mock"), nil
}

// SetSynthesizeError sets up the mock to fail every call.
func (m *MockTTS) SetSynthesizeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SynthesizeFunc = func(ctx context.Context, text string) ([]byte, error) {
		return nil, err
	}
}

// Calls returns a copy of the texts passed to Synthesize.
func (m *MockTTS) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.SynthesizeCalls))
	copy(out, m.SynthesizeCalls)
	return out
}
