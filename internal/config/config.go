package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jwebster45206/quantum-theater/pkg/tracking"
)

// Config is read from the environment. Both the tracker and the theater use
// it; each ignores the keys it has no use for.
type Config struct {
	Port        string     `env:"PORT"        envDefault:"8080"`
	Environment string     `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelRaw string     `env:"LOG_LEVEL"   envDefault:"info"`
	LogLevel    slog.Level `env:"-"`

	RedisURL    string `env:"REDIS_URL"` // empty: in-process queue, no broadcast
	WorkerID    string `env:"WORKER_ID"`
	FrameSource string `env:"FRAME_SOURCE" envDefault:"-"` // "-" is stdin

	CalibrationFile     string `env:"CALIBRATION_FILE"      envDefault:"data/calibration.json"`
	NarrativeStateFile  string `env:"NARRATIVE_STATE_FILE"  envDefault:"data/narrative_state.json"`
	NarrativeScriptFile string `env:"NARRATIVE_SCRIPT_FILE"`
	TranscriptDB        string `env:"TRANSCRIPT_DB"         envDefault:"data/transcript.db"`
	TranscriptDir       string `env:"TRANSCRIPT_DIR"        envDefault:"transcripts"`
	AudioOutputDir      string `env:"AUDIO_OUTPUT_DIR"      envDefault:"audio_outputs"`

	LLMProvider     string        `env:"LLM_PROVIDER"      envDefault:"anthropic"`
	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	ModelName       string        `env:"MODEL_NAME"        envDefault:"claude-3-5-haiku-latest"`
	LLMTimeout      time.Duration `env:"LLM_TIMEOUT"       envDefault:"20s"`

	TTSProvider       string        `env:"TTS_PROVIDER"        envDefault:"none"`
	ElevenLabsAPIKey  string        `env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID string        `env:"ELEVENLABS_VOICE_ID" envDefault:"21m00Tcm4TlvDq8ikWAM"`
	TTSModel          string        `env:"TTS_MODEL"           envDefault:"eleven_monolingual_v1"`
	TTSTimeout        time.Duration `env:"TTS_TIMEOUT"         envDefault:"30s"`
	NarrationRating   string        `env:"NARRATION_RATING"    envDefault:"PG"`

	PresentFrames   int     `env:"TRACK_PRESENT_FRAMES"   envDefault:"5"`
	AbsentFrames    int     `env:"TRACK_ABSENT_FRAMES"    envDefault:"10"`
	GraceFrames     int     `env:"TRACK_GRACE_FRAMES"     envDefault:"90"`
	HistorySize     int     `env:"TRACK_HISTORY"          envDefault:"8"`
	Smoothing       string  `env:"TRACK_SMOOTHING"        envDefault:"ema"`
	SmoothingAlpha  float64 `env:"TRACK_SMOOTHING_ALPHA"  envDefault:"0.5"`
	ConfidenceFloor float64 `env:"TRACK_CONFIDENCE_FLOOR" envDefault:"0.5"`

	ZoneTolerance   float64       `env:"ZONE_TOLERANCE"`   // overrides the calibration file when set
	ReferenceMemory time.Duration `env:"REFERENCE_MEMORY" envDefault:"90s"`

	OTelEndpoint    string `env:"OTEL_ENDPOINT"`
	TrackerHeadless bool   `env:"TRACKER_HEADLESS"`
	TrackerLogFile  string `env:"TRACKER_LOG_FILE" envDefault:"tracker.log"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSensing is Load for processes that only run the sensing pipeline.
// Narrator and speech settings are parsed but not checked.
func LoadSensing() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := errors.Join(cfg.validateSensing()...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)
	return &cfg, nil
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	errs := c.validateSensing()
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	switch c.TTSProvider {
	case "elevenlabs":
		if c.ElevenLabsAPIKey == "" {
			errs = append(errs, errors.New("ELEVENLABS_API_KEY is required when TTS_PROVIDER=elevenlabs"))
		}
	case "none", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider))
	}
	if c.LLMTimeout <= 0 || c.TTSTimeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT and TTS_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateSensing() []error {
	var errs []error
	if c.ZoneTolerance < 0 {
		errs = append(errs, errors.New("ZONE_TOLERANCE must not be negative"))
	}
	if err := c.Tracking().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracking: %w", err))
	}
	return errs
}

// Tracking returns the temporal filter settings.
func (c *Config) Tracking() tracking.Config {
	return tracking.Config{
		PresentFrames:   c.PresentFrames,
		AbsentFrames:    c.AbsentFrames,
		GraceFrames:     c.GraceFrames,
		HistorySize:     c.HistorySize,
		Smoothing:       tracking.SmoothingMode(strings.ToLower(c.Smoothing)),
		Alpha:           c.SmoothingAlpha,
		ConfidenceFloor: c.ConfidenceFloor,
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
