package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/quantum-theater/internal/config"
	"github.com/jwebster45206/quantum-theater/internal/handlers"
	"github.com/jwebster45206/quantum-theater/internal/logger"
	"github.com/jwebster45206/quantum-theater/internal/sensing"
	"github.com/jwebster45206/quantum-theater/internal/services"
	"github.com/jwebster45206/quantum-theater/internal/services/events"
	"github.com/jwebster45206/quantum-theater/internal/services/queue"
	"github.com/jwebster45206/quantum-theater/internal/storage"
	"github.com/jwebster45206/quantum-theater/internal/telemetry"
	"github.com/jwebster45206/quantum-theater/internal/worker"
	"github.com/jwebster45206/quantum-theater/pkg/narrative"
	pq "github.com/jwebster45206/quantum-theater/pkg/queue"
	"github.com/jwebster45206/quantum-theater/pkg/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Quantum Theater",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"tts_provider", cfg.TTSProvider,
		"model_name", cfg.ModelName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "quantum-theater", cfg.OTelEndpoint)
	if err != nil {
		log.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("Error flushing traces", "error", err)
		}
	}()

	// Calibration, script and saved state are the startup errors worth
	// dying for.
	cal, err := storage.LoadCalibration(cfg.CalibrationFile)
	if err != nil {
		log.Error("Failed to load calibration", "error", err)
		os.Exit(1)
	}
	table, err := storage.LoadScript(cfg.NarrativeScriptFile)
	if err != nil {
		log.Error("Failed to load narrative script", "error", err)
		os.Exit(1)
	}
	stateStore := storage.NewFileStore(cfg.NarrativeStateFile, log)
	initial, err := stateStore.Load(ctx)
	if err != nil {
		log.Error("Failed to load narrative state", "error", err)
		os.Exit(1)
	}
	machine := narrative.NewMachine(table, initial, stateStore, log)

	sessionID := uuid.NewString()
	transcript, err := storage.OpenTranscript(cfg.TranscriptDB, sessionID)
	if err != nil {
		log.Error("Failed to open transcript", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := transcript.Close(); err != nil {
			log.Error("Error closing transcript", "error", err)
		}
	}()

	// Event queue: Redis when configured, otherwise in process.
	var (
		eventQueue queue.EventQueue
		publisher  worker.Publisher
		redisPing  handlers.Pinger
	)
	if cfg.RedisURL != "" {
		redisService, err := services.NewRedisService(cfg.RedisURL, log)
		if err != nil {
			log.Error("Failed to create Redis client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisService.Close(); err != nil {
				log.Error("Error closing Redis connection", "error", err)
			}
		}()
		if err := redisService.WaitForConnection(ctx); err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		client := queue.WrapClient(redisService.GetClient(), log)
		eventQueue = queue.NewRedisEventQueue(client, pq.SourceSensing, log)
		publisher = events.NewBroadcaster(redisService.GetClient(), log)
		redisPing = redisService
	} else {
		memQueue := queue.NewMemoryEventQueue()
		defer memQueue.Close()
		eventQueue = memQueue
		log.Info("REDIS_URL not set, using in-process event queue")
	}

	llmService, err := newLLM(cfg, log)
	if err != nil {
		log.Error("Failed to create LLM service", "error", err)
		os.Exit(1)
	}
	initCtx, initCancel := context.WithTimeout(ctx, 2*time.Minute)
	if err := llmService.InitModel(initCtx, cfg.ModelName); err != nil {
		initCancel()
		log.Error("Failed to initialize LLM model", "error", err, "model", cfg.ModelName)
		os.Exit(1)
	}
	initCancel()

	pipeline, err := sensing.NewPipeline(cal, sensing.Options{
		Tracking:        cfg.Tracking(),
		Tolerance:       cfg.ZoneTolerance,
		ReferenceMemory: cfg.ReferenceMemory,
	}, log)
	if err != nil {
		log.Error("Failed to build sensing pipeline", "error", err)
		os.Exit(1)
	}
	frames, closeFrames, err := openFrameSource(cfg.FrameSource)
	if err != nil {
		log.Error("Failed to open frame source", "error", err, "source", cfg.FrameSource)
		os.Exit(1)
	}
	defer closeFrames()
	loop := sensing.NewLoop(frames, pipeline, eventQueue, log)

	w := worker.New(worker.Deps{
		Queue:      eventQueue,
		Machine:    machine,
		LLM:        llmService,
		TTS:        newTTS(cfg, log),
		Transcript: newConsoleTranscript(transcript, os.Stdout),
		Publisher:  publisher,
	}, worker.Options{
		WorkerID:   cfg.WorkerID,
		LLMTimeout: cfg.LLMTimeout,
		TTSTimeout: cfg.TTSTimeout,
		AudioDir:   cfg.AudioOutputDir,
		Rating:     cfg.NarrationRating,
	}, log)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handlers.NewRouter(handlers.Sources{
			Redis:     redisPing,
			Narrative: machine,
			Board:     loop,
			Queue:     eventQueue,
		}, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// The queue is recovered and seeded before sensing enqueues anything.
	if err := w.Prepare(ctx); err != nil {
		log.Error("Failed to prepare event queue", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil {
			log.Error("Sensing loop stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := w.Start(ctx); err != nil {
			log.Error("Worker error", "error", err)
			stop()
		}
	}()
	go func() {
		log.Info("Status API starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Status API failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Quantum Theater is shutting down...")
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Status API forced to shutdown", "error", err)
	}
	wg.Wait()

	path, err := transcript.Export(shutdownCtx, cfg.TranscriptDir, machine.State(), time.Now())
	if err != nil {
		log.Error("Failed to export transcript", "error", err)
	} else {
		log.Info("Session transcript saved", "path", path, "session_id", sessionID)
	}
	if machine.Unsynced() {
		log.Warn("Exiting with unsaved narrative state", "act", machine.State().Act)
	}

	log.Info("Quantum Theater exited")
}

func newLLM(cfg *config.Config, log *slog.Logger) (services.LLMService, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		log.Info("Using Anthropic LLM provider")
		return services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, log), nil
	case "mock":
		log.Warn("Using mock LLM provider, narration is canned")
		return services.NewMockLLMAPI(), nil
	default:
		return nil, errors.New("unsupported LLM provider: " + cfg.LLMProvider)
	}
}

// newTTS returns nil when speech is disabled.
func newTTS(cfg *config.Config, log *slog.Logger) services.TTSService {
	switch cfg.TTSProvider {
	case "elevenlabs":
		log.Info("Using ElevenLabs speech", "voice_id", cfg.ElevenLabsVoiceID)
		return services.NewElevenLabsService(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, cfg.TTSModel, log)
	case "mock":
		return services.NewMockTTS()
	default:
		log.Info("Speech disabled, narration is text only")
		return nil
	}
}

func openFrameSource(source string) (vision.FrameSource, func(), error) {
	if source == "" || source == "-" {
		return vision.NewNDJSONSource(os.Stdin), func() {}, nil
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, nil, err
	}
	return vision.NewNDJSONSource(f), func() { _ = f.Close() }, nil
}
