package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwebster45206/quantum-theater/internal/logger"
	"github.com/jwebster45206/quantum-theater/internal/services"
	"github.com/jwebster45206/quantum-theater/internal/services/queue"
	"github.com/jwebster45206/quantum-theater/internal/storage"
	"github.com/jwebster45206/quantum-theater/internal/telemetry"
	"github.com/jwebster45206/quantum-theater/pkg/narrative"
	"github.com/jwebster45206/quantum-theater/pkg/textfilter"
)

const (
	defaultLLMTimeout = 20 * time.Second
	defaultTTSTimeout = 30 * time.Second
	retryDelay        = 1 * time.Second
)

// Publisher announces narration results to displays.
type Publisher interface {
	PublishNarrativeChanged(ctx context.Context, requestID string, seq int64, fromAct, toAct string, flags []string) error
	PublishNarrationCompleted(ctx context.Context, requestID string, seq int64, text, audioPath string, fallback bool) error
}

// Transcript records every narration of the session.
type Transcript interface {
	Append(ctx context.Context, e storage.TranscriptEntry) error
}

// Deps are the collaborators of the worker. Queue, Machine and LLM are
// required; the rest may be nil.
type Deps struct {
	Queue      queue.EventQueue
	Machine    *narrative.Machine
	LLM        services.LLMService
	TTS        services.TTSService
	Transcript Transcript
	Publisher  Publisher
}

// Options tune the worker.
type Options struct {
	WorkerID     string
	LLMTimeout   time.Duration
	TTSTimeout   time.Duration
	AudioDir     string
	HistoryLimit int
	Rating       string // audience rating; PG-13 and below soften profanity
}

// Result is the outcome of one processed board event.
type Result struct {
	Request   narrative.NarrativeRequest
	Text      string
	AudioPath string
	Fallback  bool
}

// Worker is the single consumer of the board event queue. It applies each
// event to the narrative machine and narrates the result, one event at a
// time and in queue order.
type Worker struct {
	id     string
	deps   Deps
	opts   Options
	log    *slog.Logger
	tracer trace.Tracer
	filter *textfilter.NarrationFilter

	prepared atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// New creates a new worker instance
func New(deps Deps, opts Options, log *slog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.WorkerID == "" {
		opts.WorkerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = defaultLLMTimeout
	}
	if opts.TTSTimeout <= 0 {
		opts.TTSTimeout = defaultTTSTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		id:     opts.WorkerID,
		deps:   deps,
		opts:   opts,
		log:    logger.WithWorkerID(log, opts.WorkerID),
		tracer: telemetry.Tracer(),
		filter: textfilter.NewNarrationFilter(opts.Rating),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// ID returns the worker id.
func (w *Worker) ID() string {
	return w.id
}

// Start processes the queue until ctx is done or Stop is called. Prepare is
// run first unless the caller already ran it.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	w.log.Info("Worker starting")
	if !w.prepared.Load() {
		if err := w.Prepare(ctx); err != nil {
			return err
		}
	}

	for {
		d, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				w.log.Info("Worker shutting down")
				return nil
			}
			w.log.Error("Error dequeuing board event", "error", err)
			select {
			case <-ctx.Done():
				w.log.Info("Worker shutting down")
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}

		if _, err := w.Process(ctx, d); err != nil {
			if ctx.Err() != nil {
				w.log.Info("Worker stopped mid-event, it will be narrated again on restart",
					"seq", d.Event.Seq)
				return nil
			}
			w.log.Error("Error processing board event", "error", err, "seq", d.Event.Seq)
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested")
	w.cancel()
}

// Prepare puts events left in flight by a previous run back on the queue and
// keeps new sequence numbers above the last applied one. It must complete
// before anything else enqueues board events.
func (w *Worker) Prepare(ctx context.Context) error {
	restored, err := w.deps.Queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover in-flight events: %w", err)
	}
	if restored > 0 {
		w.log.Info("Restored unacknowledged board events", "count", restored)
	}
	lastSeq := w.deps.Machine.State().LastSeq
	if err := w.deps.Queue.SeedSequence(ctx, lastSeq); err != nil {
		return fmt.Errorf("failed to seed event sequence: %w", err)
	}
	w.prepared.Store(true)
	return nil
}

// Process handles one delivery: transition, narration, audio, transcript,
// broadcast, acknowledgement. When ctx ends part way through, the delivery
// is left unacknowledged and ctx's error is returned.
func (w *Worker) Process(ctx context.Context, d queue.Delivery) (Result, error) {
	ev := d.Event
	ctx, span := w.tracer.Start(ctx, "narrative.process", trace.WithAttributes(
		attribute.Int64("event.seq", ev.Seq),
		attribute.String("event.kind", string(ev.Kind)),
		attribute.Int("marker.id", ev.MarkerID),
	))
	defer span.End()

	start := w.now()
	req := w.deps.Machine.Apply(ctx, ev)
	req.ID = uuid.NewString()
	span.SetAttributes(
		attribute.String("request.id", req.ID),
		attribute.String("request.kind", string(req.Kind)),
		attribute.String("narrative.act", string(req.State.Act)),
	)

	log := w.log.With("request_id", req.ID, "seq", ev.Seq)
	log.Info("Processing board event", "event", ev.String(), "kind", req.Kind, "act", req.State.Act)

	if req.Changed() && w.deps.Publisher != nil {
		if err := w.deps.Publisher.PublishNarrativeChanged(ctx, req.ID, ev.Seq,
			string(req.PreviousAct), string(req.State.Act), req.State.Flags); err != nil {
			log.Warn("Failed to publish state change", "error", err)
		}
	}

	text, fallback := w.narrate(ctx, req, log)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return Result{Request: req}, err
	}
	res := Result{Request: req, Text: text, Fallback: fallback}
	res.AudioPath = w.speak(ctx, req.ID, text, log)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return res, err
	}

	if w.deps.Transcript != nil {
		entry := storage.TranscriptEntry{
			RequestID:   req.ID,
			Seq:         ev.Seq,
			Event:       ev.String(),
			PreviousAct: req.PreviousAct,
			Act:         req.State.Act,
			Text:        text,
			AudioPath:   res.AudioPath,
			Fallback:    fallback,
			Timestamp:   w.now(),
		}
		if err := w.deps.Transcript.Append(ctx, entry); err != nil {
			log.Warn("Failed to append transcript", "error", err)
		}
	}

	if w.deps.Publisher != nil {
		if err := w.deps.Publisher.PublishNarrationCompleted(ctx, req.ID, ev.Seq, text, res.AudioPath, fallback); err != nil {
			log.Warn("Failed to publish narration", "error", err)
		}
	}

	if err := w.deps.Queue.Ack(ctx, d); err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("failed to acknowledge event %d: %w", ev.Seq, err)
	}

	log.Info("Board event narrated",
		"fallback", fallback,
		"audio", res.AudioPath != "",
		"duration_ms", w.now().Sub(start).Milliseconds(),
	)
	return res, nil
}

// narrate asks the LLM for narration and substitutes the fallback line on
// any failure.
func (w *Worker) narrate(ctx context.Context, req narrative.NarrativeRequest, log *slog.Logger) (string, bool) {
	ctx, span := w.tracer.Start(ctx, "llm.generate")
	defer span.End()

	builder := narrative.NewPromptBuilder(req)
	if w.opts.HistoryLimit > 0 {
		builder = builder.WithHistoryLimit(w.opts.HistoryLimit)
	}

	llmCtx, cancel := context.WithTimeout(ctx, w.opts.LLMTimeout)
	defer cancel()

	resp, err := w.deps.LLM.GenerateResponse(llmCtx, builder.Build())
	if err == nil && resp != nil {
		if text := w.filter.Clean(resp.Message); text != "" {
			return text, false
		}
	}
	if err == nil {
		err = errors.New("empty narration")
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.WithError(log, err).Warn("Narrator unavailable, using fallback narration")
	return narrative.FallbackNarration, true
}

// speak synthesizes text and writes it to the audio directory. Failures
// leave the narration text-only.
func (w *Worker) speak(ctx context.Context, requestID, text string, log *slog.Logger) string {
	if w.deps.TTS == nil || w.opts.AudioDir == "" {
		return ""
	}
	ctx, span := w.tracer.Start(ctx, "tts.synthesize")
	defer span.End()

	ttsCtx, cancel := context.WithTimeout(ctx, w.opts.TTSTimeout)
	defer cancel()

	audio, err := w.deps.TTS.Synthesize(ttsCtx, text)
	if err != nil {
		span.RecordError(err)
		log.Warn("Speech synthesis failed, narration is text only", "error", err)
		return ""
	}
	if err := os.MkdirAll(w.opts.AudioDir, 0o755); err != nil {
		log.Warn("Failed to create audio directory", "error", err)
		return ""
	}
	path := filepath.Join(w.opts.AudioDir, "narration_"+requestID+".mp3")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		log.Warn("Failed to write audio file", "error", err, "path", path)
		return ""
	}
	return path
}
