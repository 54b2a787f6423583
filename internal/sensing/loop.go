package sensing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jwebster45206/quantum-theater/pkg/board"
	"github.com/jwebster45206/quantum-theater/pkg/tracking"
	"github.com/jwebster45206/quantum-theater/pkg/vision"
)

// backlogHighWater is the backlog size above which a queue outage is logged
// as an error. The backlog itself is never trimmed.
const backlogHighWater = 1024

// EventSink receives reconciled board events and returns them with their
// sequence numbers assigned.
type EventSink interface {
	Enqueue(ctx context.Context, events ...board.BoardEvent) ([]board.BoardEvent, error)
}

// Cycle describes one processed frame.
type Cycle struct {
	FrameIndex int64
	Tracks     []tracking.Track
	Snapshot   board.Snapshot
	Events     []board.BoardEvent // as queued, with seq when a sink accepted them
	Backlog    int                // events still waiting for the queue
	Err        error              // set when the frame was skipped
}

// Loop reads frames, reconciles consecutive snapshots and hands the
// resulting events to the sink. The previous snapshot is only replaced by
// frames that were processed successfully.
type Loop struct {
	source   vision.FrameSource
	pipeline *Pipeline
	sink     EventSink
	logger   *slog.Logger

	prev         board.Snapshot
	backlog      []board.BoardEvent
	backlogAlarm bool
	latest       atomic.Pointer[board.Snapshot]

	mu      sync.Mutex
	onCycle func(Cycle)
}

// NewLoop creates a loop. sink may be nil, in which case events are only
// reported to the cycle callback.
func NewLoop(source vision.FrameSource, pipeline *Pipeline, sink EventSink, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{source: source, pipeline: pipeline, sink: sink, logger: logger}
	empty := board.NewSnapshot(nil, 0, time.Time{})
	l.latest.Store(&empty)
	return l
}

// OnCycle registers a callback invoked after every frame, from the loop's
// goroutine.
func (l *Loop) OnCycle(fn func(Cycle)) *Loop {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCycle = fn
	return l
}

// Latest returns the most recent successful snapshot. Safe for concurrent use.
func (l *Loop) Latest() board.Snapshot {
	return *l.latest.Load()
}

// Run processes frames until the source ends or ctx is done. Unreadable
// frames are skipped. Only a failing frame source ends the loop with an
// error.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Sensing loop starting", "zones", len(l.pipeline.Zones()))
	for {
		frame, err := l.source.Next(ctx)
		switch {
		case err == nil:
			l.Step(ctx, frame)
		case errors.Is(err, vision.ErrUnreadableFrame):
			l.report(Cycle{FrameIndex: frame.Index, Backlog: len(l.backlog), Err: err})
			l.logger.Warn("Skipping unreadable frame", "error", err)
		case errors.Is(err, io.EOF):
			l.flush(ctx)
			l.logger.Info("Frame source ended", "backlog", len(l.backlog))
			return nil
		case ctx.Err() != nil:
			l.logger.Info("Sensing loop stopping")
			return nil
		default:
			return fmt.Errorf("frame source: %w", err)
		}
	}
}

// Step processes a single frame.
func (l *Loop) Step(ctx context.Context, frame vision.Frame) Cycle {
	snap, tracks, err := l.pipeline.Process(frame)
	if err != nil {
		if errors.Is(err, vision.ErrNoTransform) {
			l.logger.Debug("No board transform for frame", "frame", frame.Index)
		} else {
			l.logger.Warn("Skipping frame", "frame", frame.Index, "error", err)
		}
		c := Cycle{FrameIndex: frame.Index, Backlog: len(l.backlog), Err: err}
		l.report(c)
		return c
	}

	events := board.Reconcile(l.prev, snap)
	l.prev = snap
	l.latest.Store(&snap)
	for _, ev := range events {
		l.logger.Info("Board event", "frame", frame.Index, "event", ev.String(), "marker_id", ev.MarkerID, "zone", ev.TargetZone())
	}

	queued := events
	if l.sink != nil {
		queued = l.deliver(ctx, events)
	}
	c := Cycle{
		FrameIndex: frame.Index,
		Tracks:     tracks,
		Snapshot:   snap,
		Events:     queued,
		Backlog:    len(l.backlog),
	}
	l.report(c)
	return c
}

// deliver sends the backlog followed by the new events. On failure all of
// them are kept, in order, for the next cycle.
func (l *Loop) deliver(ctx context.Context, events []board.BoardEvent) []board.BoardEvent {
	pending := append(l.backlog, events...)
	if len(pending) == 0 {
		return nil
	}
	queued, err := l.sink.Enqueue(ctx, pending...)
	if err != nil {
		l.backlog = pending
		if len(pending) > backlogHighWater && !l.backlogAlarm {
			l.backlogAlarm = true
			l.logger.Error("Event backlog above high-water mark, queue still unreachable",
				"backlog", len(pending), "high_water", backlogHighWater)
		}
		l.logger.Warn("Failed to enqueue board events, keeping them for the next cycle",
			"error", err, "backlog", len(l.backlog))
		return nil
	}
	if len(l.backlog) > 0 {
		l.logger.Info("Board event backlog delivered", "count", len(l.backlog))
	}
	l.backlog = nil
	l.backlogAlarm = false
	return queued
}

// flush makes one last delivery attempt for the backlog.
func (l *Loop) flush(ctx context.Context) {
	if l.sink == nil || len(l.backlog) == 0 {
		return
	}
	l.deliver(ctx, nil)
}

func (l *Loop) report(c Cycle) {
	l.mu.Lock()
	fn := l.onCycle
	l.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}
