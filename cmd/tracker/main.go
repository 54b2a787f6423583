package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/quantum-theater/internal/config"
	"github.com/jwebster45206/quantum-theater/internal/logger"
	"github.com/jwebster45206/quantum-theater/internal/sensing"
	"github.com/jwebster45206/quantum-theater/internal/services"
	"github.com/jwebster45206/quantum-theater/internal/services/queue"
	"github.com/jwebster45206/quantum-theater/internal/storage"
	pq "github.com/jwebster45206/quantum-theater/pkg/queue"
	"github.com/jwebster45206/quantum-theater/pkg/vision"
)

// The tracker runs only the sensing half: frames in, board events out. It
// shows a live dashboard, or logs cycles when TRACKER_HEADLESS is set.
// Events go to Redis when REDIS_URL is set and are only displayed otherwise.
func main() {
	cfg, err := config.LoadSensing()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var log *slog.Logger
	if cfg.TrackerHeadless {
		log = logger.Setup(cfg)
	} else {
		f, err := os.OpenFile(cfg.TrackerLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not open log file %s: %v\n", cfg.TrackerLogFile, err)
			os.Exit(1)
		}
		defer f.Close()
		log = logger.SetupWriter(cfg, f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cal, err := storage.LoadCalibration(cfg.CalibrationFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load calibration: %v\n", err)
		os.Exit(1)
	}
	pipeline, err := sensing.NewPipeline(cal, sensing.Options{
		Tracking:        cfg.Tracking(),
		Tolerance:       cfg.ZoneTolerance,
		ReferenceMemory: cfg.ReferenceMemory,
	}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build sensing pipeline: %v\n", err)
		os.Exit(1)
	}

	frames, closeFrames, err := openFrameSource(cfg.FrameSource)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open frame source %s: %v\n", cfg.FrameSource, err)
		os.Exit(1)
	}
	defer closeFrames()

	var sink sensing.EventSink
	if cfg.RedisURL != "" {
		redisService, err := services.NewRedisService(cfg.RedisURL, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create Redis client: %v\n", err)
			os.Exit(1)
		}
		defer redisService.Close()
		// An unreachable queue is not fatal here; the loop holds events
		// until it comes back.
		if err := redisService.Ping(ctx); err != nil {
			log.Warn("Redis not reachable yet, events will be held", "error", err)
		}
		client := queue.WrapClient(redisService.GetClient(), log)
		sink = queue.NewRedisEventQueue(client, pq.SourceSensing, log)
	} else {
		log.Info("REDIS_URL not set, events are displayed only")
	}

	loop := sensing.NewLoop(frames, pipeline, sink, log)

	if cfg.TrackerHeadless {
		loop.OnCycle(func(c sensing.Cycle) { logCycle(log, c) })
		if err := loop.Run(ctx); err != nil {
			log.Error("Sensing loop stopped", "error", err)
			os.Exit(1)
		}
		log.Info("Frame source finished", "occupied", loop.Latest().Len())
		return
	}

	ui := NewTrackerUI(pipeline.Zones(), clipboard.WriteAll)
	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if cfg.FrameSource == "" || cfg.FrameSource == "-" {
		// Frames arrive on stdin, so keys come from the terminal.
		opts = append(opts, tea.WithInputTTY())
	}
	p := tea.NewProgram(ui, opts...)
	loop.OnCycle(func(c sensing.Cycle) { p.Send(cycleMsg(c)) })

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	go func() {
		err := loop.Run(loopCtx)
		p.Send(sourceDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error running tracker: %v\n", err)
		os.Exit(1)
	}
}

func logCycle(log *slog.Logger, c sensing.Cycle) {
	if c.Err != nil {
		log.Warn("Frame skipped", "frame", c.FrameIndex, "error", c.Err)
		return
	}
	for _, ev := range c.Events {
		log.Info("Board event", "seq", ev.Seq, "event", ev.String())
	}
	if c.Backlog > 0 {
		log.Warn("Events waiting for queue", "backlog", c.Backlog)
	}
	log.Debug("Frame processed", "frame", c.FrameIndex, "tracks", len(c.Tracks), "occupied", c.Snapshot.Len())
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
