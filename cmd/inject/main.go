package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jwebster45206/quantum-theater/internal/services/queue"
	"github.com/jwebster45206/quantum-theater/pkg/board"
	pq "github.com/jwebster45206/quantum-theater/pkg/queue"
)

type injectConfig struct {
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
}

const usage = `Usage:
  inject placed <zone> <marker>
  inject removed <zone> <marker>
  inject moved <marker> <from-zone> <to-zone>`

func main() {
	ev, err := parseEvent(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var cfg injectConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal("Failed to read environment:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client, err := queue.NewClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer func() { _ = client.Close() }()

	q := queue.NewRedisEventQueue(client, pq.SourceInject, logger)
	queued, err := q.Enqueue(ctx, ev)
	if err != nil {
		log.Fatal("Failed to enqueue event:", err)
	}
	fmt.Printf("Enqueued #%d: %s\n", queued[0].Seq, queued[0].String())

	depth, err := q.Depth(ctx)
	if err != nil {
		log.Fatal("Failed to get queue depth:", err)
	}
	fmt.Printf("Queue depth: %d\n", depth)
}

// parseEvent builds a board event from command line arguments.
func parseEvent(args []string) (board.BoardEvent, error) {
	if len(args) == 0 {
		return board.BoardEvent{}, fmt.Errorf("missing event kind")
	}
	var ev board.BoardEvent
	switch board.EventKind(args[0]) {
	case board.PiecePlaced, board.PieceRemoved:
		if len(args) != 3 {
			return board.BoardEvent{}, fmt.Errorf("%s needs a zone and a marker id", args[0])
		}
		id, err := strconv.Atoi(args[2])
		if err != nil {
			return board.BoardEvent{}, fmt.Errorf("invalid marker id %q", args[2])
		}
		if board.EventKind(args[0]) == board.PiecePlaced {
			ev = board.Placed(args[1], id)
		} else {
			ev = board.Removed(args[1], id)
		}
	case board.PieceMoved:
		if len(args) != 4 {
			return board.BoardEvent{}, fmt.Errorf("moved needs a marker id and two zones")
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return board.BoardEvent{}, fmt.Errorf("invalid marker id %q", args[1])
		}
		ev = board.Moved(id, args[2], args[3])
	default:
		return board.BoardEvent{}, fmt.Errorf("unknown event kind %q", args[0])
	}
	if err := ev.Validate(); err != nil {
		return board.BoardEvent{}, err
	}
	return ev, nil
}
