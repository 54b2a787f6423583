package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quantum-theater/pkg/board"
)

// ErrQueueClosed is returned by Dequeue once the queue has been closed.
var ErrQueueClosed = errors.New("queue closed")

// Delivery is an event handed to the consumer. It stays pending until it is
// acknowledged and is redelivered by Recover if the consumer dies first.
type Delivery struct {
	Event board.BoardEvent
	raw   string
}

// EventQueue is the FIFO between the sensing loop and the narrative worker.
// Enqueue never overwrites: new events append behind whatever is waiting.
type EventQueue interface {
	// Enqueue assigns sequence numbers and appends the events in order. The
	// returned events carry their sequence numbers.
	Enqueue(ctx context.Context, events ...board.BoardEvent) ([]board.BoardEvent, error)

	// Dequeue blocks until an event is available or ctx ends.
	Dequeue(ctx context.Context) (Delivery, error)

	// Ack marks a delivery as fully handled.
	Ack(ctx context.Context, d Delivery) error

	// Recover puts unacknowledged deliveries back at the head of the queue,
	// oldest first, and returns how many were restored.
	Recover(ctx context.Context) (int, error)

	// SeedSequence makes sure the next assigned sequence is above floor.
	SeedSequence(ctx context.Context, floor int64) error

	// Depth counts waiting plus unacknowledged events.
	Depth(ctx context.Context) (int, error)
}

// Client wraps the Redis client for queue operations
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewClient connects to redisURL and checks the connection.
func NewClient(ctx context.Context, redisURL string, logger *slog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Connected to Redis for queue service", "addr", opt.Addr)
	return &Client{rdb: rdb, logger: logger}, nil
}

// WrapClient builds a queue client on an existing connection. The caller
// keeps ownership of rdb.
func WrapClient(rdb *redis.Client, logger *slog.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
