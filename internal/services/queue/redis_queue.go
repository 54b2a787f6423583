package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quantum-theater/pkg/board"
	pq "github.com/jwebster45206/quantum-theater/pkg/queue"
)

const (
	eventsKey     = "theater:events"
	processingKey = "theater:events:processing"
	seqKey        = "theater:event-seq"

	// blockTimeout bounds each BLMOVE so a cancelled ctx is noticed promptly
	// even if the server ignores client-side deadlines.
	blockTimeout = time.Second
)

// RedisEventQueue keeps pending events in a Redis list. A dequeued event is
// moved atomically onto a processing list and removed only on Ack, so a crash
// between Dequeue and Ack leaves it recoverable.
type RedisEventQueue struct {
	client *Client
	source pq.Source
	logger *slog.Logger
	now    func() time.Time
}

var _ EventQueue = (*RedisEventQueue)(nil)

func NewRedisEventQueue(client *Client, source pq.Source, logger *slog.Logger) *RedisEventQueue {
	return &RedisEventQueue{
		client: client,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

func (q *RedisEventQueue) Enqueue(ctx context.Context, events ...board.BoardEvent) ([]board.BoardEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	rdb := q.client.rdb

	last, err := rdb.IncrBy(ctx, seqKey, int64(len(events))).Result()
	if err != nil {
		q.logger.Error("Failed to reserve event sequence", "error", err, "count", len(events))
		return nil, fmt.Errorf("failed to reserve event sequence: %w", err)
	}
	first := last - int64(len(events)) + 1

	out := make([]board.BoardEvent, len(events))
	payloads := make([]interface{}, len(events))
	for i, ev := range events {
		ev.Seq = first + int64(i)
		out[i] = ev
		raw, err := pq.Entry{Event: ev, Source: q.source, EnqueuedAt: q.now()}.Encode()
		if err != nil {
			return nil, err
		}
		payloads[i] = raw
	}

	if err := rdb.RPush(ctx, eventsKey, payloads...).Err(); err != nil {
		q.logger.Error("Failed to enqueue board events", "error", err, "count", len(events))
		return nil, fmt.Errorf("failed to enqueue board events: %w", err)
	}

	q.logger.Debug("Enqueued board events", "first_seq", first, "last_seq", last)
	return out, nil
}

func (q *RedisEventQueue) Dequeue(ctx context.Context) (Delivery, error) {
	rdb := q.client.rdb
	for {
		if err := ctx.Err(); err != nil {
			return Delivery{}, err
		}
		raw, err := rdb.BLMove(ctx, eventsKey, processingKey, "LEFT", "RIGHT", blockTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Delivery{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return Delivery{}, ErrQueueClosed
			}
			return Delivery{}, fmt.Errorf("failed to dequeue board event: %w", err)
		}

		entry, err := pq.DecodeEntry(raw)
		if err != nil {
			// A poison entry would block the queue forever; drop it.
			q.logger.Error("Dropping malformed queue entry", "error", err, "raw", truncate(raw, 120))
			_ = rdb.LRem(ctx, processingKey, 1, raw).Err()
			continue
		}
		return Delivery{Event: entry.Event, raw: raw}, nil
	}
}

func (q *RedisEventQueue) Ack(ctx context.Context, d Delivery) error {
	if err := q.client.rdb.LRem(ctx, processingKey, 1, d.raw).Err(); err != nil {
		q.logger.Error("Failed to ack board event", "error", err, "seq", d.Event.Seq)
		return fmt.Errorf("failed to ack board event: %w", err)
	}
	return nil
}

func (q *RedisEventQueue) Recover(ctx context.Context) (int, error) {
	rdb := q.client.rdb
	n := 0
	for {
		// Taking from the tail and pushing to the head keeps the original order.
		err := rdb.LMove(ctx, processingKey, eventsKey, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("failed to recover board events: %w", err)
		}
		n++
	}
	if n > 0 {
		q.logger.Info("Recovered unacknowledged board events", "count", n)
	}
	return n, nil
}

func (q *RedisEventQueue) SeedSequence(ctx context.Context, floor int64) error {
	rdb := q.client.rdb
	cur, err := rdb.Get(ctx, seqKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read event sequence: %w", err)
	}
	if cur != "" {
		if n, convErr := strconv.ParseInt(cur, 10, 64); convErr == nil && n >= floor {
			return nil
		}
	}
	if err := rdb.Set(ctx, seqKey, floor, 0).Err(); err != nil {
		return fmt.Errorf("failed to seed event sequence: %w", err)
	}
	q.logger.Info("Seeded event sequence", "floor", floor)
	return nil
}

func (q *RedisEventQueue) Depth(ctx context.Context) (int, error) {
	rdb := q.client.rdb
	pending, err := rdb.LLen(ctx, eventsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	inflight, err := rdb.LLen(ctx, processingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(pending + inflight), nil
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
