package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_Publishes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, Channel)
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	b := NewBroadcaster(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, b.PublishNarrativeChanged(ctx, "req-1", 4, "intro", "investigation", []string{"story_begun"}))
	require.NoError(t, b.PublishNarrationCompleted(ctx, "req-1", 4, "The relic hums.", "", false))

	var got []Event
	for len(got) < 2 {
		msg, err := sub.ReceiveTimeout(ctx, 2*time.Second)
		require.NoError(t, err)
		m, ok := msg.(*redis.Message)
		require.True(t, ok)
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &ev))
		got = append(got, ev)
	}

	assert.Equal(t, EventTypeNarrativeChanged, got[0].Type)
	assert.Equal(t, "investigation", got[0].Data["act"])
	assert.Equal(t, EventTypeNarrationCompleted, got[1].Type)
	assert.Equal(t, "The relic hums.", got[1].Data["text"])
	assert.Equal(t, int64(4), got[1].Seq)
}
