package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisService_PingAndWait(t *testing.T) {
	mr := miniredis.RunT(t)

	rs, err := NewRedisService(mr.Addr(), quietLog)
	require.NoError(t, err)
	defer func() { _ = rs.Close() }()

	ctx := context.Background()
	require.NoError(t, rs.Ping(ctx))
	require.NoError(t, rs.waitForConnection(ctx, 2, time.Millisecond))
}

func TestRedisService_URL(t *testing.T) {
	mr := miniredis.RunT(t)

	rs, err := NewRedisService("redis://"+mr.Addr()+"/0", quietLog)
	require.NoError(t, err)
	defer func() { _ = rs.Close() }()
	assert.NoError(t, rs.Ping(context.Background()))

	_, err = NewRedisService("redis://%zz", quietLog)
	assert.Error(t, err)
}

func TestRedisService_WaitGivesUp(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	rs, err := NewRedisService(addr, quietLog)
	require.NoError(t, err)
	defer func() { _ = rs.Close() }()

	err = rs.waitForConnection(context.Background(), 2, time.Millisecond)
	assert.ErrorContains(t, err, "after 2 attempts")
}
