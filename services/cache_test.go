package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pongmatch/engine"
)

func TestMatchCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := NewMatchCache(rdb, time.Minute)
	ctx := context.Background()

	_, err := cache.Snapshot(ctx, "m1")
	assert.Equal(t, 404, StatusOf(err))

	frame := engine.StateFrame{
		Type:        engine.FrameUpdate,
		Time:        "-",
		BallX:       "-",
		BallY:       "-",
		PaddleLeft:  "not connected",
		PaddleRight: "-",
		ScoreLeft:   "not connected",
		ScoreRight:  "-",
		Status:      engine.StatusWaitingForPlayers,
	}
	require.NoError(t, cache.SaveSnapshot(ctx, "m1", frame))
	assert.Equal(t, time.Minute, mr.TTL("match:m1"))

	got, err := cache.Snapshot(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, frame, got)

	mr.FastForward(2 * time.Minute)
	_, err = cache.Snapshot(ctx, "m1")
	assert.Equal(t, 404, StatusOf(err))
}
