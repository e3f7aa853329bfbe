package services

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"pongmatch/engine"
)

// MatchCache keeps the last broadcast frame of every match in Redis, so
// any game server instance can answer for a match it does not run.
type MatchCache struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewMatchCache(rdb *redis.Client, ttl time.Duration) *MatchCache {
	return &MatchCache{Redis: rdb, TTL: ttl}
}

func matchKey(id string) string { return "match:" + id }

func (m *MatchCache) SaveSnapshot(ctx context.Context, id string, frame engine.StateFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return eris.Wrap(err, "encode snapshot")
	}
	return eris.Wrapf(m.Redis.Set(ctx, matchKey(id), data, m.TTL).Err(), "cache snapshot %s", id)
}

func (m *MatchCache) Snapshot(ctx context.Context, id string) (engine.StateFrame, error) {
	var frame engine.StateFrame
	data, err := m.Redis.Get(ctx, matchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return frame, eris.Wrapf(ErrNotFound, "match %s", id)
	}
	if err != nil {
		return frame, eris.Wrapf(err, "read snapshot %s", id)
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return frame, eris.Wrap(err, "decode snapshot")
	}
	return frame, nil
}
