// Package presence mirrors "online station name" into Redis for operator
// convenience, adapted from the teacher's internal/adapter/cache/redis.go.
// It is never authoritative — the Registry's in-memory map is — and a
// failure here is logged, not propagated.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "ocpp:online:"

// Mirror is a Redis-backed presence set.
type Mirror struct {
	client *redis.Client
	log    *zap.Logger
}

// Connect parses url, pings the server, and returns a ready Mirror.
func Connect(url string, log *zap.Logger) (*Mirror, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("presence: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: connect to redis: %w", err)
	}

	if log != nil {
		log.Info("connected to presence store")
	}
	return &Mirror{client: client, log: log}, nil
}

// Online marks name as connected under sessionID. Best-effort: any error is
// logged and swallowed.
func (m *Mirror) Online(sessionID uint64, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.client.Set(ctx, keyPrefix+name, sessionID, 0).Err(); err != nil && m.log != nil {
		m.log.Warn("presence set failed", zap.String("station", name), zap.Error(err))
	}
}

// Offline removes name from the presence set.
func (m *Mirror) Offline(sessionID uint64, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.client.Del(ctx, keyPrefix+name).Err(); err != nil && m.log != nil {
		m.log.Warn("presence delete failed", zap.String("station", name), zap.Error(err))
	}
}

// Close closes the underlying Redis client.
func (m *Mirror) Close() error {
	return m.client.Close()
}

// Noop discards every presence update; used when Redis is disabled in
// configuration.
type Noop struct{}

func (Noop) Online(uint64, string)  {}
func (Noop) Offline(uint64, string) {}
