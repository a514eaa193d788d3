package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrStreamUnavailable = errors.New("event stream unavailable")

const (
	defaultStreamMaxLen = 100_000
	breakerTripAfter    = 5
)

// StreamPublisher appends JSON events to a capped Redis stream. A circuit
// breaker stops calling Redis after repeated failures and retries it later.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	cb     *gobreaker.CircuitBreaker[string]
}

func NewStreamPublisher(client *redis.Client, stream string, log *zap.Logger) *StreamPublisher {
	settings := gobreaker.Settings{
		Name:        "redis-stream:" + stream,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: defaultStreamMaxLen,
		cb:     gobreaker.NewCircuitBreaker[string](settings),
	}
}

// Publish appends one entry with fields "type" and "payload" and returns its stream ID.
func (p *StreamPublisher) Publish(ctx context.Context, eventType string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal stream payload: %w", err)
	}

	id, err := p.cb.Execute(func() (string, error) {
		return p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]any{
				"type":    eventType,
				"payload": data,
			},
		}).Result()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrStreamUnavailable, err)
	}
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}

func (p *StreamPublisher) State() gobreaker.State {
	return p.cb.State()
}
