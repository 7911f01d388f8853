// Package redis implements the external subscriber transport on Redis
// PUB/SUB. Out-of-process consumers subscribe to the same topic names the
// in-process hub uses.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/healthwatch/internal/domain"
)

// Publisher implements domain.Publisher on a Redis connection. Publish
// failures flip an availability flag so connection loss is logged once,
// not per message.
type Publisher struct {
	client      *redis.Client
	logger      *slog.Logger
	isAvailable atomic.Bool
}

// NewPublisher creates a Redis-backed publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	p := &Publisher{
		client: client,
		logger: logger.With("component", "redis_publisher"),
	}
	p.isAvailable.Store(true)
	return p
}

// Publish sends one message to a topic channel. A delivery with zero
// receivers is still a success; only transport errors are reported.
func (p *Publisher) Publish(ctx context.Context, topic string, message []byte) error {
	err := p.client.Publish(ctx, topic, message).Err()
	if err != nil {
		if p.isAvailable.CompareAndSwap(true, false) {
			p.logger.Error("redis connection lost, external fan-out suspended", "error", err)
		}
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	if p.isAvailable.CompareAndSwap(false, true) {
		p.logger.Info("redis connection recovered, external fan-out resumed")
	}
	return nil
}

// StartHealthCheck pings the connection periodically so recovery is
// noticed even while no messages flow.
func (p *Publisher) StartHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := p.client.Ping(ctx).Err()
			if err != nil {
				if p.isAvailable.CompareAndSwap(true, false) {
					p.logger.Error("redis connection lost, external fan-out suspended", "error", err)
				}
			} else if p.isAvailable.CompareAndSwap(false, true) {
				p.logger.Info("redis connection recovered, external fan-out resumed")
			}
		}
	}
}

// Available reports the last observed connection state.
func (p *Publisher) Available() bool {
	return p.isAvailable.Load()
}

var _ domain.Publisher = (*Publisher)(nil)
