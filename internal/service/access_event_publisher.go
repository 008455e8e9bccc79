package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/metrics"
	"github.com/stemsi/exstem-seb/internal/model"
)

// AccessEventSink receives access-prevented events.
type AccessEventSink interface {
	Publish(ctx context.Context, e *model.AccessEvent) error
}

// AccessEventPublisher queues events for persistence and broadcasts them to
// admins watching the course module.
type AccessEventPublisher struct {
	rdb     *redis.Client
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewAccessEventPublisher creates a new AccessEventPublisher.
func NewAccessEventPublisher(rdb *redis.Client, m *metrics.Metrics, log zerolog.Logger) *AccessEventPublisher {
	return &AccessEventPublisher{
		rdb:     rdb,
		metrics: m,
		log:     log.With().Str("component", "access_event_publisher").Logger(),
	}
}

// Publish pushes e onto the persistence queue and the live channel in one
// round trip.
func (p *AccessEventPublisher) Publish(ctx context.Context, e *model.AccessEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal access event: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistAccessEventsQueue, payload)
	pipe.Publish(ctx, config.CacheKey.AccessEventsChannel(e.CMID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		p.metrics.AccessEvent("failed")
		return fmt.Errorf("queue access event: %w", err)
	}
	p.metrics.AccessEvent("queued")
	return nil
}
