package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/model"
)

// AccessEventWriter persists one audit event. Inserting the same event twice
// must be harmless.
type AccessEventWriter interface {
	Insert(ctx context.Context, e *model.AccessEvent) error
}

// AccessEventWorker consumes persist_access_events_queue and writes events
// to PostgreSQL.
type AccessEventWorker struct {
	repo       AccessEventWriter
	rdb        *redis.Client
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewAccessEventWorker creates a new AccessEventWorker.
func NewAccessEventWorker(repo AccessEventWriter, rdb *redis.Client, log zerolog.Logger) *AccessEventWorker {
	return &AccessEventWorker{
		repo:       repo,
		rdb:        rdb,
		retryDelay: 5 * time.Second,
		log:        log.With().Str("component", "access_event_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AccessEventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AccessEventWorker) processNext(ctx context.Context) {
	queue := config.WorkerKey.PersistAccessEventsQueue

	result, err := w.rdb.BLPop(ctx, time.Second, queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	event, ok := w.decode(result[1])
	if !ok {
		return
	}

	if err := w.repo.Insert(ctx, event); err != nil {
		w.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("Persist error, retrying")
		w.rdb.RPush(ctx, queue, result[1])
		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
	}
}

func (w *AccessEventWorker) decode(raw string) (*model.AccessEvent, bool) {
	var e model.AccessEvent
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		w.log.Error().Err(err).Msg("Dropping malformed access event")
		return nil, false
	}
	return &e, true
}

// drain persists everything still queued before shutdown.
func (w *AccessEventWorker) drain(ctx context.Context) {
	queue := config.WorkerKey.PersistAccessEventsQueue
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, queue).Result()
		if err != nil {
			break
		}
		event, ok := w.decode(raw)
		if !ok {
			continue
		}
		if err := w.repo.Insert(ctx, event); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, queue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
