package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/port"
)

// OutboxRelay publishes events committed to the outbox. Delivery is
// at-least-once: an event published but not marked sent goes out again.
type OutboxRelay struct {
	db        port.DatabaseRepository
	publisher port.EventPublisher
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

func NewOutboxRelay(
	db port.DatabaseRepository,
	publisher port.EventPublisher,
	logger *zap.Logger,
	interval time.Duration,
	batchSize int,
) *OutboxRelay {
	return &OutboxRelay{
		db:        db,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run relays on every tick until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.logger.Error("failed to relay events", zap.Error(err))
			}
		}
	}
}

// RelayOnce publishes one batch of pending events and returns how many were
// marked sent.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.db.ListPendingEvents(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, event := range events {
		if err := r.publisher.Publish(ctx, event); err != nil {
			r.logger.Error("failed to publish event",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.Error(err))
			continue
		}

		if err := r.db.MarkEventSent(ctx, event.ID, time.Now().UTC()); err != nil {
			r.logger.Error("failed to mark event as sent",
				zap.String("event_id", event.ID),
				zap.Error(err))
			continue
		}

		r.logger.Debug("event published",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.String("aggregate_id", event.AggregateID))
		sent++
	}

	return sent, nil
}
