package ledger

import (
	"context"
	"time"

	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/db"
	"coachmarket-fulfillment/pkg/errutil"
	"coachmarket-fulfillment/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the idempotency ledger. The unique constraint on
// (event_type, correlation_id) makes MarkProcessed a single atomic
// insert-or-detect-conflict operation; there is no read-then-write window.
//
// Callers must follow the verify-then-mark protocol: confirm the target
// entity exists before calling MarkProcessed. A ledger row without its side
// effect is worse than a duplicate delivery.
type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	processed repository.Repository[ProcessedEvent]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		processed: repository.ProvideStore[ProcessedEvent](p.DB),
	}
}

// IsProcessed reports whether the (event type, correlation id) pair already
// produced its side effect.
func (s *Service) IsProcessed(ctx context.Context, eventType event.Type, correlationID string) (bool, error) {
	rec, err := s.processed.FindOne(ctx, &ProcessedEvent{
		EventType:     string(eventType),
		CorrelationID: correlationID,
	})
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// MarkProcessed records the pair. Returns a conflict error when already
// recorded; callers treat that as "already done".
func (s *Service) MarkProcessed(ctx context.Context, eventType event.Type, correlationID, sourceWorker string) error {
	rec := &ProcessedEvent{
		ID:            s.node.Generate().String(),
		EventType:     string(eventType),
		CorrelationID: correlationID,
		SourceWorker:  sourceWorker,
		ProcessedAt:   time.Now().UTC(),
	}

	if err := s.processed.Create(ctx, rec); err != nil {
		if db.IsUniqueViolation(err) {
			return errutil.Conflict("event already marked processed", err)
		}
		return err
	}

	return nil
}

// MarkProcessedIdempotent is MarkProcessed with duplicates absorbed. A
// concurrent redelivery racing to the same row is success, not failure.
func (s *Service) MarkProcessedIdempotent(ctx context.Context, eventType event.Type, correlationID, sourceWorker string) error {
	err := s.MarkProcessed(ctx, eventType, correlationID, sourceWorker)
	if errutil.IsConflict(err) {
		zap.L().Debug("processed-event row already present",
			zap.String("event_type", string(eventType)),
			zap.String("correlation_id", correlationID),
		)
		return nil
	}
	return err
}
