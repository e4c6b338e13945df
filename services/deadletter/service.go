package deadletter

import (
	"context"
	"time"

	"coachmarket-fulfillment/pkg/kafka"
	"coachmarket-fulfillment/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service persists dead-lettered events. Entries are inert until an operator
// replays them.
type Service struct {
	node *snowflake.Node

	entries repository.Repository[Entry]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:    p.Node,
		entries: repository.ProvideStore[Entry](p.DB),
	}
}

// Sink stores the failed message. An error here leaves the source offset
// uncommitted, so the message is redelivered rather than lost.
func (s *Service) Sink(ctx context.Context, msg kafka.Message, attemptCount int, cause error) error {
	entry := &Entry{
		ID:            s.node.Generate().String(),
		Topic:         msg.Topic,
		PartitionKey:  msg.Key,
		OriginalEvent: datatypes.JSON(msg.Value),
		FailureReason: cause.Error(),
		AttemptCount:  attemptCount,
		FirstFailedAt: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.entries.Create(ctx, entry); err != nil {
		zap.L().Error("failed to persist dead-letter entry",
			zap.String("topic", msg.Topic),
			zap.String("partition_key", msg.Key),
			zap.Error(err),
		)
		return err
	}

	zap.L().Error("event dead-lettered",
		zap.String("topic", msg.Topic),
		zap.String("partition_key", msg.Key),
		zap.Int("attempt_count", attemptCount),
		zap.Error(cause),
	)

	return nil
}
