package allocation

import (
	"context"
	"time"

	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/config"
	"coachmarket-fulfillment/pkg/errutil"
	"coachmarket-fulfillment/pkg/repository"
	"coachmarket-fulfillment/services/demand"
	"coachmarket-fulfillment/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const SourceWorker = "allocation-worker"

// DemandSink receives blocked-allocation signals, fire-and-forget.
type DemandSink interface {
	LogBlocked(ctx context.Context, p demand.BlockedPayload)
}

// Service assigns a trainer for each created purchase and emits
// "resource allocated" for the scheduling stage.
type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	ledger   *ledger.Service
	emitter  *event.Emitter
	assigner Assigner
	demand   DemandSink

	allocations repository.Repository[Allocation]

	defaultTimeSlot string
	startOffsetDays int
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Ledger   *ledger.Service
	Emitter  *event.Emitter
	Assigner Assigner
	Demand   DemandSink
	Config   *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:              p.DB,
		node:            p.Node,
		ledger:          p.Ledger,
		emitter:         p.Emitter,
		assigner:        p.Assigner,
		demand:          p.Demand,
		allocations:     repository.ProvideStore[Allocation](p.DB),
		defaultTimeSlot: p.Config.Fulfillment.DefaultTimeSlot,
		startOffsetDays: p.Config.Fulfillment.StartDateOffsetDays,
	}
}

// HandlePurchaseCreated follows the verify-then-mark protocol against the
// allocation row. A NO_TRAINER_AVAILABLE block is terminal: the demand
// signal is recorded, the purchaser is told "temporarily unavailable", and
// the event is marked processed. The external waitlist trigger restarts the
// chain by re-publishing "purchase created".
func (s *Service) HandlePurchaseCreated(ctx context.Context, env event.Envelope) error {
	payload, err := event.DecodePayload[event.PurchaseCreated](env)
	if err != nil {
		return err
	}

	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("correlation_id", env.CorrelationID),
		zap.String("student_id", payload.StudentID),
		zap.String("course_id", payload.CourseID),
	)

	existing, err := s.allocations.FindOne(ctx, &Allocation{StudentID: payload.StudentID, CourseID: payload.CourseID})
	if err != nil {
		return err
	}
	if existing != nil {
		zapLog.Info("allocation already exists, catching up", zap.String("allocation_id", existing.ID))
		return s.finish(ctx, env, payload, existing.ID, existing.TrainerID, zapLog)
	}

	processed, err := s.ledger.IsProcessed(ctx, env.Type, env.CorrelationID)
	if err != nil {
		return err
	}
	if processed {
		zapLog.Warn("reconciliation: event marked processed but allocation row absent, re-assigning")
	}

	result, err := s.assigner.AutoAssign(ctx, AssignRequest{
		StudentID: payload.StudentID,
		CourseID:  payload.CourseID,
		TimeSlot:  event.ResolveTimeSlot(payload.Metadata, s.defaultTimeSlot),
		StartDate: event.ResolveStartDate(payload.Metadata, time.Now(), s.startOffsetDays),
		Metadata:  payload.Metadata,
	})
	if err != nil {
		if errutil.IsStatus(err, errutil.StatusNoTrainerAvailable) {
			return s.block(ctx, env, payload, err, zapLog)
		}
		zapLog.Error("allocation subsystem failed", zap.Error(err))
		return err
	}

	// The subsystem call succeeding is not proof of the row; it may be
	// asynchronous internally. Verify storage before marking processed.
	row, err := s.allocations.FindOne(ctx, &Allocation{ID: result.AllocationID})
	if err != nil {
		return err
	}
	if row == nil {
		return errutil.Internal("allocation row missing after assignment", nil)
	}

	zapLog.Info("trainer allocated",
		zap.String("allocation_id", row.ID),
		zap.String("trainer_id", row.TrainerID),
	)
	return s.finish(ctx, env, payload, row.ID, row.TrainerID, zapLog)
}

func (s *Service) finish(ctx context.Context, env event.Envelope, payload event.PurchaseCreated, allocationID, trainerID string, zapLog *zap.Logger) error {
	err := s.emitter.Emit(ctx, event.TypeResourceAllocated, env.CorrelationID, SourceWorker, payload.StudentID, event.ResourceAllocated{
		AllocationID: allocationID,
		StudentID:    payload.StudentID,
		CourseID:     payload.CourseID,
		TrainerID:    trainerID,
		Tier:         payload.Tier,
		Metadata:     payload.Metadata,
	})
	if err != nil {
		zapLog.Error("failed to emit resource allocated", zap.Error(err))
		return err
	}

	return s.ledger.MarkProcessedIdempotent(ctx, env.Type, env.CorrelationID, SourceWorker)
}

func (s *Service) block(ctx context.Context, env event.Envelope, payload event.PurchaseCreated, cause error, zapLog *zap.Logger) error {
	zapLog.Warn("allocation blocked, recording demand signal", zap.Error(cause))

	s.demand.LogBlocked(ctx, demand.BlockedPayload{
		StudentID:     payload.StudentID,
		CourseID:      payload.CourseID,
		Reason:        cause.Error(),
		CorrelationID: env.CorrelationID,
		BlockedAt:     time.Now().UTC(),
	})

	s.emitter.NotifyOnly(ctx, env.CorrelationID, payload.StudentID, map[string]any{
		"type":       "allocation.blocked",
		"student_id": payload.StudentID,
		"course_id":  payload.CourseID,
		"message":    "trainer temporarily unavailable, you will be notified",
	})

	// Terminal: marking processed stops redelivery. Retrying cannot change
	// roster capacity without the external waitlist trigger.
	return s.ledger.MarkProcessedIdempotent(ctx, env.Type, env.CorrelationID, SourceWorker)
}
