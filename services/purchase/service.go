package purchase

import (
	"context"
	"encoding/json"
	"time"

	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/config"
	"coachmarket-fulfillment/pkg/db"
	"coachmarket-fulfillment/pkg/errutil"
	"coachmarket-fulfillment/pkg/repository"
	"coachmarket-fulfillment/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const SourceWorker = "purchase-worker"

// Service turns a confirmed payment into exactly one active purchase and
// emits "purchase created" for the allocation stage.
type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	payments PaymentStore
	ledger   *ledger.Service
	emitter  *event.Emitter

	purchases repository.Repository[Purchase]

	defaultTier int
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Payments PaymentStore
	Ledger   *ledger.Service
	Emitter  *event.Emitter
	Config   *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		payments:    p.Payments,
		ledger:      p.Ledger,
		emitter:     p.Emitter,
		purchases:   repository.ProvideStore[Purchase](p.DB),
		defaultTier: p.Config.Fulfillment.DefaultTier,
	}
}

// HandlePaymentConfirmed applies the verify-then-mark protocol against
// (studentId, courseId):
//
//  1. purchase row already there -> catch up (mark + re-emit) and stop
//  2. ledger marked but row absent -> reconciliation warning, recreate
//  3. insert, absorbing unique violations from concurrent redeliveries
//  4. re-verify the row, emit downstream, only then mark processed
func (s *Service) HandlePaymentConfirmed(ctx context.Context, env event.Envelope) error {
	payload, err := event.DecodePayload[event.PaymentConfirmed](env)
	if err != nil {
		return err
	}

	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("correlation_id", env.CorrelationID),
		zap.String("payment_id", payload.PaymentID),
		zap.String("student_id", payload.StudentID),
		zap.String("course_id", payload.CourseID),
	)

	// Re-read the payment record; the event payload may have been enriched
	// or staled in transit. Record metadata wins the merge.
	payment, err := s.payments.GetPayment(ctx, payload.PaymentID)
	if err != nil {
		zapLog.Error("failed to load payment record", zap.Error(err))
		return err
	}

	var recordMeta event.Metadata
	if len(payment.Metadata) > 0 {
		if err := json.Unmarshal(payment.Metadata, &recordMeta); err != nil {
			zapLog.Warn("unparseable payment metadata, using event payload only", zap.Error(err))
		}
	}
	meta := event.Merge(recordMeta, payload.Metadata)

	studentID := payload.StudentID
	if studentID == "" {
		studentID = payment.StudentID
	}
	courseID := payload.CourseID
	if courseID == "" {
		courseID = payment.CourseID
	}

	existing, err := s.purchases.FindOne(ctx, &Purchase{StudentID: studentID, CourseID: courseID})
	if err != nil {
		return err
	}
	if existing != nil {
		// The earlier delivery may have died between insert and emit;
		// downstream consumers are idempotent, so re-emitting is safe.
		zapLog.Info("purchase already exists, catching up")
		return s.finish(ctx, env, existing, meta, zapLog)
	}

	processed, err := s.ledger.IsProcessed(ctx, env.Type, env.CorrelationID)
	if err != nil {
		return err
	}
	if processed {
		zapLog.Warn("reconciliation: event marked processed but purchase row absent, recreating")
	}

	tier, err := event.ResolveTier(meta, s.defaultTier)
	if err != nil {
		zapLog.Error("purchase blocked on invalid tier", zap.Error(err))
		return err
	}

	metaBytes, _ := json.Marshal(meta)
	row := &Purchase{
		ID:        s.node.Generate().String(),
		StudentID: studentID,
		CourseID:  courseID,
		Tier:      tier,
		Metadata:  datatypes.JSON(metaBytes),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.purchases.Create(ctx, row); err != nil {
		if !db.IsUniqueViolation(err) {
			zapLog.Error("failed to insert purchase", zap.Error(err))
			return err
		}
		zapLog.Info("purchase created concurrently by another delivery")
	}

	created, err := s.purchases.FindOne(ctx, &Purchase{StudentID: studentID, CourseID: courseID})
	if err != nil {
		return err
	}
	if created == nil {
		return errutil.Internal("purchase row missing after insert", nil)
	}

	zapLog.Info("purchase created", zap.String("purchase_id", created.ID), zap.Int("tier", created.Tier))
	return s.finish(ctx, env, created, meta, zapLog)
}

// finish emits "purchase created" with the merged metadata forwarded
// unchanged, then marks the trigger event processed. Emission precedes
// marking so a crash in between is recoverable on redelivery.
func (s *Service) finish(ctx context.Context, env event.Envelope, row *Purchase, meta event.Metadata, zapLog *zap.Logger) error {
	err := s.emitter.Emit(ctx, event.TypePurchaseCreated, env.CorrelationID, SourceWorker, row.StudentID, event.PurchaseCreated{
		PurchaseID: row.ID,
		StudentID:  row.StudentID,
		CourseID:   row.CourseID,
		Tier:       row.Tier,
		Metadata:   meta,
	})
	if err != nil {
		zapLog.Error("failed to emit purchase created", zap.Error(err))
		return err
	}

	return s.ledger.MarkProcessedIdempotent(ctx, env.Type, env.CorrelationID, SourceWorker)
}
