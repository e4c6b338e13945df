package schedule

import (
	"context"
	"time"

	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/config"
	"coachmarket-fulfillment/pkg/errutil"
	"coachmarket-fulfillment/pkg/repository"
	"coachmarket-fulfillment/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const SourceWorker = "schedule-worker"

// Service generates the rolling window of sessions for each allocation.
// Idempotency here is structural: any existing session for the allocation
// means the batch was generated and must never be regenerated or topped up.
type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	ledger   *ledger.Service
	emitter  *event.Emitter
	profiles ProfileStore

	sessions repository.Repository[Session]

	defaultTimeSlot     string
	startOffsetDays     int
	requireMeetingPoint bool
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Ledger   *ledger.Service
	Emitter  *event.Emitter
	Profiles ProfileStore
	Config   *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:                  p.DB,
		node:                p.Node,
		ledger:              p.Ledger,
		emitter:             p.Emitter,
		profiles:            p.Profiles,
		sessions:            repository.ProvideStore[Session](p.DB),
		defaultTimeSlot:     p.Config.Fulfillment.DefaultTimeSlot,
		startOffsetDays:     p.Config.Fulfillment.StartDateOffsetDays,
		requireMeetingPoint: p.Config.Fulfillment.RequireMeetingPoint,
	}
}

// HandleResourceAllocated generates exactly tier sessions. A missing
// meeting point is a domain block: redelivery cannot fix absent profile
// data, so the event dead-letters instead of retrying forever.
func (s *Service) HandleResourceAllocated(ctx context.Context, env event.Envelope) error {
	payload, err := event.DecodePayload[event.ResourceAllocated](env)
	if err != nil {
		return err
	}

	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("correlation_id", env.CorrelationID),
		zap.String("allocation_id", payload.AllocationID),
		zap.String("student_id", payload.StudentID),
	)

	count, err := s.sessions.Count(ctx, &Session{AllocationID: payload.AllocationID})
	if err != nil {
		return err
	}
	if count > 0 {
		zapLog.Info("sessions already generated, skipping", zap.Int64("session_count", count))
		return s.ledger.MarkProcessedIdempotent(ctx, env.Type, env.CorrelationID, SourceWorker)
	}

	processed, err := s.ledger.IsProcessed(ctx, env.Type, env.CorrelationID)
	if err != nil {
		return err
	}
	if processed {
		zapLog.Warn("reconciliation: event marked processed but no sessions exist, regenerating")
	}

	if s.requireMeetingPoint {
		profile, err := s.profiles.GetProfile(ctx, payload.StudentID)
		if err != nil {
			return err
		}
		if profile == nil || profile.Latitude == nil || profile.Longitude == nil {
			zapLog.Error("schedule blocked on missing meeting point")
			return errutil.MissingGeolocation("student has no meeting point coordinates", nil)
		}
	}

	if payload.Tier <= 0 {
		return errutil.ValidationFailed("resource allocated event carries non-positive tier", nil)
	}

	timeSlot := event.ResolveTimeSlot(payload.Metadata, s.defaultTimeSlot)
	start := event.ResolveStartDate(payload.Metadata, time.Now(), s.startOffsetDays)

	var weekdayPtr *time.Weekday
	if wd, ok := event.ResolveWeekday(payload.Metadata); ok {
		weekdayPtr = &wd
	}

	rows := make([]*Session, 0, payload.Tier)
	for _, date := range sessionDates(start, payload.Tier, weekdayPtr) {
		rows = append(rows, &Session{
			ID:            s.node.Generate().String(),
			AllocationID:  payload.AllocationID,
			ScheduledDate: date,
			ScheduledTime: timeSlot,
			Status:        StatusScheduled,
			CreatedAt:     time.Now().UTC(),
		})
	}

	if err := s.sessions.BatchCreate(ctx, rows); err != nil {
		zapLog.Error("failed to insert sessions", zap.Error(err))
		return err
	}

	created, err := s.sessions.Count(ctx, &Session{AllocationID: payload.AllocationID})
	if err != nil {
		return err
	}
	if created == 0 {
		return errutil.Internal("session rows missing after insert", nil)
	}

	zapLog.Info("sessions generated",
		zap.Int64("session_count", created),
		zap.String("first_date", start.Format("2006-01-02")),
		zap.String("time_slot", timeSlot),
	)

	err = s.emitter.Emit(ctx, event.TypeSessionsGenerated, env.CorrelationID, SourceWorker, payload.StudentID, event.SessionsGenerated{
		AllocationID: payload.AllocationID,
		StudentID:    payload.StudentID,
		CourseID:     payload.CourseID,
		SessionCount: int(created),
	})
	if err != nil {
		zapLog.Error("failed to emit sessions generated", zap.Error(err))
		return err
	}

	return s.ledger.MarkProcessedIdempotent(ctx, env.Type, env.CorrelationID, SourceWorker)
}

// sessionDates returns count dates starting at start. With a weekday
// constraint the dates fall on consecutive occurrences of that weekday,
// otherwise they advance daily.
func sessionDates(start time.Time, count int, weekday *time.Weekday) []time.Time {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	if weekday != nil {
		for day.Weekday() != *weekday {
			day = day.AddDate(0, 0, 1)
		}
	}

	dates := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		dates = append(dates, day)
		if weekday != nil {
			day = day.AddDate(0, 0, 7)
		} else {
			day = day.AddDate(0, 0, 1)
		}
	}
	return dates
}
