package demand

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const TypeAllocationBlocked = "demand:allocation_blocked"

// BlockedPayload is the demand signal recorded when no trainer could be
// assigned. The analytics consumer uses it to drive recruiting and the
// waitlist-fulfillment trigger.
type BlockedPayload struct {
	StudentID     string    `json:"student_id"`
	CourseID      string    `json:"course_id"`
	Reason        string    `json:"reason"`
	CorrelationID string    `json:"correlation_id"`
	BlockedAt     time.Time `json:"blocked_at"`
}

func NewAllocationBlockedTask(p BlockedPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAllocationBlocked, payload,
		asynq.Queue("demand-signals")), nil
}

var Module = fx.Module("demand",
	fx.Provide(NewRecorder),
)

// Recorder enqueues demand signals, fire-and-forget. A lost signal skews
// analytics but never blocks the pipeline.
type Recorder struct {
	client *asynq.Client
}

type RecorderParams struct {
	fx.In
	Client *asynq.Client
}

func NewRecorder(p RecorderParams) *Recorder {
	return &Recorder{client: p.Client}
}

func (r *Recorder) LogBlocked(ctx context.Context, p BlockedPayload) {
	zapLog := zap.L().With(
		zap.String("student_id", p.StudentID),
		zap.String("course_id", p.CourseID),
		zap.String("correlation_id", p.CorrelationID),
	)

	task, err := NewAllocationBlockedTask(p)
	if err != nil {
		zapLog.Warn("failed to build demand signal task", zap.Error(err))
		return
	}

	if _, err := r.client.EnqueueContext(ctx, task); err != nil {
		zapLog.Warn("failed to enqueue demand signal", zap.Error(err))
		return
	}

	zapLog.Info("demand signal recorded", zap.String("reason", p.Reason))
}
