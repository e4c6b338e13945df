package allocation

import (
	"context"
	"encoding/json"
	"time"

	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/db"
	"coachmarket-fulfillment/pkg/errutil"
	"coachmarket-fulfillment/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AssignRequest struct {
	StudentID string
	CourseID  string
	TimeSlot  string
	StartDate time.Time
	Metadata  event.Metadata
}

type AssignResult struct {
	AllocationID string
	TrainerID    string
}

// Assigner is the allocation subsystem port. AutoAssign returns a
// NO_TRAINER_AVAILABLE error when every covering trainer is at capacity and
// a retryable error on store failure.
type Assigner interface {
	AutoAssign(ctx context.Context, req AssignRequest) (*AssignResult, error)
}

// Roster is the storage-backed Assigner: it picks the least-loaded active
// trainer covering the course and records the allocation as approved.
type Roster struct {
	db   *gorm.DB
	node *snowflake.Node

	trainers    repository.Repository[Trainer]
	allocations repository.Repository[Allocation]
}

func NewRoster(database *gorm.DB, node *snowflake.Node) *Roster {
	return &Roster{
		db:          database,
		node:        node,
		trainers:    repository.ProvideStore[Trainer](database),
		allocations: repository.ProvideStore[Allocation](database),
	}
}

func (r *Roster) AutoAssign(ctx context.Context, req AssignRequest) (*AssignResult, error) {
	trainers, err := r.trainers.Find(ctx, &Trainer{CourseID: req.CourseID, IsActive: true})
	if err != nil {
		return nil, errutil.Unavailable("allocation store unavailable", err)
	}

	var chosen *Trainer
	var chosenLoad int64
	for _, trainer := range trainers {
		var load int64
		err := r.db.WithContext(ctx).Model(&Allocation{}).
			Where("trainer_id = ? AND status IN ?", trainer.ID, []string{StatusApproved, StatusActive}).
			Count(&load).Error
		if err != nil {
			return nil, errutil.Unavailable("allocation store unavailable", err)
		}

		if load >= int64(trainer.Capacity) {
			continue
		}
		if chosen == nil || load < chosenLoad {
			chosen = trainer
			chosenLoad = load
		}
	}

	if chosen == nil {
		return nil, errutil.NoTrainerAvailable("no trainer with spare capacity for course", nil)
	}

	meta := req.Metadata
	meta.TimeSlot = req.TimeSlot
	meta.StartDate = req.StartDate.Format("2006-01-02")
	metaBytes, _ := json.Marshal(meta)

	row := &Allocation{
		ID:        r.node.Generate().String(),
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		TrainerID: chosen.ID,
		Status:    StatusApproved,
		Metadata:  datatypes.JSON(metaBytes),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := r.allocations.Create(ctx, row); err != nil {
		if !db.IsUniqueViolation(err) {
			return nil, errutil.Unavailable("failed to record allocation", err)
		}

		// Concurrent redelivery won the insert; reuse its row.
		existing, ferr := r.allocations.FindOne(ctx, &Allocation{StudentID: req.StudentID, CourseID: req.CourseID})
		if ferr != nil {
			return nil, ferr
		}
		if existing == nil {
			return nil, errutil.Internal("allocation row missing after duplicate insert", nil)
		}
		zap.L().Info("allocation created concurrently by another delivery",
			zap.String("allocation_id", existing.ID),
			zap.String("student_id", req.StudentID),
		)
		return &AssignResult{AllocationID: existing.ID, TrainerID: existing.TrainerID}, nil
	}

	return &AssignResult{AllocationID: row.ID, TrainerID: chosen.ID}, nil
}
