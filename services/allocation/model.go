package allocation

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// Allocation binds a student/course purchase to a trainer. One active
// allocation per (student, course), enforced by the composite unique index.
type Allocation struct {
	ID        string         `gorm:"column:id;primaryKey"`
	StudentID string         `gorm:"column:student_id;uniqueIndex:idx_allocations_student_course"`
	CourseID  string         `gorm:"column:course_id;uniqueIndex:idx_allocations_student_course"`
	TrainerID string         `gorm:"column:trainer_id;index"`
	Status    string         `gorm:"column:status"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (Allocation) TableName() string {
	return "allocations"
}

// Trainer is one roster row. Capacity bounds concurrent approved/active
// allocations.
type Trainer struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name"`
	CourseID  string    `gorm:"column:course_id;index"`
	Capacity  int       `gorm:"column:capacity"`
	IsActive  bool      `gorm:"column:is_active"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Trainer) TableName() string {
	return "trainers"
}
