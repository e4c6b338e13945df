package schedule

import "time"

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Session is one training appointment. A bounded batch (the purchase tier)
// is generated per allocation, never topped up by this pipeline.
type Session struct {
	ID            string    `gorm:"column:id;primaryKey"`
	AllocationID  string    `gorm:"column:allocation_id;index"`
	ScheduledDate time.Time `gorm:"column:scheduled_date"`
	ScheduledTime string    `gorm:"column:scheduled_time"`
	Status        string    `gorm:"column:status"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// StudentProfile carries the meeting-point coordinates sessions may require.
// Owned by the profile service; read-only here.
type StudentProfile struct {
	ID        string   `gorm:"column:id;primaryKey"`
	Latitude  *float64 `gorm:"column:latitude"`
	Longitude *float64 `gorm:"column:longitude"`
}

func (StudentProfile) TableName() string {
	return "student_profiles"
}
