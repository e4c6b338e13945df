package deadletter

import (
	"time"

	"gorm.io/datatypes"
)

// Entry is a terminal record of an event that exhausted its retry budget or
// hit a domain block the pipeline cannot clear. The original envelope is
// kept verbatim so the operator replay tool can re-publish it unchanged.
type Entry struct {
	ID            string         `gorm:"column:id;primaryKey"`
	Topic         string         `gorm:"column:topic"`
	PartitionKey  string         `gorm:"column:partition_key"`
	OriginalEvent datatypes.JSON `gorm:"column:original_event"`
	FailureReason string         `gorm:"column:failure_reason"`
	AttemptCount  int            `gorm:"column:attempt_count"`
	FirstFailedAt time.Time      `gorm:"column:first_failed_at"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
}

func (Entry) TableName() string {
	return "dead_letter_entries"
}
