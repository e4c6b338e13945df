package ledger

import "time"

// ProcessedEvent is one row of the idempotency ledger: proof that a logical
// event already produced its side effect. Rows are only ever inserted or
// read, never updated.
type ProcessedEvent struct {
	ID            string    `gorm:"column:id;primaryKey"`
	EventType     string    `gorm:"column:event_type;uniqueIndex:idx_processed_events_type_corr"`
	CorrelationID string    `gorm:"column:correlation_id;uniqueIndex:idx_processed_events_type_corr"`
	SourceWorker  string    `gorm:"column:source_worker"`
	ProcessedAt   time.Time `gorm:"column:processed_at"`
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}
