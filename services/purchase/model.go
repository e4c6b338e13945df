package purchase

import (
	"time"

	"gorm.io/datatypes"
)

// Purchase is the fulfillment record created from a confirmed payment. The
// composite unique index is what turns a concurrent redelivery's insert into
// a detectable no-op.
type Purchase struct {
	ID        string         `gorm:"column:id;primaryKey"`
	StudentID string         `gorm:"column:student_id;uniqueIndex:idx_purchases_student_course"`
	CourseID  string         `gorm:"column:course_id;uniqueIndex:idx_purchases_student_course"`
	Tier      int            `gorm:"column:tier"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
	IsActive  bool           `gorm:"column:is_active"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (Purchase) TableName() string {
	return "purchases"
}

// Payment is the authoritative payment record. Read-only from this pipeline;
// the payment gateway integration owns writes.
type Payment struct {
	ID        string         `gorm:"column:id;primaryKey"`
	StudentID string         `gorm:"column:student_id"`
	CourseID  string         `gorm:"column:course_id"`
	Status    string         `gorm:"column:status"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (Payment) TableName() string {
	return "payments"
}
