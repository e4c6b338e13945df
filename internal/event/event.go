package event

import (
	"encoding/json"
	"fmt"
	"time"

	"coachmarket-fulfillment/pkg/errutil"

	"github.com/bwmarrin/snowflake"
)

type Type string

// The four fulfillment event types. Consumers outside the pipeline may also
// subscribe; the schemas below are stable.
const (
	TypePaymentConfirmed  Type = "payment.confirmed"
	TypePurchaseCreated   Type = "purchase.created"
	TypeResourceAllocated Type = "resource.allocated"
	TypeSessionsGenerated Type = "sessions.generated"
)

func AllTypes() []Type {
	return []Type{
		TypePaymentConfirmed,
		TypePurchaseCreated,
		TypeResourceAllocated,
		TypeSessionsGenerated,
	}
}

// Topic returns the durable-log topic for the type, e.g.
// "fulfillment.payment.confirmed".
func (t Type) Topic(prefix string) string {
	return fmt.Sprintf("%s.%s", prefix, t)
}

// Envelope wraps a business event. CorrelationID is stable across the whole
// fulfillment chain and derives from the originating payment id.
type Envelope struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	Source        string          `json:"source"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(node *snowflake.Node, t Type, correlationID, source string, payload any) (Envelope, error) {
	if correlationID == "" {
		return Envelope{}, errutil.ValidationFailed("event missing correlation id", nil)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		ID:            node.Generate().String(),
		Type:          t,
		CorrelationID: correlationID,
		Source:        source,
		OccurredAt:    time.Now().UTC(),
		Payload:       raw,
	}, nil
}

// DecodePayload unmarshals the envelope payload. A malformed payload is a
// terminal condition; redelivery cannot repair it.
func DecodePayload[T any](env Envelope) (T, error) {
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, errutil.ValidationFailed("malformed event payload", err)
	}
	return payload, nil
}

type PaymentConfirmed struct {
	PaymentID string   `json:"payment_id"`
	StudentID string   `json:"student_id"`
	CourseID  string   `json:"course_id"`
	Metadata  Metadata `json:"metadata"`
}

type PurchaseCreated struct {
	PurchaseID string   `json:"purchase_id"`
	StudentID  string   `json:"student_id"`
	CourseID   string   `json:"course_id"`
	Tier       int      `json:"tier"`
	Metadata   Metadata `json:"metadata"`
}

type ResourceAllocated struct {
	AllocationID string   `json:"allocation_id"`
	StudentID    string   `json:"student_id"`
	CourseID     string   `json:"course_id"`
	TrainerID    string   `json:"trainer_id"`
	Tier         int      `json:"tier"`
	Metadata     Metadata `json:"metadata"`
}

type SessionsGenerated struct {
	AllocationID string `json:"allocation_id"`
	StudentID    string `json:"student_id"`
	CourseID     string `json:"course_id"`
	SessionCount int    `json:"session_count"`
}
