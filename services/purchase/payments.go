package purchase

import (
	"context"

	"coachmarket-fulfillment/pkg/errutil"
	"coachmarket-fulfillment/pkg/repository"

	"gorm.io/gorm"
)

// PaymentStore reads authoritative payment records.
type PaymentStore interface {
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

type paymentStore struct {
	payments repository.Repository[Payment]
}

func NewPaymentStore(db *gorm.DB) PaymentStore {
	return &paymentStore{payments: repository.ProvideStore[Payment](db)}
}

func (s *paymentStore) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	payment, err := s.payments.FindOne(ctx, &Payment{ID: paymentID})
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, errutil.NotFound("payment record not found", nil)
	}
	return payment, nil
}
