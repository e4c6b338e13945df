package ledger

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/errutil"
	"coachmarket-fulfillment/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &ProcessedEvent{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestMarkAndIsProcessed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	processed, err := svc.IsProcessed(ctx, event.TypePaymentConfirmed, "pay-1")
	require.NoError(t, err)
	require.False(t, processed)

	require.NoError(t, svc.MarkProcessed(ctx, event.TypePaymentConfirmed, "pay-1", "purchase-worker"))

	processed, err = svc.IsProcessed(ctx, event.TypePaymentConfirmed, "pay-1")
	require.NoError(t, err)
	require.True(t, processed)
}

func TestMarkProcessedDuplicateIsConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.MarkProcessed(ctx, event.TypePaymentConfirmed, "pay-1", "purchase-worker"))

	err := svc.MarkProcessed(ctx, event.TypePaymentConfirmed, "pay-1", "purchase-worker")
	require.Error(t, err)
	require.True(t, errutil.IsConflict(err))
}

func TestMarkProcessedIdempotentAbsorbsDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.MarkProcessedIdempotent(ctx, event.TypePurchaseCreated, "pay-1", "allocation-worker"))
	require.NoError(t, svc.MarkProcessedIdempotent(ctx, event.TypePurchaseCreated, "pay-1", "allocation-worker"))

	testutil.RequireRowCount(t, svc.db, &ProcessedEvent{}, 1, "")
}

func TestSameCorrelationDistinctTypes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// The whole chain shares one correlation id; each stage gets its own
	// ledger row keyed by event type.
	require.NoError(t, svc.MarkProcessed(ctx, event.TypePaymentConfirmed, "pay-1", "purchase-worker"))
	require.NoError(t, svc.MarkProcessed(ctx, event.TypePurchaseCreated, "pay-1", "allocation-worker"))
	require.NoError(t, svc.MarkProcessed(ctx, event.TypeResourceAllocated, "pay-1", "schedule-worker"))

	testutil.RequireRowCount(t, svc.db, &ProcessedEvent{}, 3, "correlation_id = ?", "pay-1")
}
