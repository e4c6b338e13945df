package schedule

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/config"
	"coachmarket-fulfillment/pkg/rediskey"
	"coachmarket-fulfillment/services/allocation"
	"coachmarket-fulfillment/services/cachework"
	"coachmarket-fulfillment/services/demand"
	"coachmarket-fulfillment/services/ledger"
	"coachmarket-fulfillment/services/purchase"
	"coachmarket-fulfillment/services/testutil"
)

type demandMock struct {
	blocked []demand.BlockedPayload
}

func (m *demandMock) LogBlocked(ctx context.Context, p demand.BlockedPayload) {
	m.blocked = append(m.blocked, p)
}

type cacheMock struct {
	evicted []string
}

func (m *cacheMock) Invalidate(ctx context.Context, keys ...string) error {
	m.evicted = append(m.evicted, keys...)
	return nil
}

// pipeline wires every worker's handler against one database and one
// loopback durable log, so a published event is consumed in-process.
type pipeline struct {
	db       *gorm.DB
	durable  *durableMock
	demand   *demandMock
	cache    *cacheMock
	ledger   *ledger.Service
	purchase *purchase.Service
	allocate *allocation.Service
	schedule *Service
	evict    *cachework.Service
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	db := testutil.NewTestDB(t,
		&ledger.ProcessedEvent{},
		&purchase.Purchase{},
		&purchase.Payment{},
		&allocation.Allocation{},
		&allocation.Trainer{},
		&Session{},
		&StudentProfile{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Kafka.TopicPrefix = "fulfillment"
	cfg.Fulfillment.DefaultTier = 30
	cfg.Fulfillment.DefaultTimeSlot = "7:00 AM"
	cfg.Fulfillment.StartDateOffsetDays = 1

	durable := &durableMock{}
	demandSink := &demandMock{}
	cache := &cacheMock{}

	emitter := event.NewEmitter(event.EmitterParams{
		Durable:  durable,
		Notifier: &notifierMock{},
		Node:     node,
		Config:   cfg,
	})

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})

	return &pipeline{
		db:      db,
		durable: durable,
		demand:  demandSink,
		cache:   cache,
		ledger:  ledgerSvc,
		purchase: purchase.NewService(purchase.ServiceParams{
			DB:       db,
			Node:     node,
			Payments: purchase.NewPaymentStore(db),
			Ledger:   ledgerSvc,
			Emitter:  emitter,
			Config:   cfg,
		}),
		allocate: allocation.NewService(allocation.ServiceParams{
			DB:       db,
			Node:     node,
			Ledger:   ledgerSvc,
			Emitter:  emitter,
			Assigner: allocation.NewRoster(db, node),
			Demand:   demandSink,
			Config:   cfg,
		}),
		schedule: NewService(ServiceParams{
			DB:       db,
			Node:     node,
			Ledger:   ledgerSvc,
			Emitter:  emitter,
			Profiles: NewProfileStore(db),
			Config:   cfg,
		}),
		evict: cachework.NewService(cachework.ServiceParams{Cache: cache}),
	}
}

// run drains the durable log: every published event is dispatched to its
// consumer (and the cache worker) until the chain settles.
func (p *pipeline) run(t *testing.T, ctx context.Context, trigger event.Envelope) {
	t.Helper()

	require.NoError(t, p.dispatch(ctx, trigger))
	for cursor := 0; cursor < len(p.durable.msgs); cursor++ {
		var env event.Envelope
		require.NoError(t, json.Unmarshal(p.durable.msgs[cursor].Value, &env))
		require.NoError(t, p.dispatch(ctx, env))
	}
}

func (p *pipeline) dispatch(ctx context.Context, env event.Envelope) error {
	if err := p.evict.HandleEvent(ctx, env); err != nil {
		return err
	}

	switch env.Type {
	case event.TypePaymentConfirmed:
		return p.purchase.HandlePaymentConfirmed(ctx, env)
	case event.TypePurchaseCreated:
		return p.allocate.HandlePurchaseCreated(ctx, env)
	case event.TypeResourceAllocated:
		return p.schedule.HandleResourceAllocated(ctx, env)
	default:
		return nil
	}
}

func (p *pipeline) seedPayment(t *testing.T, meta event.Metadata) {
	t.Helper()

	metaBytes, err := json.Marshal(meta)
	require.NoError(t, err)

	require.NoError(t, p.db.Create(&purchase.Payment{
		ID:        "pay-1",
		StudentID: "stu-1",
		CourseID:  "course-1",
		Status:    "confirmed",
		Metadata:  datatypes.JSON(metaBytes),
	}).Error)
}

func paymentConfirmed(t *testing.T) event.Envelope {
	t.Helper()

	payload, err := json.Marshal(event.PaymentConfirmed{
		PaymentID: "pay-1",
		StudentID: "stu-1",
		CourseID:  "course-1",
	})
	require.NoError(t, err)

	return event.Envelope{
		ID:            "evt-1",
		Type:          event.TypePaymentConfirmed,
		CorrelationID: "pay-1",
		Source:        "payment-gateway",
		Payload:       payload,
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.seedPayment(t, event.Metadata{
		SessionCount: event.IntPtr(30),
		TimeSlot:     "6:00 AM",
		StartDate:    "2026-01-09",
	})
	require.NoError(t, p.db.Create(&allocation.Trainer{
		ID: "tr-1", Name: "Trainer One", CourseID: "course-1", Capacity: 10, IsActive: true,
	}).Error)

	p.run(t, ctx, paymentConfirmed(t))

	var pur purchase.Purchase
	require.NoError(t, p.db.First(&pur).Error)
	require.Equal(t, 30, pur.Tier)
	require.True(t, pur.IsActive)

	var alloc allocation.Allocation
	require.NoError(t, p.db.First(&alloc).Error)
	require.Equal(t, "tr-1", alloc.TrainerID)
	require.Equal(t, allocation.StatusApproved, alloc.Status)

	var sessions []Session
	require.NoError(t, p.db.Order("scheduled_date asc").Find(&sessions).Error)
	require.Len(t, sessions, 30)
	require.True(t, sessions[0].ScheduledDate.Equal(time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)))
	for _, s := range sessions {
		require.Equal(t, alloc.ID, s.AllocationID)
		require.Equal(t, "6:00 AM", s.ScheduledTime)
	}

	// Three durable events after the trigger, one ledger row per stage,
	// all on the same correlation id.
	require.Len(t, p.durable.msgs, 3)
	testutil.RequireRowCount(t, p.db, &ledger.ProcessedEvent{}, 3, "correlation_id = ?", "pay-1")

	require.Contains(t, p.cache.evicted, rediskey.BuildStudentKey("stu-1"))
	require.Contains(t, p.cache.evicted, rediskey.BuildStudentCourseKey("stu-1", "course-1"))

	require.Empty(t, p.demand.blocked)
}

func TestPipelineReplayIsExactlyOnce(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.seedPayment(t, event.Metadata{SessionCount: event.IntPtr(10), StartDate: "2026-01-09"})
	require.NoError(t, p.db.Create(&allocation.Trainer{
		ID: "tr-1", Name: "Trainer One", CourseID: "course-1", Capacity: 10, IsActive: true,
	}).Error)

	p.run(t, ctx, paymentConfirmed(t))
	p.run(t, ctx, paymentConfirmed(t))

	testutil.RequireRowCount(t, p.db, &purchase.Purchase{}, 1, "")
	testutil.RequireRowCount(t, p.db, &allocation.Allocation{}, 1, "")
	testutil.RequireRowCount(t, p.db, &Session{}, 10, "")
	testutil.RequireRowCount(t, p.db, &ledger.ProcessedEvent{}, 3, "")
}

func TestPipelineBlockedAllocation(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	// No trainer on the roster for this course.
	p.seedPayment(t, event.Metadata{SessionCount: event.IntPtr(10)})

	p.run(t, ctx, paymentConfirmed(t))

	testutil.RequireRowCount(t, p.db, &purchase.Purchase{}, 1, "")
	testutil.RequireRowCount(t, p.db, &allocation.Allocation{}, 0, "")
	testutil.RequireRowCount(t, p.db, &Session{}, 0, "")

	// Only purchase.created reached the durable log; both processed events
	// are marked so nothing redelivers.
	require.Len(t, p.durable.msgs, 1)
	require.Len(t, p.demand.blocked, 1)
	require.Equal(t, "course-1", p.demand.blocked[0].CourseID)
	testutil.RequireRowCount(t, p.db, &ledger.ProcessedEvent{}, 2, "")
}
