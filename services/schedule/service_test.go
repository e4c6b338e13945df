package schedule

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/config"
	"coachmarket-fulfillment/pkg/errutil"
	"coachmarket-fulfillment/services/ledger"
	"coachmarket-fulfillment/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type publishedMsg struct {
	Topic string
	Key   string
	Value []byte
}

type durableMock struct {
	msgs []publishedMsg
}

func (m *durableMock) Publish(ctx context.Context, topic, key string, value []byte) error {
	m.msgs = append(m.msgs, publishedMsg{Topic: topic, Key: key, Value: value})
	return nil
}

type notifierMock struct {
	msgs []publishedMsg
}

func (m *notifierMock) Notify(ctx context.Context, studentID string, payload []byte) error {
	m.msgs = append(m.msgs, publishedMsg{Key: studentID, Value: payload})
	return nil
}

type fixture struct {
	svc     *Service
	ledger  *ledger.Service
	durable *durableMock
}

func newFixture(t *testing.T, requireMeetingPoint bool) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &Session{}, &StudentProfile{}, &ledger.ProcessedEvent{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Kafka.TopicPrefix = "fulfillment"
	cfg.Fulfillment.DefaultTimeSlot = "7:00 AM"
	cfg.Fulfillment.StartDateOffsetDays = 1
	cfg.Fulfillment.RequireMeetingPoint = requireMeetingPoint

	durable := &durableMock{}
	emitter := event.NewEmitter(event.EmitterParams{
		Durable:  durable,
		Notifier: &notifierMock{},
		Node:     node,
		Config:   cfg,
	})

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})

	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Ledger:   ledgerSvc,
		Emitter:  emitter,
		Profiles: NewProfileStore(db),
		Config:   cfg,
	})

	return &fixture{svc: svc, ledger: ledgerSvc, durable: durable}
}

func allocatedEnvelope(t *testing.T, tier int, meta event.Metadata) event.Envelope {
	t.Helper()

	payload, err := json.Marshal(event.ResourceAllocated{
		AllocationID: "alloc-1",
		StudentID:    "stu-1",
		CourseID:     "course-1",
		TrainerID:    "tr-1",
		Tier:         tier,
		Metadata:     meta,
	})
	require.NoError(t, err)

	return event.Envelope{
		ID:            "evt-3",
		Type:          event.TypeResourceAllocated,
		CorrelationID: "pay-1",
		Source:        "allocation-worker",
		Payload:       payload,
	}
}

func TestGeneratesExactlyTierSessions(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	env := allocatedEnvelope(t, 30, event.Metadata{StartDate: "2026-01-09", TimeSlot: "6:00 AM"})
	require.NoError(t, f.svc.HandleResourceAllocated(ctx, env))

	var rows []Session
	require.NoError(t, f.svc.db.Order("scheduled_date asc").Find(&rows).Error)
	require.Len(t, rows, 30)

	require.True(t, rows[0].ScheduledDate.Equal(time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)))
	require.True(t, rows[29].ScheduledDate.Equal(time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)))
	for _, row := range rows {
		require.Equal(t, "alloc-1", row.AllocationID)
		require.Equal(t, "6:00 AM", row.ScheduledTime)
		require.Equal(t, StatusScheduled, row.Status)
	}

	require.Len(t, f.durable.msgs, 1)
	require.Equal(t, "fulfillment.sessions.generated", f.durable.msgs[0].Topic)

	processed, err := f.ledger.IsProcessed(ctx, event.TypeResourceAllocated, "pay-1")
	require.NoError(t, err)
	require.True(t, processed)
}

func TestWeekdayConstraintSpacesWeekly(t *testing.T) {
	f := newFixture(t, false)

	// 2026-01-09 is a Friday; the first Monday on or after is the 12th.
	env := allocatedEnvelope(t, 4, event.Metadata{StartDate: "2026-01-09", Weekday: "monday"})
	require.NoError(t, f.svc.HandleResourceAllocated(context.Background(), env))

	var rows []Session
	require.NoError(t, f.svc.db.Order("scheduled_date asc").Find(&rows).Error)
	require.Len(t, rows, 4)

	want := []time.Time{
		time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
	}
	for i, row := range rows {
		require.True(t, row.ScheduledDate.Equal(want[i]), "session %d on %s", i, row.ScheduledDate)
		require.Equal(t, time.Monday, row.ScheduledDate.Weekday())
	}
}

func TestNeverRegeneratesExistingBatch(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.svc.db.Create(&Session{
		ID:            "sess-existing",
		AllocationID:  "alloc-1",
		ScheduledDate: time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
		ScheduledTime: "6:00 AM",
		Status:        StatusScheduled,
	}).Error)

	env := allocatedEnvelope(t, 30, event.Metadata{StartDate: "2026-01-09"})
	require.NoError(t, f.svc.HandleResourceAllocated(ctx, env))

	// One pre-existing session means the batch is considered generated,
	// even though it is short of the tier.
	testutil.RequireRowCount(t, f.svc.db, &Session{}, 1, "")
	require.Empty(t, f.durable.msgs)

	processed, err := f.ledger.IsProcessed(ctx, event.TypeResourceAllocated, "pay-1")
	require.NoError(t, err)
	require.True(t, processed)
}

func TestMissingMeetingPointBlocks(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	err := f.svc.HandleResourceAllocated(ctx, allocatedEnvelope(t, 30, event.Metadata{}))
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusMissingGeolocation))

	testutil.RequireRowCount(t, f.svc.db, &Session{}, 0, "")

	processed, perr := f.ledger.IsProcessed(ctx, event.TypeResourceAllocated, "pay-1")
	require.NoError(t, perr)
	require.False(t, processed)
}

func TestMeetingPointPresentGenerates(t *testing.T) {
	f := newFixture(t, true)

	lat, lng := -6.2, 106.8
	require.NoError(t, f.svc.db.Create(&StudentProfile{ID: "stu-1", Latitude: &lat, Longitude: &lng}).Error)

	env := allocatedEnvelope(t, 5, event.Metadata{StartDate: "2026-01-09"})
	require.NoError(t, f.svc.HandleResourceAllocated(context.Background(), env))

	testutil.RequireRowCount(t, f.svc.db, &Session{}, 5, "")
}

func TestNonPositiveTierRejected(t *testing.T) {
	f := newFixture(t, false)

	err := f.svc.HandleResourceAllocated(context.Background(), allocatedEnvelope(t, 0, event.Metadata{}))
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestSessionDates(t *testing.T) {
	start := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC) // Friday

	daily := sessionDates(start, 3, nil)
	require.Equal(t, []time.Time{
		time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC),
	}, daily)

	monday := time.Monday
	weekly := sessionDates(start, 2, &monday)
	require.Equal(t, []time.Time{
		time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC),
	}, weekly)

	// Start already on the constrained weekday stays put.
	friday := time.Friday
	sameDay := sessionDates(start, 1, &friday)
	require.Equal(t, start, sameDay[0])
}
