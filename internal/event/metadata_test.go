package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coachmarket-fulfillment/pkg/errutil"
)

func TestResolveTierDefaultsWhenAbsent(t *testing.T) {
	tier, err := ResolveTier(Metadata{}, 30)
	require.NoError(t, err)
	require.Equal(t, 30, tier)
}

func TestResolveTierSessionCountWins(t *testing.T) {
	tier, err := ResolveTier(Metadata{SessionCount: IntPtr(12), PurchaseTier: IntPtr(20)}, 30)
	require.NoError(t, err)
	require.Equal(t, 12, tier)
}

func TestResolveTierPurchaseTierFallback(t *testing.T) {
	tier, err := ResolveTier(Metadata{PurchaseTier: IntPtr(20)}, 30)
	require.NoError(t, err)
	require.Equal(t, 20, tier)
}

func TestResolveTierExplicitZeroIsInvalid(t *testing.T) {
	_, err := ResolveTier(Metadata{SessionCount: IntPtr(0)}, 30)
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusInvalidTier))

	_, err = ResolveTier(Metadata{SessionCount: IntPtr(-5)}, 30)
	require.True(t, errutil.IsStatus(err, errutil.StatusInvalidTier))
}

func TestMergeAuthoritativeWins(t *testing.T) {
	merged := Merge(
		Metadata{SessionCount: IntPtr(12), TimeSlot: "6:00 AM"},
		Metadata{SessionCount: IntPtr(99), TimeSlot: "9:00 AM", StartDate: "2026-01-09"},
	)

	require.Equal(t, 12, *merged.SessionCount)
	require.Equal(t, "6:00 AM", merged.TimeSlot)
	require.Equal(t, "2026-01-09", merged.StartDate)
}

func TestResolveTimeSlot(t *testing.T) {
	require.Equal(t, "6:00 AM", ResolveTimeSlot(Metadata{TimeSlot: "6:00 AM"}, "7:00 AM"))
	require.Equal(t, "7:00 AM", ResolveTimeSlot(Metadata{}, "7:00 AM"))
}

func TestResolveStartDateParsesPreference(t *testing.T) {
	now := time.Date(2026, 1, 5, 13, 30, 0, 0, time.UTC)

	got := ResolveStartDate(Metadata{StartDate: "2026-01-09"}, now, 1)
	require.Equal(t, time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC), got)
}

func TestResolveStartDateFallsBackToOffset(t *testing.T) {
	now := time.Date(2026, 1, 5, 13, 30, 0, 0, time.UTC)

	got := ResolveStartDate(Metadata{}, now, 1)
	require.Equal(t, time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC), got)

	got = ResolveStartDate(Metadata{StartDate: "not-a-date"}, now, 1)
	require.Equal(t, time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC), got)
}

func TestResolveWeekday(t *testing.T) {
	wd, ok := ResolveWeekday(Metadata{Weekday: "Monday"})
	require.True(t, ok)
	require.Equal(t, time.Monday, wd)

	_, ok = ResolveWeekday(Metadata{Weekday: "someday"})
	require.False(t, ok)

	_, ok = ResolveWeekday(Metadata{})
	require.False(t, ok)
}
