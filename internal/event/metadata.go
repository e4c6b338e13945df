package event

import (
	"strings"
	"time"

	"coachmarket-fulfillment/pkg/errutil"
)

// Metadata carries schedule preferences and pricing context through the
// fulfillment chain. Pointer fields distinguish "absent" from an explicit
// zero, which matters for tier validation.
type Metadata struct {
	SessionCount *int   `json:"session_count,omitempty"`
	PurchaseTier *int   `json:"purchase_tier,omitempty"`
	TimeSlot     string `json:"time_slot,omitempty"`
	StartDate    string `json:"start_date,omitempty"` // YYYY-MM-DD
	Weekday      string `json:"weekday,omitempty"`
	PriceAmount  int64  `json:"price_amount,omitempty"`
	Currency     string `json:"currency,omitempty"`
}

// Merge combines two metadata blobs. Fields set on authoritative (the
// payment record) win over fallback (the event payload); the event may have
// been enriched or staled in transit.
func Merge(authoritative, fallback Metadata) Metadata {
	merged := authoritative

	if merged.SessionCount == nil {
		merged.SessionCount = fallback.SessionCount
	}
	if merged.PurchaseTier == nil {
		merged.PurchaseTier = fallback.PurchaseTier
	}
	if merged.TimeSlot == "" {
		merged.TimeSlot = fallback.TimeSlot
	}
	if merged.StartDate == "" {
		merged.StartDate = fallback.StartDate
	}
	if merged.Weekday == "" {
		merged.Weekday = fallback.Weekday
	}
	if merged.PriceAmount == 0 {
		merged.PriceAmount = fallback.PriceAmount
	}
	if merged.Currency == "" {
		merged.Currency = fallback.Currency
	}

	return merged
}

// ResolveTier resolves the session tier in documented order: session count,
// then purchase tier, then the configured default. An explicit non-positive
// value is invalid rather than defaulted.
func ResolveTier(m Metadata, defaultTier int) (int, error) {
	tier := defaultTier
	switch {
	case m.SessionCount != nil:
		tier = *m.SessionCount
	case m.PurchaseTier != nil:
		tier = *m.PurchaseTier
	}

	if tier <= 0 {
		return 0, errutil.InvalidTier("resolved session tier must be positive", nil)
	}
	return tier, nil
}

// ResolveTimeSlot falls back to the configured default when the metadata has
// no preference. Tolerant parsing: absence is a preference, not an error.
func ResolveTimeSlot(m Metadata, defaultSlot string) string {
	if m.TimeSlot != "" {
		return m.TimeSlot
	}
	return defaultSlot
}

// ResolveStartDate parses the preferred start date, falling back to
// now+offsetDays when absent or unparseable.
func ResolveStartDate(m Metadata, now time.Time, offsetDays int) time.Time {
	if m.StartDate != "" {
		if d, err := time.Parse("2006-01-02", m.StartDate); err == nil {
			return d
		}
	}

	fallback := now.AddDate(0, 0, offsetDays)
	return time.Date(fallback.Year(), fallback.Month(), fallback.Day(), 0, 0, 0, 0, time.UTC)
}

// ResolveWeekday reports the weekday-only constraint, if any.
func ResolveWeekday(m Metadata) (time.Weekday, bool) {
	weekdays := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}

	if wd, ok := weekdays[strings.ToLower(m.Weekday)]; ok {
		return wd, true
	}
	return time.Sunday, false
}

// IntPtr is a convenience for building metadata literals.
func IntPtr(v int) *int { return &v }
