// Package dates holds the time primitives shared by the scheduling and
// reconciliation code: a canonical Instant type, a normalizer for the various
// timestamp shapes the upstream API produces, average-month age arithmetic and
// the DD/MM/YYYY display codec.
//
// Everything downstream of this package deals in Instant only.
package dates

import (
	"time"
)

// Instant is an absolute point in time expressed as epoch milliseconds (UTC).
type Instant int64

const (
	MillisPerDay = int64(24 * time.Hour / time.Millisecond)

	// AvgDaysPerMonth is the average-month convention used for all age math.
	// This is intentionally NOT calendar-month arithmetic - the upstream
	// calendars were issued against this constant and the +/-1 month matching
	// tolerance depends on both directions (projection and inference) using
	// the same value.
	AvgDaysPerMonth = 30.44
)

func FromTime(t time.Time) Instant {
	return Instant(t.UnixMilli())
}

func (i Instant) Time() time.Time {
	return time.UnixMilli(int64(i)).UTC()
}

// TruncateToDay drops the time-of-day portion (UTC).
func (i Instant) TruncateToDay() Instant {
	t := i.Time()
	return FromTime(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
}
