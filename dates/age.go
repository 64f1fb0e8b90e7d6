package dates

import (
	"math"
)

// AgeInMonths returns the elapsed age between birth and at, in average-length
// months (see AvgDaysPerMonth). The result is deliberately unclamped: a
// reference before birth yields a negative age, which matching logic relies on
// to keep pre-birth records away from future-dated schedule entries.
func AgeInMonths(birth, at Instant) float64 {
	days := float64(at-birth) / float64(MillisPerDay)
	return days / AvgDaysPerMonth
}

// AgeInMonthsClamped is AgeInMonths floored at 0; display-only.
func AgeInMonthsClamped(birth, at Instant) float64 {
	if age := AgeInMonths(birth, at); age > 0 {
		return age
	}

	return 0
}

// ProjectMonths resolves a target age in months to a concrete date. The day
// count is rounded once here; the fractional month value itself is never
// rounded so that chained projections do not compound error.
func ProjectMonths(birth Instant, months float64) Instant {
	days := int64(math.Round(months * AvgDaysPerMonth))
	return birth + Instant(days*MillisPerDay)
}

// ProjectWeeks resolves a target age in weeks to a concrete date. Weeks use
// exact 7-day arithmetic, not the average-month constant.
func ProjectWeeks(birth Instant, weeks int) Instant {
	return birth + Instant(int64(weeks)*7*MillisPerDay)
}
