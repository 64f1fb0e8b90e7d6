package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func instant(year int, month time.Month, day int) Instant {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func TestAgeInMonths(t *testing.T) {
	birth := instant(2024, 1, 1)

	tests := []struct {
		name     string
		at       Instant
		expected float64
		delta    float64
	}{
		{
			name:     "at birth",
			at:       birth,
			expected: 0,
			delta:    0.001,
		},
		{
			name:     "one average month later",
			at:       birth + Instant(int64(30.44*float64(MillisPerDay))),
			expected: 1,
			delta:    0.001,
		},
		{
			name:     "roughly six months",
			at:       instant(2024, 7, 1), // 182 days
			expected: 182.0 / 30.44,
			delta:    0.001,
		},
		{
			name:     "before birth is negative",
			at:       instant(2023, 12, 1),
			expected: -31.0 / 30.44,
			delta:    0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, AgeInMonths(birth, tt.at), tt.delta)
		})
	}
}

func TestAgeInMonthsClamped(t *testing.T) {
	birth := instant(2024, 1, 1)

	assert.Equal(t, float64(0), AgeInMonthsClamped(birth, instant(2023, 1, 1)))
	assert.Greater(t, AgeInMonthsClamped(birth, instant(2024, 3, 1)), float64(0))
}

func TestProjectMonths(t *testing.T) {
	birth := instant(2024, 1, 1)

	// 2 months -> round(2 * 30.44) = 61 days -> 2024-03-02
	assert.Equal(t, instant(2024, 3, 2), ProjectMonths(birth, 2))

	// 0 months projects onto birth itself
	assert.Equal(t, birth, ProjectMonths(birth, 0))

	// Projection and inference must agree: inferring the age of a projected
	// date lands within rounding distance of the target age.
	for _, months := range []float64{1, 2, 4, 6, 12, 18, 24} {
		projected := ProjectMonths(birth, months)
		assert.InDelta(t, months, AgeInMonths(birth, projected), 0.02)
	}
}

func TestProjectWeeks(t *testing.T) {
	birth := instant(2024, 1, 1)

	// Weeks use exact 7-day math, not the average month
	assert.Equal(t, instant(2024, 1, 15), ProjectWeeks(birth, 2))
	assert.Equal(t, birth, ProjectWeeks(birth, 0))
}
