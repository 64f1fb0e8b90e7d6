package dates

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Display label bounds. These are coarse sanity checks only: day-count
// validation per month is intentionally skipped, so "31/02/2024" is accepted.
// This leniency is a known property of the codec, not an oversight.
const (
	labelMinYear = 1900
	labelMaxYear = 2100
)

// EncodeLabel renders an Instant as the user-facing DD/MM/YYYY label
// (zero-padded, UTC).
func EncodeLabel(i Instant) string {
	t := i.Time()
	return fmt.Sprintf("%02d/%02d/%04d", t.Day(), int(t.Month()), t.Year())
}

// DecodeLabel parses a DD/MM/YYYY label into an Instant (midnight UTC).
// Non-digit, non-slash characters are stripped first so values coming out of
// live-formatted text fields decode without cleanup by the caller.
func DecodeLabel(s string) (Instant, bool) {
	var cleaned strings.Builder

	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '/' {
			cleaned.WriteRune(r)
		}
	}

	parts := strings.Split(cleaned.String(), "/")
	if len(parts) != 3 {
		return 0, false
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}

	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}

	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, false
	}

	if day < 1 || day > 31 {
		return 0, false
	}

	if month < 1 || month > 12 {
		return 0, false
	}

	if year < labelMinYear || year > labelMaxYear {
		return 0, false
	}

	return FromTime(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)), true
}

// FormatWhileTyping inserts "/" separators after the 2nd and 4th digit as the
// user types. Ergonomics only - it performs no validation whatsoever.
func FormatWhileTyping(s string) string {
	var digits strings.Builder

	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	if len(d) > 8 {
		d = d[:8]
	}

	switch {
	case len(d) <= 2:
		return d
	case len(d) <= 4:
		return d[:2] + "/" + d[2:]
	default:
		return d[:2] + "/" + d[2:4] + "/" + d[4:]
	}
}
