package dates

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Timer is satisfied by values that can convert themselves to a time.Time
// (eg. Firestore DocumentRef timestamps deserialized by client libraries).
type Timer interface {
	Time() time.Time
}

// secondsKeys are the field names under which the upstream API has been
// observed to deliver second-resolution timestamps. Both casings are live in
// production data; treat them as one shape.
var (
	secondsKeys     = []string{"_seconds", "seconds"}
	nanosecondsKeys = []string{"_nanoseconds", "nanoseconds"}

	// isoFormats are tried in order for string input.
	isoFormats = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
)

// Normalize converts any supported timestamp shape into an Instant. The
// second return value reports whether the input was recognized; callers must
// never substitute "now" (or zero) on a false return - exclude the value
// explicitly instead.
//
// Supported shapes:
//   - map with "_seconds"/"seconds" (+ optional "_nanoseconds"/"nanoseconds")
//   - anything satisfying Timer (zero-arg conversion to time.Time)
//   - ISO-8601 string
//   - DD/MM/YYYY display string (delegates to DecodeLabel)
//   - time.Time / Instant
//   - finite number, treated as epoch milliseconds
func Normalize(raw interface{}) (Instant, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case map[string]interface{}:
		return normalizeSecondsObject(v)
	case Timer:
		return FromTime(v.Time()), true
	case time.Time:
		return FromTime(v), true
	case Instant:
		return v, true
	case string:
		return normalizeString(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return normalizeNumber(f)
	case float64:
		return normalizeNumber(v)
	case float32:
		return normalizeNumber(float64(v))
	case int:
		return Instant(v), true
	case int64:
		return Instant(v), true
	}

	return 0, false
}

// NormalizeJSON decodes a raw JSON value (object, string or number) and
// normalizes the result. Numbers are decoded with json.Number so that large
// epoch values survive intact.
func NormalizeJSON(raw json.RawMessage) (Instant, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}

	return Normalize(v)
}

func normalizeSecondsObject(m map[string]interface{}) (Instant, bool) {
	secs, ok := lookupNumber(m, secondsKeys)
	if !ok {
		return 0, false
	}

	// Nanoseconds are optional and default to 0
	nanos, _ := lookupNumber(m, nanosecondsKeys)

	millis := secs*1000 + nanos/1e6
	if !isFinite(millis) {
		return 0, false
	}

	return Instant(int64(millis)), true
}

func normalizeString(s string) (Instant, bool) {
	for _, format := range isoFormats {
		if t, err := time.Parse(format, s); err == nil {
			return FromTime(t), true
		}
	}

	// Fall back to the DD/MM/YYYY display format
	return DecodeLabel(s)
}

func normalizeNumber(f float64) (Instant, bool) {
	if !isFinite(f) {
		return 0, false
	}

	return Instant(int64(f)), true
}

func lookupNumber(m map[string]interface{}, keys []string) (float64, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}

		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, true
			}
		case string:
			// Some serializers stringify the numeric fields
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f, true
			}
		}
	}

	return 0, false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
