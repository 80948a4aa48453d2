// Package timestamp provides standardized Unix timestamp handling.
//
// All timestamps in the pipeline are int64 milliseconds since the Unix
// epoch (UTC). Readings are stamped once at decode time and every
// downstream consumer (tracker, aggregator, sink) works in the same
// representation, which keeps window arithmetic integer-only.
//
// A value of 0 means "not set".
package timestamp

import (
	"strconv"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns the zero time if ms is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format converts Unix milliseconds to an RFC3339 string for display
// and for the sink's text columns. Returns "" if ms is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Parse converts various timestamp representations to Unix milliseconds.
// Broker envelopes carry timestamps as RFC3339 strings, bare integers
// (seconds or milliseconds), or floats, depending on the publisher.
//
// Integers greater than 1e12 are assumed to already be milliseconds,
// smaller ones seconds. Returns 0 for anything unparseable.
func Parse(input any) int64 {
	switch v := input.(type) {
	case nil:
		return 0
	case time.Time:
		return ToUnixMs(v)
	case int64:
		return normalizeEpoch(v)
	case int:
		return normalizeEpoch(int64(v))
	case float64:
		return normalizeEpoch(int64(v))
	case string:
		if v == "" {
			return 0
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ToUnixMs(t)
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return ToUnixMs(t)
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return normalizeEpoch(n)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return normalizeEpoch(int64(f))
		}
		return 0
	default:
		return 0
	}
}

func normalizeEpoch(n int64) int64 {
	if n <= 0 {
		return 0
	}
	// 1e12 ms is ~2001; anything below it is seconds.
	if n < 1_000_000_000_000 {
		return n * 1000
	}
	return n
}
