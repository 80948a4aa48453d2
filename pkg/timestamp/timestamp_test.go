package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	ms := ToUnixMs(now)
	assert.Equal(t, now.UnixMilli(), ms)
	assert.True(t, FromUnixMs(ms).Equal(now))
}

func TestZeroValues(t *testing.T) {
	assert.Equal(t, int64(0), ToUnixMs(time.Time{}))
	assert.True(t, FromUnixMs(0).IsZero())
	assert.Equal(t, "", Format(0))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  int64
	}{
		{"nil", nil, 0},
		{"empty string", "", 0},
		{"rfc3339", "2026-01-15T10:30:00Z", 1768473000000},
		{"epoch seconds int", int64(1768473000), 1768473000000},
		{"epoch millis int", int64(1768473000000), 1768473000000},
		{"epoch seconds float", float64(1768473000), 1768473000000},
		{"epoch seconds string", "1768473000", 1768473000000},
		{"garbage", "not a time", 0},
		{"negative", int64(-5), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.input))
		})
	}
}

func TestFormat(t *testing.T) {
	ms := Parse("2026-01-15T10:30:00Z")
	assert.Equal(t, "2026-01-15T10:30:00Z", Format(ms))
}
