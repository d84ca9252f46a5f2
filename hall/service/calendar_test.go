package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCallLengthBusinessDays(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		start  time.Time
		end    time.Time
		length int
	}{
		{"same day", monday, monday, 1},
		{"monday through wednesday", monday, monday.AddDate(0, 0, 2), 3},
		{"monday through friday", monday, monday.AddDate(0, 0, 4), 5},
		{"friday through monday skips weekend", monday.AddDate(0, 0, 4), monday.AddDate(0, 0, 7), 2},
		{"two full weeks", monday, monday.AddDate(0, 0, 11), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.length, callLengthBusinessDays(tt.start, tt.end))
		})
	}
}

func TestNextBusinessDay(t *testing.T) {
	friday := time.Date(2026, 3, 6, 16, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 16, 0, 0, 0, time.UTC), nextBusinessDay(friday))

	monday := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), nextBusinessDay(monday))
}

func TestIsShortCall(t *testing.T) {
	svc := testService(nil, time.Now())
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	// Three business days sits at the long-call floor: not short.
	assert.False(t, svc.isShortCall(monday, monday.AddDate(0, 0, 2)))
	// Four business days: short.
	assert.True(t, svc.isShortCall(monday, monday.AddDate(0, 0, 3)))
	// Ten business days sits at the ceiling: still short.
	assert.True(t, svc.isShortCall(monday, monday.AddDate(0, 0, 11)))
	// Eleven business days: a long call.
	assert.True(t, callLengthBusinessDays(monday, monday.AddDate(0, 0, 14)) == 11)
	assert.False(t, svc.isShortCall(monday, monday.AddDate(0, 0, 14)))
}

func TestParseDayClock(t *testing.T) {
	d, err := parseDayClock("17:30")
	assert.NoError(t, err)
	assert.Equal(t, dayClock(17*60+30), d)

	_, err = parseDayClock("25:99")
	assert.Error(t, err)
}

func TestBidWindowSpansMidnight(t *testing.T) {
	svc := testService(nil, time.Now())

	tests := []struct {
		clock string
		in    bool
	}{
		{"17:29", false},
		{"17:30", true},
		{"23:59", true},
		{"00:00", true},
		{"06:59", true},
		{"07:00", false},
		{"12:00", false},
	}
	for _, tt := range tests {
		at, err := time.Parse("15:04", tt.clock)
		assert.NoError(t, err)
		now := time.Date(2026, 3, 2, at.Hour(), at.Minute(), 0, 0, time.UTC)
		assert.Equal(t, tt.in, svc.inBidWindow(now), tt.clock)
	}
}
