package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDaySerial(t *testing.T) {
	assert.Equal(t, int64(20260302), DaySerial(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, int64(19991231), DaySerial(time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC)))
}

func TestNewPriorityKey(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)

	key, err := NewPriorityKey(day, 1)
	assert.NoError(t, err)
	assert.Equal(t, "20260302.000000001", key.StringFixed(9))

	key, err = NewPriorityKey(day, 125)
	assert.NoError(t, err)
	assert.Equal(t, "20260302.000000125", key.StringFixed(9))
	assert.Equal(t, int64(125), PrioritySequence(key))
}

func TestNewPriorityKeySequenceOutOfRange(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	_, err := NewPriorityKey(day, 0)
	assert.Error(t, err)

	_, err = NewPriorityKey(day, MaxPrioritySequence+1)
	assert.Error(t, err)

	_, err = NewPriorityKey(day, MaxPrioritySequence)
	assert.NoError(t, err)
}

func TestPriorityKeyOrdering(t *testing.T) {
	day1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	early, err := NewPriorityKey(day1, 999)
	assert.NoError(t, err)
	late, err := NewPriorityKey(day1, 1000)
	assert.NoError(t, err)
	nextDay, err := NewPriorityKey(day2, 1)
	assert.NoError(t, err)

	// Earlier day always wins; same day falls back to sequence.
	assert.True(t, early.LessThan(late))
	assert.True(t, late.LessThan(nextDay))
}

func TestPriorityKeyExactness(t *testing.T) {
	// Sequences one apart must never collapse to the same key, even at
	// the top of the range where float math would lose the distinction.
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	a, err := NewPriorityKey(day, MaxPrioritySequence-1)
	assert.NoError(t, err)
	b, err := NewPriorityKey(day, MaxPrioritySequence)
	assert.NoError(t, err)

	assert.False(t, a.Equal(b))
	assert.Equal(t, decimal.New(1, -9).String(), b.Sub(a).String())
}
