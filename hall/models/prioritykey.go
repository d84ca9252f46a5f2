package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// The priority key packs a date serial and a same-day tie-break into one
// decimal: the integer part is the registration day as yyyymmdd, the
// fractional part is the per-book submission sequence scaled to 1e-9.
// Lower sorts first. Comparison must be exact decimal, never float.

const prioritySequenceExp = -9

// MaxPrioritySequence is the largest same-day tie-break the fractional
// encoding can hold.
const MaxPrioritySequence = int64(999999999)

// DaySerial encodes the date portion of a priority key.
func DaySerial(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

// NewPriorityKey builds the key for a registration created on the given
// day as the seq-th same-day sign-in on its book (seq starts at 1).
func NewPriorityKey(day time.Time, seq int64) (decimal.Decimal, error) {
	if seq < 1 || seq > MaxPrioritySequence {
		return decimal.Decimal{}, fmt.Errorf("priority sequence %d out of range [1, %d]", seq, MaxPrioritySequence)
	}
	return decimal.New(DaySerial(day), 0).Add(decimal.New(seq, prioritySequenceExp)), nil
}

// PrioritySequence extracts the same-day tie-break from a key.
func PrioritySequence(key decimal.Decimal) int64 {
	frac := key.Sub(key.Truncate(0))
	return frac.Shift(-prioritySequenceExp).IntPart()
}
