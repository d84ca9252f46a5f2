package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessagesCarryContext(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			"ValidationError",
			&ValidationError{Entity: "book", ID: "42", Msg: "unknown book"},
			[]string{"book", "42", "unknown book"},
		},
		{
			"ConflictError",
			&ConflictError{Entity: "registration", ID: "7", Rule: "one active registration per classification"},
			[]string{"registration", "7", "one active registration per classification"},
		},
		{
			"StateError",
			&StateError{Entity: "registration", ID: "7", State: "DROPPED", Msg: "cannot re-sign"},
			[]string{"registration", "7", "DROPPED", "cannot re-sign"},
		},
		{
			"EnforcementViolation",
			&EnforcementViolation{Entity: "dispatch", ID: "9", Rule: "no by-name dispatch during blackout", Reason: "blackout active until 2024-03-01"},
			[]string{"dispatch", "9", "blackout", "2024-03-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, fragment := range tt.contains {
				assert.Contains(t, tt.err.Error(), fragment)
			}
		})
	}
}
