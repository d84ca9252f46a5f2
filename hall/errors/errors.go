// Package errors defines the error taxonomy for the referral core.
// Every error carries the entity it concerns, the rule or invariant that
// was violated, and a reason suitable for display without translation.
package errors

import "fmt"

// ValidationError indicates malformed input. No state was changed and the
// call is safe to retry with corrected input.
type ValidationError struct {
	Entity string
	ID     string
	Msg    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Entity, e.ID, e.Msg)
}

// ConflictError indicates a uniqueness invariant would be violated.
// Callers must not retry automatically.
type ConflictError struct {
	Entity string
	ID     string
	Rule   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %s: violates %q", e.Entity, e.ID, e.Rule)
}

// StateError indicates the operation is invalid for the entity's current
// state. Callers must re-check state before retrying.
type StateError struct {
	Entity string
	ID     string
	State  string
	Msg    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s in state %s: %s", e.Entity, e.ID, e.State, e.Msg)
}

// EnforcementViolation indicates a detected rule breach. It is always
// surfaced, never silently corrected, and may require manual remediation.
type EnforcementViolation struct {
	Entity string
	ID     string
	Rule   string
	Reason string
}

func (e *EnforcementViolation) Error() string {
	return fmt.Sprintf("enforcement violation on %s %s (%s): %s", e.Entity, e.ID, e.Rule, e.Reason)
}
