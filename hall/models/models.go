package models

import (
	"time"

	"github.com/pborman/uuid"
	"github.com/shopspring/decimal"
)

type AgreementType string

const (
	AgreementStandard AgreementType = "STANDARD"
	AgreementPLA      AgreementType = "PLA"
	AgreementCWA      AgreementType = "CWA"
	AgreementTERO     AgreementType = "TERO"
)

// Standard reports whether the book is governed by the standard rule set.
// Agreement-specific books (PLA/CWA/TERO) bypass the fixed tie-break
// ordering during candidate selection.
func (a AgreementType) Standard() bool {
	return a == AgreementStandard || a == ""
}

type RegistrationStatus string

const (
	RegistrationActive     RegistrationStatus = "ACTIVE"
	RegistrationDispatched RegistrationStatus = "DISPATCHED"
	RegistrationResigned   RegistrationStatus = "RESIGNED"
	RegistrationDropped    RegistrationStatus = "DROPPED"
	RegistrationExpired    RegistrationStatus = "EXPIRED"
)

type RequestStatus string

const (
	RequestOpen      RequestStatus = "OPEN"
	RequestFilled    RequestStatus = "FILLED"
	RequestCancelled RequestStatus = "CANCELLED"
	RequestExpired   RequestStatus = "EXPIRED"
)

type BidOutcome string

const (
	BidPending   BidOutcome = "PENDING"
	BidAccepted  BidOutcome = "ACCEPTED"
	BidRejected  BidOutcome = "REJECTED"
	BidWithdrawn BidOutcome = "WITHDRAWN"
)

// DispatchStatus tracks the offer lifecycle. An OFFERED dispatch is
// provisional; it becomes a real assignment on ACCEPTED.
type DispatchStatus string

const (
	DispatchOffered  DispatchStatus = "OFFERED"
	DispatchAccepted DispatchStatus = "ACCEPTED"
	DispatchDeclined DispatchStatus = "DECLINED"
)

// DispatchOutcome is terminal. The empty string means the dispatch is
// still pending an outcome.
type DispatchOutcome string

const (
	OutcomePending    DispatchOutcome = ""
	OutcomeCompleted  DispatchOutcome = "COMPLETED"
	OutcomeQuit       DispatchOutcome = "QUIT"
	OutcomeLaidOff    DispatchOutcome = "LAID_OFF"
	OutcomeTerminated DispatchOutcome = "TERMINATED"
)

// OutcomeKind categorizes the dispatch at outcome-recording time. Several
// kinds are exempt from check-mark issuance.
type OutcomeKind string

const (
	KindRegular        OutcomeKind = "REGULAR"
	KindSpecialtySkill OutcomeKind = "SPECIALTY_SKILL"
	KindMOU            OutcomeKind = "MOU"
	KindEarlyStart     OutcomeKind = "EARLY_START"
	KindUnderScale     OutcomeKind = "UNDER_SCALE"
	KindDownsizing     OutcomeKind = "DOWNSIZING"
)

// CheckMarkExempt reports whether the kind shields the member from
// check-mark issuance at outcome time.
func (k OutcomeKind) CheckMarkExempt() bool {
	switch k {
	case KindSpecialtySkill, KindMOU, KindEarlyStart, KindUnderScale, KindDownsizing:
		return true
	}
	return false
}

// Book is a classification/region-scoped ordered queue of registrants.
// Reference data; created at configuration time and rarely mutated.
type Book struct {
	ID             uint          `json:"id"`
	Classification string        `json:"classification"`
	Region         string        `json:"region"`
	Agreement      AgreementType `json:"agreement_type"`
	TierCount      int           `json:"tier_count"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Registration is a member's position on one book. Rows are never
// physically deleted; they are status-transitioned for audit continuity.
type Registration struct {
	ID       uint      `json:"id"`
	MemberID uuid.UUID `json:"member_id"`
	BookID   uint      `json:"book_id"`
	// Classification is denormalized from the book: the database holds a
	// partial unique index on (member_id, classification) so no member
	// carries two live registrations in one classification, whichever
	// books they sit on.
	Classification string             `json:"classification"`
	PriorityKey    decimal.Decimal    `json:"priority_key"`
	Tier           int                `json:"tier"`
	Status         RegistrationStatus `json:"status"`
	Exempt         bool               `json:"exempt"`
	ShortCallCount int                `json:"short_call_count"`
	LastResignAt   time.Time          `json:"last_resign_at"`
	OverdueAt      time.Time          `json:"overdue_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// RegistrationActivity is an immutable append-only log entry written in
// the same transaction as every registration state change.
type RegistrationActivity struct {
	ID             uint      `json:"id"`
	RegistrationID uint      `json:"registration_id"`
	MemberID       uuid.UUID `json:"member_id"`
	BookID         uint      `json:"book_id"`
	Kind           string    `json:"kind"`
	Detail         string    `json:"detail"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// LaborRequest is an employer's ask for workers on a book.
type LaborRequest struct {
	ID            uint          `json:"id"`
	BookID        uint          `json:"book_id"`
	EmployerID    uuid.UUID     `json:"employer_id"`
	WorkerCount   int           `json:"worker_count"`
	FilledCount   int           `json:"filled_count"`
	Agreement     AgreementType `json:"agreement_type"`
	ByName        bool          `json:"by_name"`
	NamedMemberID uuid.UUID     `json:"named_member_id,omitempty"`
	StartDate     time.Time     `json:"start_date"`
	ExpectedEnd   time.Time     `json:"expected_end_date"`
	SubmittedAt   time.Time     `json:"submitted_at"`
	// ProcessAfter is the earliest referral-run date that may consider
	// this request. Submissions after the daily cutoff defer one cycle.
	ProcessAfter time.Time     `json:"process_after"`
	Status       RequestStatus `json:"status"`
}

// JobBid is a registrant's response to an open request during the
// bidding window. Immutable once resolved.
type JobBid struct {
	ID          uint       `json:"id"`
	RequestID   uint       `json:"request_id"`
	MemberID    uuid.UUID  `json:"member_id"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Outcome     BidOutcome `json:"outcome"`
}

// Dispatch links a Registration to a LaborRequest.
type Dispatch struct {
	ID             uint            `json:"id"`
	RegistrationID uint            `json:"registration_id"`
	RequestID      uint            `json:"request_id"`
	MemberID       uuid.UUID       `json:"member_id"`
	EmployerID     uuid.UUID       `json:"employer_id"`
	StartDate      time.Time       `json:"start_date"`
	ExpectedEnd    time.Time       `json:"expected_end_date"`
	ActualEnd      time.Time       `json:"actual_end_date,omitempty"`
	ShortCall      bool            `json:"short_call"`
	ByName         bool            `json:"by_name"`
	Status         DispatchStatus  `json:"status"`
	Outcome        DispatchOutcome `json:"outcome,omitempty"`
	OutcomeKind    OutcomeKind     `json:"outcome_kind,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CheckMark is a penalty record scoped to (member, book). Never deleted.
type CheckMark struct {
	ID       uint      `json:"id"`
	MemberID uuid.UUID `json:"member_id"`
	BookID   uint      `json:"book_id"`
	Reason   string    `json:"reason"`
	IssuedAt time.Time `json:"issued_at"`
}

// Exemption is a time-boxed suspension of normal rule enforcement for a
// member. A zero EndDate means open-ended.
type Exemption struct {
	ID       uint      `json:"id"`
	MemberID uuid.UUID `json:"member_id"`
	Reason   string    `json:"reason"`
	// Unavailable marks the member as excluded from dispatch for the
	// duration. Exemptions otherwise preserve queue position without
	// excluding the member from referral.
	Unavailable bool      `json:"unavailable"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date,omitempty"`
}

// activeAt reports whether the exemption covers the given instant.
// The repository's GetActiveExemptions filters on the same window.
func (e *Exemption) activeAt(t time.Time) bool {
	if t.Before(e.StartDate) {
		return false
	}
	return e.EndDate.IsZero() || !t.After(e.EndDate)
}

// BlackoutPeriod restricts by-name dispatch of a (member, employer) pair
// following a quit or discharge.
type BlackoutPeriod struct {
	ID         uint      `json:"id"`
	MemberID   uuid.UUID `json:"member_id"`
	EmployerID uuid.UUID `json:"employer_id"`
	DispatchID uint      `json:"dispatch_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

// activeAt reports whether the blackout covers the given instant.
// The repository's GetActiveBlackout filters on the same window.
func (b *BlackoutPeriod) activeAt(t time.Time) bool {
	return !t.Before(b.StartDate) && !t.After(b.EndDate)
}

// QueuePosition is a read-only snapshot served to reporting consumers.
type QueuePosition struct {
	Rank        int                `json:"rank"`
	MemberID    uuid.UUID          `json:"member_id"`
	BookID      uint               `json:"book_id"`
	PriorityKey decimal.Decimal    `json:"priority_key"`
	Status      RegistrationStatus `json:"status"`
	Exempt      bool               `json:"exempt"`
}

// EnforcementStatus is a read-only per-member snapshot of enforcement
// state: marks per book, active exemptions and blackouts.
type EnforcementStatus struct {
	MemberID         uuid.UUID         `json:"member_id"`
	CheckMarksByBook map[uint]int      `json:"check_marks_by_book"`
	Exemptions       []*Exemption      `json:"exemptions"`
	Blackouts        []*BlackoutPeriod `json:"blackouts"`
}
