// Repository contains all of the methods needed to interact with the
// hall's persisted state. Implementations return fully-materialized
// value objects; there are no lazy fetches.
package models

import (
	"context"
	"errors"
	"time"

	"github.com/pborman/uuid"
)

type Repository interface {
	bookRepository
	registrationRepository
	activityRepository
	laborRequestRepository
	bidRepository
	dispatchRepository
	enforcementRepository
}

type bookRepository interface {
	CreateBook(ctx context.Context, book Book) (uint, error)

	GetBookByID(ctx context.Context, bookID uint) (*Book, error)

	GetBooksByClassification(ctx context.Context, classification string) ([]*Book, error)

	ListBooks(ctx context.Context) ([]*Book, error)
}

type registrationRepository interface {
	CreateRegistration(ctx context.Context, reg Registration) (uint, error)

	GetRegistrationByID(ctx context.Context, id uint) (*Registration, error)

	// GetActiveRegistration finds the member's ACTIVE or DISPATCHED
	// registration across all books of the classification, if any.
	GetActiveRegistration(ctx context.Context, memberID uuid.UUID, classification string) (*Registration, error)

	// GetActiveRegistrationsByBook returns ACTIVE registrations in
	// ascending priority-key order.
	GetActiveRegistrationsByBook(ctx context.Context, bookID uint) ([]*Registration, error)

	// GetActiveRegistrationByMemberBook finds the member's live
	// (ACTIVE or DISPATCHED) registration on one book, if any.
	GetActiveRegistrationByMemberBook(ctx context.Context, memberID uuid.UUID, bookID uint) (*Registration, error)

	// UpdateRegistrationStatusCheckStatus transitions status iff the
	// current status matches.
	UpdateRegistrationStatusCheckStatus(ctx context.Context, id uint, current, new RegistrationStatus) error

	UpdateRegistrationResign(ctx context.Context, id uint, resignedAt time.Time) error

	UpdateRegistrationOverdue(ctx context.Context, id uint, overdueAt time.Time) error

	// GetMaxPrioritySequence returns the highest same-day tie-break
	// already assigned on the book for the given day serial (0 if none).
	GetMaxPrioritySequence(ctx context.Context, bookID uint, daySerial int64) (int64, error)

	// GetOverdueRegistrations returns ACTIVE registrations whose last
	// re-sign is at or before the cutoff.
	GetOverdueRegistrations(ctx context.Context, bookID uint, cutoff time.Time) ([]*Registration, error)
}

type activityRepository interface {
	CreateRegistrationActivity(ctx context.Context, activity RegistrationActivity) (uint, error)

	GetActivitiesByRegistration(ctx context.Context, registrationID uint) ([]*RegistrationActivity, error)
}

type laborRequestRepository interface {
	CreateLaborRequest(ctx context.Context, req LaborRequest) (uint, error)

	GetLaborRequestByID(ctx context.Context, id uint) (*LaborRequest, error)

	// GetOpenLaborRequestsByBook returns OPEN requests whose
	// process_after date is at or before the given date, oldest first.
	GetOpenLaborRequestsByBook(ctx context.Context, bookID uint, processOnOrBefore time.Time) ([]*LaborRequest, error)

	UpdateLaborRequestStatusCheckStatus(ctx context.Context, id uint, current, new RequestStatus) error

	// IncrementFilledCount bumps filled_count and returns the new value.
	IncrementFilledCount(ctx context.Context, id uint) (int, error)
}

type bidRepository interface {
	CreateJobBid(ctx context.Context, bid JobBid) (uint, error)

	GetJobBidByID(ctx context.Context, id uint) (*JobBid, error)

	GetPendingBidsByRequest(ctx context.Context, requestID uint) ([]*JobBid, error)

	UpdateJobBidOutcomeCheckOutcome(ctx context.Context, id uint, current, new BidOutcome) error

	// CreateBidRejection records a rejection instant for the rolling
	// suspension window.
	CreateBidRejection(ctx context.Context, memberID uuid.UUID, resolvedAt time.Time) error

	// GetBidRejectionTimes returns rejection timestamps for the member
	// since the given time, most recent first.
	GetBidRejectionTimes(ctx context.Context, memberID uuid.UUID, since time.Time) ([]time.Time, error)
}

type dispatchRepository interface {
	CreateDispatch(ctx context.Context, d Dispatch) (uint, error)

	GetDispatchByID(ctx context.Context, id uint) (*Dispatch, error)

	GetDispatchesByRequest(ctx context.Context, requestID uint) ([]*Dispatch, error)

	GetDispatchesByMember(ctx context.Context, memberID uuid.UUID) ([]*Dispatch, error)

	UpdateDispatchStatusCheckStatus(ctx context.Context, id uint, current, new DispatchStatus) error

	// RecordDispatchOutcome sets the outcome iff none is recorded yet.
	RecordDispatchOutcome(ctx context.Context, id uint, outcome DispatchOutcome, kind OutcomeKind, actualEnd time.Time) error

	// CountDispatchesByEmployer returns total and by-name accepted
	// dispatch counts for the employer since the given time.
	CountDispatchesByEmployer(ctx context.Context, employerID uuid.UUID, since time.Time) (total, byName int, err error)
}

type enforcementRepository interface {
	CreateCheckMark(ctx context.Context, mark CheckMark) (uint, error)

	CountCheckMarks(ctx context.Context, memberID uuid.UUID, bookID uint) (int, error)

	GetCheckMarkCountsByMember(ctx context.Context, memberID uuid.UUID) (map[uint]int, error)

	CreateExemption(ctx context.Context, e Exemption) (uint, error)

	// GetActiveExemptions returns exemptions covering the given instant.
	GetActiveExemptions(ctx context.Context, memberID uuid.UUID, asOf time.Time) ([]*Exemption, error)

	CreateBlackoutPeriod(ctx context.Context, b BlackoutPeriod) (uint, error)

	// GetActiveBlackout returns the blackout covering (member, employer)
	// at the given instant, or nil when none exists.
	GetActiveBlackout(ctx context.Context, memberID, employerID uuid.UUID, asOf time.Time) (*BlackoutPeriod, error)

	GetActiveBlackoutsByMember(ctx context.Context, memberID uuid.UUID, asOf time.Time) ([]*BlackoutPeriod, error)
}

var (
	// ErrDuplicateRegistration surfaces the partial unique index on live
	// (member, classification) rows: the insert lost a race the
	// application-level duplicate check could not see.
	ErrDuplicateRegistration = errors.New("a live registration already exists for the member and classification")

	ErrRegistrationNotUpdated = errors.New("registration was not updated, no match found")
	ErrRequestNotUpdated      = errors.New("labor request was not updated, no match found")
	ErrBidNotUpdated          = errors.New("job bid was not updated, no match found")
	ErrDispatchNotUpdated     = errors.New("dispatch was not updated, no match found")
	ErrOutcomeAlreadySet      = errors.New("dispatch outcome is already recorded")
)
