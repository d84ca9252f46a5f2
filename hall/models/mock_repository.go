package models

import (
	"context"
	"testing"
	"time"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a hand-maintained testify mock of Repository.
type MockRepository struct {
	mock.Mock
}

// NewMockRepository returns a mock whose expectations are asserted when
// the test finishes.
func NewMockRepository(t *testing.T) *MockRepository {
	m := &MockRepository{}
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockRepository) CreateBook(ctx context.Context, book Book) (uint, error) {
	args := m.Called(ctx, book)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetBookByID(ctx context.Context, bookID uint) (*Book, error) {
	args := m.Called(ctx, bookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Book), args.Error(1)
}

func (m *MockRepository) GetBooksByClassification(ctx context.Context, classification string) ([]*Book, error) {
	args := m.Called(ctx, classification)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Book), args.Error(1)
}

func (m *MockRepository) ListBooks(ctx context.Context) ([]*Book, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Book), args.Error(1)
}

func (m *MockRepository) CreateRegistration(ctx context.Context, reg Registration) (uint, error) {
	args := m.Called(ctx, reg)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetRegistrationByID(ctx context.Context, id uint) (*Registration, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Registration), args.Error(1)
}

func (m *MockRepository) GetActiveRegistration(ctx context.Context, memberID uuid.UUID, classification string) (*Registration, error) {
	args := m.Called(ctx, memberID, classification)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Registration), args.Error(1)
}

func (m *MockRepository) GetActiveRegistrationsByBook(ctx context.Context, bookID uint) ([]*Registration, error) {
	args := m.Called(ctx, bookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Registration), args.Error(1)
}

func (m *MockRepository) GetActiveRegistrationByMemberBook(ctx context.Context, memberID uuid.UUID, bookID uint) (*Registration, error) {
	args := m.Called(ctx, memberID, bookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Registration), args.Error(1)
}

func (m *MockRepository) UpdateRegistrationStatusCheckStatus(ctx context.Context, id uint, current, new RegistrationStatus) error {
	args := m.Called(ctx, id, current, new)
	return args.Error(0)
}

func (m *MockRepository) UpdateRegistrationResign(ctx context.Context, id uint, resignedAt time.Time) error {
	args := m.Called(ctx, id, resignedAt)
	return args.Error(0)
}

func (m *MockRepository) UpdateRegistrationOverdue(ctx context.Context, id uint, overdueAt time.Time) error {
	args := m.Called(ctx, id, overdueAt)
	return args.Error(0)
}

func (m *MockRepository) GetMaxPrioritySequence(ctx context.Context, bookID uint, daySerial int64) (int64, error) {
	args := m.Called(ctx, bookID, daySerial)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetOverdueRegistrations(ctx context.Context, bookID uint, cutoff time.Time) ([]*Registration, error) {
	args := m.Called(ctx, bookID, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Registration), args.Error(1)
}

func (m *MockRepository) CreateRegistrationActivity(ctx context.Context, activity RegistrationActivity) (uint, error) {
	args := m.Called(ctx, activity)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetActivitiesByRegistration(ctx context.Context, registrationID uint) ([]*RegistrationActivity, error) {
	args := m.Called(ctx, registrationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*RegistrationActivity), args.Error(1)
}

func (m *MockRepository) CreateLaborRequest(ctx context.Context, req LaborRequest) (uint, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetLaborRequestByID(ctx context.Context, id uint) (*LaborRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*LaborRequest), args.Error(1)
}

func (m *MockRepository) GetOpenLaborRequestsByBook(ctx context.Context, bookID uint, processOnOrBefore time.Time) ([]*LaborRequest, error) {
	args := m.Called(ctx, bookID, processOnOrBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*LaborRequest), args.Error(1)
}

func (m *MockRepository) UpdateLaborRequestStatusCheckStatus(ctx context.Context, id uint, current, new RequestStatus) error {
	args := m.Called(ctx, id, current, new)
	return args.Error(0)
}

func (m *MockRepository) IncrementFilledCount(ctx context.Context, id uint) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) CreateJobBid(ctx context.Context, bid JobBid) (uint, error) {
	args := m.Called(ctx, bid)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetJobBidByID(ctx context.Context, id uint) (*JobBid, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*JobBid), args.Error(1)
}

func (m *MockRepository) GetPendingBidsByRequest(ctx context.Context, requestID uint) ([]*JobBid, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*JobBid), args.Error(1)
}

func (m *MockRepository) UpdateJobBidOutcomeCheckOutcome(ctx context.Context, id uint, current, new BidOutcome) error {
	args := m.Called(ctx, id, current, new)
	return args.Error(0)
}

func (m *MockRepository) CreateBidRejection(ctx context.Context, memberID uuid.UUID, resolvedAt time.Time) error {
	args := m.Called(ctx, memberID, resolvedAt)
	return args.Error(0)
}

func (m *MockRepository) GetBidRejectionTimes(ctx context.Context, memberID uuid.UUID, since time.Time) ([]time.Time, error) {
	args := m.Called(ctx, memberID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]time.Time), args.Error(1)
}

func (m *MockRepository) CreateDispatch(ctx context.Context, d Dispatch) (uint, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetDispatchByID(ctx context.Context, id uint) (*Dispatch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Dispatch), args.Error(1)
}

func (m *MockRepository) GetDispatchesByRequest(ctx context.Context, requestID uint) ([]*Dispatch, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Dispatch), args.Error(1)
}

func (m *MockRepository) GetDispatchesByMember(ctx context.Context, memberID uuid.UUID) ([]*Dispatch, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Dispatch), args.Error(1)
}

func (m *MockRepository) UpdateDispatchStatusCheckStatus(ctx context.Context, id uint, current, new DispatchStatus) error {
	args := m.Called(ctx, id, current, new)
	return args.Error(0)
}

func (m *MockRepository) RecordDispatchOutcome(ctx context.Context, id uint, outcome DispatchOutcome, kind OutcomeKind, actualEnd time.Time) error {
	args := m.Called(ctx, id, outcome, kind, actualEnd)
	return args.Error(0)
}

func (m *MockRepository) CountDispatchesByEmployer(ctx context.Context, employerID uuid.UUID, since time.Time) (int, int, error) {
	args := m.Called(ctx, employerID, since)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockRepository) CreateCheckMark(ctx context.Context, mark CheckMark) (uint, error) {
	args := m.Called(ctx, mark)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) CountCheckMarks(ctx context.Context, memberID uuid.UUID, bookID uint) (int, error) {
	args := m.Called(ctx, memberID, bookID)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) GetCheckMarkCountsByMember(ctx context.Context, memberID uuid.UUID) (map[uint]int, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uint]int), args.Error(1)
}

func (m *MockRepository) CreateExemption(ctx context.Context, e Exemption) (uint, error) {
	args := m.Called(ctx, e)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetActiveExemptions(ctx context.Context, memberID uuid.UUID, asOf time.Time) ([]*Exemption, error) {
	args := m.Called(ctx, memberID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Exemption), args.Error(1)
}

func (m *MockRepository) CreateBlackoutPeriod(ctx context.Context, b BlackoutPeriod) (uint, error) {
	args := m.Called(ctx, b)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetActiveBlackout(ctx context.Context, memberID, employerID uuid.UUID, asOf time.Time) (*BlackoutPeriod, error) {
	args := m.Called(ctx, memberID, employerID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BlackoutPeriod), args.Error(1)
}

func (m *MockRepository) GetActiveBlackoutsByMember(ctx context.Context, memberID uuid.UUID, asOf time.Time) ([]*BlackoutPeriod, error) {
	args := m.Called(ctx, memberID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*BlackoutPeriod), args.Error(1)
}
