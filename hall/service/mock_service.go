package service

import (
	"context"
	"testing"
	"time"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/unionhall/hall-app/hall/models"
)

// MockService is a hand-maintained testify mock of Service.
type MockService struct {
	mock.Mock
}

var _ Service = &MockService{}

// NewMockService returns a mock whose expectations are asserted when the
// test finishes.
func NewMockService(t *testing.T) *MockService {
	m := &MockService{}
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockService) CreateBook(ctx context.Context, book models.Book) (uint, error) {
	args := m.Called(ctx, book)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockService) GetBook(ctx context.Context, bookID uint) (*models.Book, error) {
	args := m.Called(ctx, bookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Book), args.Error(1)
}

func (m *MockService) ListBooks(ctx context.Context) ([]*models.Book, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Book), args.Error(1)
}

func (m *MockService) Register(ctx context.Context, memberID uuid.UUID, bookID uint, tier int) (*models.Registration, error) {
	args := m.Called(ctx, memberID, bookID, tier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *MockService) ReSign(ctx context.Context, registrationID uint) (*models.Registration, error) {
	args := m.Called(ctx, registrationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *MockService) Drop(ctx context.Context, registrationID uint, reason string) error {
	args := m.Called(ctx, registrationID, reason)
	return args.Error(0)
}

func (m *MockService) QueuePositions(ctx context.Context, bookID uint) ([]*models.QueuePosition, error) {
	args := m.Called(ctx, bookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.QueuePosition), args.Error(1)
}

func (m *MockService) RunReSignSweep(ctx context.Context, bookID uint) (int, int, error) {
	args := m.Called(ctx, bookID)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockService) RunReSignSweeps(ctx context.Context) (int, int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockService) SubmitLaborRequest(ctx context.Context, req models.LaborRequest) (*models.LaborRequest, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LaborRequest), args.Error(1)
}

func (m *MockService) CancelLaborRequest(ctx context.Context, requestID uint) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

func (m *MockService) GetLaborRequest(ctx context.Context, requestID uint) (*models.LaborRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LaborRequest), args.Error(1)
}

func (m *MockService) RunMorningReferral(ctx context.Context, date time.Time) (*ReferralSummary, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReferralSummary), args.Error(1)
}

func (m *MockService) OfferDispatch(ctx context.Context, requestID uint) (*models.Dispatch, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispatch), args.Error(1)
}

func (m *MockService) AcceptOffer(ctx context.Context, dispatchID uint) (*models.Dispatch, error) {
	args := m.Called(ctx, dispatchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispatch), args.Error(1)
}

func (m *MockService) RejectOffer(ctx context.Context, dispatchID uint) error {
	args := m.Called(ctx, dispatchID)
	return args.Error(0)
}

func (m *MockService) RecordOutcome(ctx context.Context, dispatchID uint, outcome models.DispatchOutcome, kind models.OutcomeKind, actualEnd time.Time) error {
	args := m.Called(ctx, dispatchID, outcome, kind, actualEnd)
	return args.Error(0)
}

func (m *MockService) SubmitBid(ctx context.Context, requestID uint, memberID uuid.UUID) (*models.JobBid, error) {
	args := m.Called(ctx, requestID, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobBid), args.Error(1)
}

func (m *MockService) WithdrawBid(ctx context.Context, bidID uint) error {
	args := m.Called(ctx, bidID)
	return args.Error(0)
}

func (m *MockService) ResolveBidWindow(ctx context.Context, requestID uint) (*models.Dispatch, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispatch), args.Error(1)
}

func (m *MockService) ResolveBidWindows(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockService) IssueCheckMark(ctx context.Context, memberID uuid.UUID, bookID uint, reason string) (*models.CheckMark, error) {
	args := m.Called(ctx, memberID, bookID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckMark), args.Error(1)
}

func (m *MockService) GrantExemption(ctx context.Context, memberID uuid.UUID, reason string, unavailable bool, start, end time.Time) (*models.Exemption, error) {
	args := m.Called(ctx, memberID, reason, unavailable, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Exemption), args.Error(1)
}

func (m *MockService) MemberBlackouts(ctx context.Context, memberID uuid.UUID) ([]*models.BlackoutPeriod, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BlackoutPeriod), args.Error(1)
}

func (m *MockService) GetEnforcementStatus(ctx context.Context, memberID uuid.UUID) (*models.EnforcementStatus, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EnforcementStatus), args.Error(1)
}

func (m *MockService) DispatchHistory(ctx context.Context, memberID uuid.UUID) ([]*models.Dispatch, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Dispatch), args.Error(1)
}
