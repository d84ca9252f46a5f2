package service

import (
	"context"
	"testing"
	"time"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/unionhall/hall-app/hall/constants"
	hallerrors "github.com/unionhall/hall-app/hall/errors"
	"github.com/unionhall/hall-app/hall/models"
)

type OutcomeServiceTestSuite struct {
	suite.Suite
}

func TestOutcomeServiceTestSuite(t *testing.T) {
	suite.Run(t, new(OutcomeServiceTestSuite))
}

func acceptedDispatch(memberID uuid.UUID, start, end time.Time) *models.Dispatch {
	return &models.Dispatch{ID: 20, RegistrationID: 2, RequestID: 9,
		MemberID: memberID, EmployerID: uuid.NewRandom(),
		StartDate: start, ExpectedEnd: end, Status: models.DispatchAccepted}
}

func dispatchedReg(memberID uuid.UUID) *models.Registration {
	key, _ := models.NewPriorityKey(time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), 3)
	return &models.Registration{ID: 2, MemberID: memberID, BookID: 1, Classification: "WIREMAN",
		PriorityKey: key, Tier: 1, Status: models.RegistrationDispatched}
}

func (s *OutcomeServiceTestSuite) TestQuitOpensBlackoutAndCheckMark() {
	now := time.Date(2026, 3, 11, 16, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()
	d := acceptedDispatch(memberID, callStart, callEnd)
	reg := dispatchedReg(memberID)

	repository := models.NewMockRepository(s.T())
	repository.On("GetDispatchByID", mock.Anything, uint(20)).Return(d, nil)
	repository.On("GetRegistrationByID", mock.Anything, uint(2)).Return(reg, nil)
	repository.On("RecordDispatchOutcome", mock.Anything, uint(20),
		models.OutcomeQuit, models.KindRegular, now).Return(nil)
	repository.On("CreateBlackoutPeriod", mock.Anything, mock.MatchedBy(func(b models.BlackoutPeriod) bool {
		return b.DispatchID == uint(20) && b.EndDate.Equal(now.AddDate(0, 0, 14))
	})).Return(uint(1), nil)
	repository.On("CreateCheckMark", mock.Anything, mock.MatchedBy(func(m models.CheckMark) bool {
		return m.BookID == uint(1) && m.IssuedAt.Equal(now)
	})).Return(uint(1), nil)
	repository.On("CountCheckMarks", mock.Anything, memberID, uint(1)).Return(1, nil)
	// A quit never returns the member to the book.
	repository.On("UpdateRegistrationStatusCheckStatus", mock.Anything, uint(2),
		models.RegistrationDispatched, models.RegistrationResigned).Return(nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityOutcome && a.Detail == "QUIT/REGULAR"
	})).Return(uint(1), nil)

	svc := testService(repository, now)
	err := svc.RecordOutcome(context.Background(), 20, models.OutcomeQuit, models.KindRegular, now)
	assert.NoError(s.T(), err)
}

func (s *OutcomeServiceTestSuite) TestUnderScaleQuitSkipsCheckMark() {
	now := time.Date(2026, 3, 11, 16, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()
	d := acceptedDispatch(memberID, callStart, callEnd)
	reg := dispatchedReg(memberID)

	repository := models.NewMockRepository(s.T())
	repository.On("GetDispatchByID", mock.Anything, uint(20)).Return(d, nil)
	repository.On("GetRegistrationByID", mock.Anything, uint(2)).Return(reg, nil)
	repository.On("RecordDispatchOutcome", mock.Anything, uint(20),
		models.OutcomeQuit, models.KindUnderScale, now).Return(nil)
	// The blackout still opens; only the check mark is waived.
	repository.On("CreateBlackoutPeriod", mock.Anything, mock.Anything).Return(uint(1), nil)
	repository.On("UpdateRegistrationStatusCheckStatus", mock.Anything, uint(2),
		models.RegistrationDispatched, models.RegistrationResigned).Return(nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityOutcome
	})).Return(uint(1), nil)

	svc := testService(repository, now)
	err := svc.RecordOutcome(context.Background(), 20, models.OutcomeQuit, models.KindUnderScale, now)
	assert.NoError(s.T(), err)
	repository.AssertNotCalled(s.T(), "CreateCheckMark", mock.Anything, mock.Anything)
}

func (s *OutcomeServiceTestSuite) TestShortCallCompletionRetainsKey() {
	// Monday through Friday: five business days, a completed short call.
	now := time.Date(2026, 3, 13, 17, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()
	d := acceptedDispatch(memberID, callStart, callEnd)
	d.ShortCall = true
	reg := dispatchedReg(memberID)

	repository := models.NewMockRepository(s.T())
	repository.On("GetDispatchByID", mock.Anything, uint(20)).Return(d, nil)
	repository.On("GetRegistrationByID", mock.Anything, uint(2)).Return(reg, nil)
	repository.On("RecordDispatchOutcome", mock.Anything, uint(20),
		models.OutcomeCompleted, models.KindRegular, callEnd).Return(nil)
	repository.On("UpdateRegistrationStatusCheckStatus", mock.Anything, uint(2),
		models.RegistrationDispatched, models.RegistrationResigned).Return(nil)
	repository.On("CreateRegistration", mock.Anything, mock.MatchedBy(func(next models.Registration) bool {
		return next.PriorityKey.Equal(reg.PriorityKey) &&
			next.Classification == "WIREMAN" &&
			next.Status == models.RegistrationActive &&
			next.ShortCallCount == 1
	})).Return(uint(3), nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityReturn && a.RegistrationID == uint(3)
	})).Return(uint(1), nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityOutcome
	})).Return(uint(2), nil)

	svc := testService(repository, now)
	err := svc.RecordOutcome(context.Background(), 20, models.OutcomeCompleted, "", callEnd)
	assert.NoError(s.T(), err)
}

func (s *OutcomeServiceTestSuite) TestThreeDayCallRotates() {
	// Monday through Wednesday: three business days, at the long-call
	// floor. Reclassified long, the member rotates to the back.
	now := time.Date(2026, 3, 11, 17, 0, 0, 0, time.UTC)
	actualEnd := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()
	d := acceptedDispatch(memberID, callStart, callEnd)
	d.ShortCall = true
	reg := dispatchedReg(memberID)

	repository := models.NewMockRepository(s.T())
	repository.On("GetDispatchByID", mock.Anything, uint(20)).Return(d, nil)
	repository.On("GetRegistrationByID", mock.Anything, uint(2)).Return(reg, nil)
	repository.On("RecordDispatchOutcome", mock.Anything, uint(20),
		models.OutcomeCompleted, models.KindRegular, actualEnd).Return(nil)
	repository.On("UpdateRegistrationStatusCheckStatus", mock.Anything, uint(2),
		models.RegistrationDispatched, models.RegistrationResigned).Return(nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityOutcome
	})).Return(uint(1), nil)

	svc := testService(repository, now)
	err := svc.RecordOutcome(context.Background(), 20, models.OutcomeCompleted, "", actualEnd)
	assert.NoError(s.T(), err)
	repository.AssertNotCalled(s.T(), "CreateRegistration", mock.Anything, mock.Anything)
}

func (s *OutcomeServiceTestSuite) TestShortCallCapExhaustedRotates() {
	now := time.Date(2026, 3, 13, 17, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()
	d := acceptedDispatch(memberID, callStart, callEnd)
	d.ShortCall = true
	reg := dispatchedReg(memberID)
	reg.ShortCallCount = 2

	repository := models.NewMockRepository(s.T())
	repository.On("GetDispatchByID", mock.Anything, uint(20)).Return(d, nil)
	repository.On("GetRegistrationByID", mock.Anything, uint(2)).Return(reg, nil)
	repository.On("RecordDispatchOutcome", mock.Anything, uint(20),
		models.OutcomeCompleted, models.KindRegular, callEnd).Return(nil)
	repository.On("UpdateRegistrationStatusCheckStatus", mock.Anything, uint(2),
		models.RegistrationDispatched, models.RegistrationResigned).Return(nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityOutcome
	})).Return(uint(1), nil)

	svc := testService(repository, now)
	err := svc.RecordOutcome(context.Background(), 20, models.OutcomeCompleted, "", callEnd)
	assert.NoError(s.T(), err)
	repository.AssertNotCalled(s.T(), "CreateRegistration", mock.Anything, mock.Anything)
}

func (s *OutcomeServiceTestSuite) TestLayoffInsideReactivationWindowRetainsKey() {
	// A long call laid off a month in: the member reactivates at the
	// original key without consuming a short-call slot.
	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	actualEnd := start.AddDate(0, 0, 32)
	now := actualEnd.Add(8 * time.Hour)
	memberID := uuid.NewRandom()
	d := acceptedDispatch(memberID, start, start.AddDate(0, 6, 0))
	reg := dispatchedReg(memberID)

	repository := models.NewMockRepository(s.T())
	repository.On("GetDispatchByID", mock.Anything, uint(20)).Return(d, nil)
	repository.On("GetRegistrationByID", mock.Anything, uint(2)).Return(reg, nil)
	repository.On("RecordDispatchOutcome", mock.Anything, uint(20),
		models.OutcomeLaidOff, models.KindRegular, actualEnd).Return(nil)
	repository.On("UpdateRegistrationStatusCheckStatus", mock.Anything, uint(2),
		models.RegistrationDispatched, models.RegistrationResigned).Return(nil)
	repository.On("CreateRegistration", mock.Anything, mock.MatchedBy(func(next models.Registration) bool {
		return next.PriorityKey.Equal(reg.PriorityKey) && next.ShortCallCount == 0
	})).Return(uint(4), nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityReturn
	})).Return(uint(1), nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityOutcome
	})).Return(uint(2), nil)

	svc := testService(repository, now)
	err := svc.RecordOutcome(context.Background(), 20, models.OutcomeLaidOff, "", actualEnd)
	assert.NoError(s.T(), err)
}

func (s *OutcomeServiceTestSuite) TestThirdCheckMarkDropsMidDispatch() {
	now := time.Date(2026, 3, 11, 16, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()
	d := acceptedDispatch(memberID, callStart, callEnd)
	reg := dispatchedReg(memberID)

	repository := models.NewMockRepository(s.T())
	repository.On("GetDispatchByID", mock.Anything, uint(20)).Return(d, nil)
	repository.On("GetRegistrationByID", mock.Anything, uint(2)).Return(reg, nil)
	repository.On("RecordDispatchOutcome", mock.Anything, uint(20),
		models.OutcomeTerminated, models.KindRegular, now).Return(nil)
	repository.On("CreateBlackoutPeriod", mock.Anything, mock.Anything).Return(uint(1), nil)
	repository.On("CreateCheckMark", mock.Anything, mock.Anything).Return(uint(3), nil)
	repository.On("CountCheckMarks", mock.Anything, memberID, uint(1)).Return(3, nil)
	repository.On("GetActiveRegistrationByMemberBook", mock.Anything, memberID, uint(1)).Return(reg, nil)
	// The cap drops the registration inside the check-mark path...
	repository.On("UpdateRegistrationStatusCheckStatus", mock.Anything, uint(2),
		models.RegistrationDispatched, models.RegistrationDropped).Return(nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityCheckMark
	})).Return(uint(1), nil)
	// ...so the return-to-queue transition finds nothing to move.
	repository.On("UpdateRegistrationStatusCheckStatus", mock.Anything, uint(2),
		models.RegistrationDispatched, models.RegistrationResigned).
		Return(models.ErrRegistrationNotUpdated)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityOutcome
	})).Return(uint(2), nil)

	svc := testService(repository, now)
	err := svc.RecordOutcome(context.Background(), 20, models.OutcomeTerminated, "", now)
	assert.NoError(s.T(), err)
}

func (s *OutcomeServiceTestSuite) TestOutcomeRequired() {
	repository := models.NewMockRepository(s.T())
	svc := testService(repository, time.Now())

	err := svc.RecordOutcome(context.Background(), 20, models.OutcomePending, "", time.Now())

	var validation *hallerrors.ValidationError
	assert.ErrorAs(s.T(), err, &validation)
}

func (s *OutcomeServiceTestSuite) TestOutcomeAlreadyRecorded() {
	now := time.Now()
	memberID := uuid.NewRandom()
	d := acceptedDispatch(memberID, callStart, callEnd)
	reg := dispatchedReg(memberID)

	repository := models.NewMockRepository(s.T())
	repository.On("GetDispatchByID", mock.Anything, uint(20)).Return(d, nil)
	repository.On("GetRegistrationByID", mock.Anything, uint(2)).Return(reg, nil)
	repository.On("RecordDispatchOutcome", mock.Anything, uint(20),
		models.OutcomeCompleted, models.KindRegular, now).Return(models.ErrOutcomeAlreadySet)

	svc := testService(repository, now)
	err := svc.RecordOutcome(context.Background(), 20, models.OutcomeCompleted, "", now)

	var state *hallerrors.StateError
	assert.ErrorAs(s.T(), err, &state)
}

func (s *OutcomeServiceTestSuite) TestOutcomeOnUnacceptedDispatch() {
	memberID := uuid.NewRandom()
	d := acceptedDispatch(memberID, callStart, callEnd)
	d.Status = models.DispatchOffered
	reg := dispatchedReg(memberID)

	repository := models.NewMockRepository(s.T())
	repository.On("GetDispatchByID", mock.Anything, uint(20)).Return(d, nil)
	repository.On("GetRegistrationByID", mock.Anything, uint(2)).Return(reg, nil)

	svc := testService(repository, time.Now())
	err := svc.RecordOutcome(context.Background(), 20, models.OutcomeCompleted, "", time.Now())

	var state *hallerrors.StateError
	assert.ErrorAs(s.T(), err, &state)
}
