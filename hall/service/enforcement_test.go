package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/unionhall/hall-app/hall/constants"
	hallerrors "github.com/unionhall/hall-app/hall/errors"
	"github.com/unionhall/hall-app/hall/models"
	"github.com/unionhall/hall-app/hall/models/postgres"
)

type EnforcementServiceTestSuite struct {
	suite.Suite
}

func TestEnforcementServiceTestSuite(t *testing.T) {
	suite.Run(t, new(EnforcementServiceTestSuite))
}

func (s *EnforcementServiceTestSuite) TestIssueCheckMarkBelowCap() {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()

	repository := models.NewMockRepository(s.T())
	repository.On("GetBookByID", mock.Anything, uint(1)).Return(testBook(1), nil)
	repository.On("CreateCheckMark", mock.Anything, mock.MatchedBy(func(m models.CheckMark) bool {
		return m.Reason == "failed to report" && m.IssuedAt.Equal(now)
	})).Return(uint(1), nil)
	repository.On("CountCheckMarks", mock.Anything, memberID, uint(1)).Return(2, nil)

	svc := testService(repository, now)
	mark, err := svc.IssueCheckMark(context.Background(), memberID, 1, "failed to report")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), uint(1), mark.ID)
	repository.AssertNotCalled(s.T(), "GetActiveRegistrationByMemberBook",
		mock.Anything, mock.Anything, mock.Anything)
}

func (s *EnforcementServiceTestSuite) TestThirdCheckMarkDropsRegistration() {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()
	reg := activeReg(5, memberID, now.AddDate(0, 0, -10), 1)

	repository := models.NewMockRepository(s.T())
	repository.On("GetBookByID", mock.Anything, uint(1)).Return(testBook(1), nil)
	repository.On("CreateCheckMark", mock.Anything, mock.Anything).Return(uint(3), nil)
	repository.On("CountCheckMarks", mock.Anything, memberID, uint(1)).Return(3, nil)
	repository.On("GetActiveRegistrationByMemberBook", mock.Anything, memberID, uint(1)).Return(reg, nil)
	repository.On("UpdateRegistrationStatusCheckStatus", mock.Anything, uint(5),
		models.RegistrationActive, models.RegistrationDropped).Return(nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityCheckMark && a.RegistrationID == uint(5)
	})).Return(uint(1), nil)

	svc := testService(repository, now)
	_, err := svc.IssueCheckMark(context.Background(), memberID, 1, "no show")
	assert.NoError(s.T(), err)
}

func (s *EnforcementServiceTestSuite) TestGrantExemption() {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()

	repository := models.NewMockRepository(s.T())
	repository.On("CreateExemption", mock.Anything, mock.MatchedBy(func(e models.Exemption) bool {
		return e.Reason == "MILITARY" && e.StartDate.Equal(now) && e.EndDate.IsZero() && !e.Unavailable
	})).Return(uint(7), nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityExemption && a.RegistrationID == uint(0)
	})).Return(uint(1), nil)

	svc := testService(repository, now)
	e, err := svc.GrantExemption(context.Background(), memberID, "MILITARY", false, time.Time{}, time.Time{})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), uint(7), e.ID)
}

func (s *EnforcementServiceTestSuite) TestGrantExemptionCommitsAuditWithGrant() {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	db, dbmock, err := sqlmock.New()
	assert.NoError(s.T(), err)
	defer db.Close()

	dbmock.ExpectBegin()
	dbmock.ExpectQuery(`INSERT INTO exemptions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	dbmock.ExpectQuery(`INSERT INTO registration_activities`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	dbmock.ExpectCommit()

	svc := NewService(postgres.NewRepository(db), db, testConfig(), nil, fixedClock{now})
	e, err := svc.GrantExemption(context.Background(), uuid.NewRandom(), "MEDICAL", false,
		time.Time{}, time.Time{})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), uint(7), e.ID)
	assert.NoError(s.T(), dbmock.ExpectationsWereMet())
}

func (s *EnforcementServiceTestSuite) TestGrantExemptionRollsBackWhenAuditFails() {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	db, dbmock, err := sqlmock.New()
	assert.NoError(s.T(), err)
	defer db.Close()

	// The grant must not survive a failed activity write.
	dbmock.ExpectBegin()
	dbmock.ExpectQuery(`INSERT INTO exemptions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	dbmock.ExpectQuery(`INSERT INTO registration_activities`).
		WillReturnError(errors.New("connection reset"))
	dbmock.ExpectRollback()

	svc := NewService(postgres.NewRepository(db), db, testConfig(), nil, fixedClock{now})
	_, err = svc.GrantExemption(context.Background(), uuid.NewRandom(), "MEDICAL", false,
		time.Time{}, time.Time{})
	assert.Error(s.T(), err)
	assert.NoError(s.T(), dbmock.ExpectationsWereMet())
}

func (s *EnforcementServiceTestSuite) TestGrantExemptionValidation() {
	repository := models.NewMockRepository(s.T())
	svc := testService(repository, time.Now())

	_, err := svc.GrantExemption(context.Background(), uuid.NewRandom(), "", false, time.Time{}, time.Time{})
	var validation *hallerrors.ValidationError
	assert.ErrorAs(s.T(), err, &validation)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err = svc.GrantExemption(context.Background(), uuid.NewRandom(), "MEDICAL", false,
		start, start.AddDate(0, 0, -1))
	assert.ErrorAs(s.T(), err, &validation)
}

func (s *EnforcementServiceTestSuite) TestGetEnforcementStatus() {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()
	employerID := uuid.NewRandom()

	repository := models.NewMockRepository(s.T())
	repository.On("GetCheckMarkCountsByMember", mock.Anything, memberID).
		Return(map[uint]int{1: 2}, nil)
	repository.On("GetActiveExemptions", mock.Anything, memberID, now).
		Return([]*models.Exemption{{ID: 7, MemberID: memberID, Reason: "MEDICAL"}}, nil)
	repository.On("GetActiveBlackoutsByMember", mock.Anything, memberID, now).
		Return([]*models.BlackoutPeriod{{ID: 3, MemberID: memberID, EmployerID: employerID}}, nil)

	svc := testService(repository, now)
	status, err := svc.GetEnforcementStatus(context.Background(), memberID)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 2, status.CheckMarksByBook[1])
	assert.Len(s.T(), status.Exemptions, 1)
	assert.Len(s.T(), status.Blackouts, 1)
}

func (s *EnforcementServiceTestSuite) TestDispatchHistory() {
	memberID := uuid.NewRandom()

	repository := models.NewMockRepository(s.T())
	repository.On("GetDispatchesByMember", mock.Anything, memberID).
		Return([]*models.Dispatch{{ID: 20, MemberID: memberID}}, nil)

	svc := testService(repository, time.Now())
	history, err := svc.DispatchHistory(context.Background(), memberID)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), history, 1)
}
