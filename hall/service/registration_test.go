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

func testConfig() *Config {
	cfg := &Config{
		ReSignCycleDays:      30,
		ReSignGraceDays:      3,
		ShortCallMaxDays:     10,
		LongCallUnderDays:    3,
		ShortCallsPerCycle:   2,
		CheckMarkCap:         3,
		BlackoutDays:         14,
		BidWindowOpen:        "17:30",
		BidWindowClose:       "07:00",
		BidRejectionWindowMo: 12,
		BidSuspensionYears:   1,
		IntakeCutoff:         "15:00",
		ByNameRatioThreshold: 0.5,
		ByNameWindowMonths:   6,
		ClassificationOrder:  []string{"WIREMAN", "SOUND_COMM", "TRADESHOW"},
		Location:             time.UTC,
	}
	if err := cfg.compile(); err != nil {
		panic(err)
	}
	return cfg
}

func testService(repo models.Repository, now time.Time) *service {
	return NewService(repo, nil, testConfig(), nil, fixedClock{now}).(*service)
}

func testBook(id uint) *models.Book {
	return &models.Book{ID: id, Classification: "WIREMAN", Region: "NORTH",
		Agreement: models.AgreementStandard, TierCount: 4}
}

type RegistrationServiceTestSuite struct {
	suite.Suite
}

func TestRegistrationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(RegistrationServiceTestSuite))
}

func (s *RegistrationServiceTestSuite) TestRegister() {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()

	repository := models.NewMockRepository(s.T())
	repository.On("GetBookByID", mock.Anything, uint(1)).Return(testBook(1), nil)
	repository.On("GetActiveRegistration", mock.Anything, memberID, "WIREMAN").Return(nil, nil)
	repository.On("GetMaxPrioritySequence", mock.Anything, uint(1), int64(20260302)).Return(int64(4), nil)
	repository.On("CreateRegistration", mock.Anything, mock.MatchedBy(func(reg models.Registration) bool {
		key, _ := models.NewPriorityKey(now, 5)
		return reg.Status == models.RegistrationActive &&
			reg.Classification == "WIREMAN" &&
			reg.PriorityKey.Equal(key) && reg.LastResignAt.Equal(now)
	})).Return(uint(10), nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityRegister && a.RegistrationID == uint(10)
	})).Return(uint(1), nil)

	svc := testService(repository, now)
	reg, err := svc.Register(context.Background(), memberID, 1, 1)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), uint(10), reg.ID)
	assert.Equal(s.T(), int64(5), models.PrioritySequence(reg.PriorityKey))
}

func (s *RegistrationServiceTestSuite) TestRegisterDuplicateClassification() {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()

	repository := models.NewMockRepository(s.T())
	repository.On("GetBookByID", mock.Anything, uint(1)).Return(testBook(1), nil)
	repository.On("GetActiveRegistration", mock.Anything, memberID, "WIREMAN").
		Return(&models.Registration{ID: 7, Status: models.RegistrationActive}, nil)

	svc := testService(repository, now)
	_, err := svc.Register(context.Background(), memberID, 1, 1)

	var conflict *hallerrors.ConflictError
	assert.ErrorAs(s.T(), err, &conflict)
	assert.Equal(s.T(), constants.RuleDuplicateRegistration, conflict.Rule)
}

func (s *RegistrationServiceTestSuite) TestRegisterLosesCrossBookRace() {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()

	// The duplicate check sees nothing, but a registration on a sibling
	// book of the same classification commits first and the insert trips
	// the one-live-per-classification index.
	repository := models.NewMockRepository(s.T())
	repository.On("GetBookByID", mock.Anything, uint(1)).Return(testBook(1), nil)
	repository.On("GetActiveRegistration", mock.Anything, memberID, "WIREMAN").Return(nil, nil)
	repository.On("GetMaxPrioritySequence", mock.Anything, uint(1), int64(20260302)).Return(int64(0), nil)
	repository.On("CreateRegistration", mock.Anything, mock.Anything).
		Return(uint(0), models.ErrDuplicateRegistration)

	svc := testService(repository, now)
	_, err := svc.Register(context.Background(), memberID, 1, 1)

	var conflict *hallerrors.ConflictError
	assert.ErrorAs(s.T(), err, &conflict)
	assert.Equal(s.T(), constants.RuleDuplicateRegistration, conflict.Rule)
}

func (s *RegistrationServiceTestSuite) TestRegisterUnknownBook() {
	repository := models.NewMockRepository(s.T())
	repository.On("GetBookByID", mock.Anything, uint(99)).Return(nil, nil)

	svc := testService(repository, time.Now())
	_, err := svc.Register(context.Background(), uuid.NewRandom(), 99, 1)

	var validation *hallerrors.ValidationError
	assert.ErrorAs(s.T(), err, &validation)
}

func (s *RegistrationServiceTestSuite) TestRegisterTierOutOfRange() {
	repository := models.NewMockRepository(s.T())
	repository.On("GetBookByID", mock.Anything, uint(1)).Return(testBook(1), nil)

	svc := testService(repository, time.Now())
	_, err := svc.Register(context.Background(), uuid.NewRandom(), 1, 5)

	var validation *hallerrors.ValidationError
	assert.ErrorAs(s.T(), err, &validation)
}

func (s *RegistrationServiceTestSuite) TestReSignInsideCycle() {
	registered := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	now := registered.AddDate(0, 0, 29)
	memberID := uuid.NewRandom()

	reg := &models.Registration{ID: 10, MemberID: memberID, BookID: 1,
		Status: models.RegistrationActive, LastResignAt: registered}

	repository := models.NewMockRepository(s.T())
	repository.On("GetRegistrationByID", mock.Anything, uint(10)).Return(reg, nil)
	repository.On("UpdateRegistrationResign", mock.Anything, uint(10), now).Return(nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityReSign
	})).Return(uint(2), nil)

	svc := testService(repository, now)
	updated, err := svc.ReSign(context.Background(), 10)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), now, updated.LastResignAt)
}

func (s *RegistrationServiceTestSuite) TestReSignPastGrace() {
	registered := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	now := registered.AddDate(0, 0, 34)

	reg := &models.Registration{ID: 10, BookID: 1,
		Status: models.RegistrationActive, LastResignAt: registered}

	repository := models.NewMockRepository(s.T())
	repository.On("GetRegistrationByID", mock.Anything, uint(10)).Return(reg, nil)

	svc := testService(repository, now)
	_, err := svc.ReSign(context.Background(), 10)

	var state *hallerrors.StateError
	assert.ErrorAs(s.T(), err, &state)
}

func (s *RegistrationServiceTestSuite) TestReSignNonActive() {
	reg := &models.Registration{ID: 10, BookID: 1,
		Status: models.RegistrationDropped, LastResignAt: time.Now()}

	repository := models.NewMockRepository(s.T())
	repository.On("GetRegistrationByID", mock.Anything, uint(10)).Return(reg, nil)

	svc := testService(repository, time.Now())
	_, err := svc.ReSign(context.Background(), 10)

	var state *hallerrors.StateError
	assert.ErrorAs(s.T(), err, &state)
}

func (s *RegistrationServiceTestSuite) TestDrop() {
	memberID := uuid.NewRandom()
	reg := &models.Registration{ID: 10, MemberID: memberID, BookID: 1,
		Status: models.RegistrationActive}

	repository := models.NewMockRepository(s.T())
	repository.On("GetRegistrationByID", mock.Anything, uint(10)).Return(reg, nil)
	repository.On("UpdateRegistrationStatusCheckStatus", mock.Anything, uint(10),
		models.RegistrationActive, models.RegistrationDropped).Return(nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityDrop && a.Detail == "member request"
	})).Return(uint(3), nil)

	svc := testService(repository, time.Now())
	assert.NoError(s.T(), svc.Drop(context.Background(), 10, "member request"))
}

func (s *RegistrationServiceTestSuite) TestQueuePositionsRanked() {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	key1, _ := models.NewPriorityKey(now.AddDate(0, 0, -2), 1)
	key2, _ := models.NewPriorityKey(now.AddDate(0, 0, -1), 1)

	repository := models.NewMockRepository(s.T())
	repository.On("GetBookByID", mock.Anything, uint(1)).Return(testBook(1), nil)
	repository.On("GetActiveRegistrationsByBook", mock.Anything, uint(1)).Return([]*models.Registration{
		{ID: 1, MemberID: uuid.NewRandom(), PriorityKey: key1, Status: models.RegistrationActive},
		{ID: 2, MemberID: uuid.NewRandom(), PriorityKey: key2, Status: models.RegistrationActive},
	}, nil)

	svc := testService(repository, now)
	positions, err := svc.QueuePositions(context.Background(), 1)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), positions, 2)
	assert.Equal(s.T(), 1, positions[0].Rank)
	assert.Equal(s.T(), 2, positions[1].Rank)
}

func (s *RegistrationServiceTestSuite) TestReSignSweepFlagsOverdue() {
	now := time.Date(2026, 4, 15, 6, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()
	// 31 days since last re-sign: overdue, inside grace.
	reg := &models.Registration{ID: 10, MemberID: memberID, BookID: 1,
		Status: models.RegistrationActive, LastResignAt: now.AddDate(0, 0, -31)}

	repository := models.NewMockRepository(s.T())
	repository.On("GetOverdueRegistrations", mock.Anything, uint(1), now.AddDate(0, 0, -30)).
		Return([]*models.Registration{reg}, nil)
	repository.On("GetActiveExemptions", mock.Anything, memberID, now).Return(nil, nil)
	repository.On("UpdateRegistrationOverdue", mock.Anything, uint(10), now).Return(nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityOverdue
	})).Return(uint(4), nil)

	svc := testService(repository, now)
	flagged, expired, err := svc.RunReSignSweep(context.Background(), 1)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 1, flagged)
	assert.Equal(s.T(), 0, expired)
}

func (s *RegistrationServiceTestSuite) TestReSignSweepExpiresPastGrace() {
	now := time.Date(2026, 4, 15, 6, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()
	reg := &models.Registration{ID: 11, MemberID: memberID, BookID: 1,
		Status: models.RegistrationActive, LastResignAt: now.AddDate(0, 0, -40)}

	repository := models.NewMockRepository(s.T())
	repository.On("GetOverdueRegistrations", mock.Anything, uint(1), mock.Anything).
		Return([]*models.Registration{reg}, nil)
	repository.On("GetActiveExemptions", mock.Anything, memberID, now).Return(nil, nil)
	repository.On("UpdateRegistrationStatusCheckStatus", mock.Anything, uint(11),
		models.RegistrationActive, models.RegistrationExpired).Return(nil)
	repository.On("CreateRegistrationActivity", mock.Anything, mock.MatchedBy(func(a models.RegistrationActivity) bool {
		return a.Kind == constants.ActivityExpire
	})).Return(uint(5), nil)

	svc := testService(repository, now)
	flagged, expired, err := svc.RunReSignSweep(context.Background(), 1)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 0, flagged)
	assert.Equal(s.T(), 1, expired)
}

func (s *RegistrationServiceTestSuite) TestReSignSweepSkipsExemptMembers() {
	now := time.Date(2026, 4, 15, 6, 0, 0, 0, time.UTC)
	memberID := uuid.NewRandom()
	reg := &models.Registration{ID: 12, MemberID: memberID, BookID: 1,
		Status: models.RegistrationActive, LastResignAt: now.AddDate(0, 0, -60)}

	repository := models.NewMockRepository(s.T())
	repository.On("GetOverdueRegistrations", mock.Anything, uint(1), mock.Anything).
		Return([]*models.Registration{reg}, nil)
	repository.On("GetActiveExemptions", mock.Anything, memberID, now).
		Return([]*models.Exemption{{MemberID: memberID, Reason: "MILITARY", StartDate: now.AddDate(0, -3, 0)}}, nil)

	svc := testService(repository, now)
	flagged, expired, err := svc.RunReSignSweep(context.Background(), 1)
	assert.NoError(s.T(), err)
	assert.Zero(s.T(), flagged)
	assert.Zero(s.T(), expired)
}
