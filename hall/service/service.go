package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unionhall/hall-app/hall/models"
	"github.com/unionhall/hall-app/hall/models/postgres"
	"github.com/unionhall/hall-app/log"

	"github.com/unionhall/hall-app/hall/database"
)

// Ensure service satisfies the interface
var _ Service = &service{}

// Service contains all of the operations the hall exposes: the
// registration queue, labor-request intake, morning referral, bidding,
// outcome recording, and the enforcement ledger.
type Service interface {
	// Books (reference data)
	CreateBook(ctx context.Context, book models.Book) (uint, error)
	GetBook(ctx context.Context, bookID uint) (*models.Book, error)
	ListBooks(ctx context.Context) ([]*models.Book, error)

	// Registration queue
	Register(ctx context.Context, memberID uuid.UUID, bookID uint, tier int) (*models.Registration, error)
	ReSign(ctx context.Context, registrationID uint) (*models.Registration, error)
	Drop(ctx context.Context, registrationID uint, reason string) error
	QueuePositions(ctx context.Context, bookID uint) ([]*models.QueuePosition, error)
	RunReSignSweep(ctx context.Context, bookID uint) (flagged, expired int, err error)
	RunReSignSweeps(ctx context.Context) (flagged, expired int, err error)

	// Labor request intake
	SubmitLaborRequest(ctx context.Context, req models.LaborRequest) (*models.LaborRequest, error)
	CancelLaborRequest(ctx context.Context, requestID uint) error
	GetLaborRequest(ctx context.Context, requestID uint) (*models.LaborRequest, error)

	// Dispatch engine
	RunMorningReferral(ctx context.Context, date time.Time) (*ReferralSummary, error)
	OfferDispatch(ctx context.Context, requestID uint) (*models.Dispatch, error)
	AcceptOffer(ctx context.Context, dispatchID uint) (*models.Dispatch, error)
	RejectOffer(ctx context.Context, dispatchID uint) error

	// Outcome recorder
	RecordOutcome(ctx context.Context, dispatchID uint, outcome models.DispatchOutcome, kind models.OutcomeKind, actualEnd time.Time) error

	// Bidding
	SubmitBid(ctx context.Context, requestID uint, memberID uuid.UUID) (*models.JobBid, error)
	WithdrawBid(ctx context.Context, bidID uint) error
	ResolveBidWindow(ctx context.Context, requestID uint) (*models.Dispatch, error)
	ResolveBidWindows(ctx context.Context) (resolved int, err error)

	// Enforcement ledger
	IssueCheckMark(ctx context.Context, memberID uuid.UUID, bookID uint, reason string) (*models.CheckMark, error)
	GrantExemption(ctx context.Context, memberID uuid.UUID, reason string, unavailable bool, start, end time.Time) (*models.Exemption, error)
	MemberBlackouts(ctx context.Context, memberID uuid.UUID) ([]*models.BlackoutPeriod, error)
	GetEnforcementStatus(ctx context.Context, memberID uuid.UUID) (*models.EnforcementStatus, error)
	DispatchHistory(ctx context.Context, memberID uuid.UUID) ([]*models.Dispatch, error)
}

// AuditEnqueuer is the best-effort emit to the external audit sink.
// Failures are logged, never propagated: the transactional activity row
// is the durable record.
type AuditEnqueuer interface {
	EmitActivity(activity models.RegistrationActivity) error
}

func NewService(r models.Repository, db *sql.DB, cfg *Config, audit AuditEnqueuer, clock Clock) Service {
	if clock == nil {
		clock = systemClock{}
	}
	return &service{
		repository: r,
		db:         db,
		cfg:        cfg,
		audit:      audit,
		clock:      clock,
		locks:      newBookLocks(),
		logger:     log.Hall,
	}
}

type service struct {
	repository models.Repository
	// db is nil in unit tests; mutations then run against repository
	// without a transaction.
	db *sql.DB

	cfg   *Config
	audit AuditEnqueuer
	clock Clock
	locks *bookLocks

	logger logrus.FieldLogger
}

// withBookTx serializes fn against all other queue mutations on the
// book, then runs it in one transaction. fn must be re-runnable.
func (s *service) withBookTx(ctx context.Context, bookID uint, fn func(r models.Repository) error) error {
	unlock := s.locks.lock(bookID)
	defer unlock()

	if s.db == nil {
		return fn(s.repository)
	}
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(postgres.NewRepositoryTx(tx))
	})
}

// withTx runs fn in one transaction without taking a book lock, for
// mutations not scoped to any book.
func (s *service) withTx(ctx context.Context, fn func(r models.Repository) error) error {
	if s.db == nil {
		return fn(s.repository)
	}
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(postgres.NewRepositoryTx(tx))
	})
}

// recordActivity writes the transactional activity row and fires the
// best-effort audit emit.
func (s *service) recordActivity(ctx context.Context, r models.Repository, activity models.RegistrationActivity) error {
	if activity.RecordedAt.IsZero() {
		activity.RecordedAt = s.clock.Now()
	}
	if _, err := r.CreateRegistrationActivity(ctx, activity); err != nil {
		return err
	}

	if s.audit != nil {
		if err := s.audit.EmitActivity(activity); err != nil {
			log.Audit.Warnf("failed to emit %s activity for registration %d: %s",
				activity.Kind, activity.RegistrationID, err.Error())
		}
	}
	return nil
}
