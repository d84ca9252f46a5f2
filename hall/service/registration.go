package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/unionhall/hall-app/hall/constants"
	hallerrors "github.com/unionhall/hall-app/hall/errors"
	"github.com/unionhall/hall-app/hall/models"
)

func (s *service) CreateBook(ctx context.Context, book models.Book) (uint, error) {
	if book.Classification == "" {
		return 0, &hallerrors.ValidationError{Entity: "book", Msg: "classification is required"}
	}
	if book.Agreement == "" {
		book.Agreement = models.AgreementStandard
	}
	return s.repository.CreateBook(ctx, book)
}

func (s *service) GetBook(ctx context.Context, bookID uint) (*models.Book, error) {
	book, err := s.repository.GetBookByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, &hallerrors.ValidationError{Entity: "book", ID: strconv.FormatUint(uint64(bookID), 10), Msg: "unknown book"}
	}
	return book, nil
}

func (s *service) ListBooks(ctx context.Context) ([]*models.Book, error) {
	return s.repository.ListBooks(ctx)
}

// Register places the member at the back of the book's queue. It fails
// with a ConflictError when the member already holds a live registration
// on any book of the same classification.
func (s *service) Register(ctx context.Context, memberID uuid.UUID, bookID uint, tier int) (*models.Registration, error) {
	book, err := s.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if tier < 1 || tier > book.TierCount {
		return nil, &hallerrors.ValidationError{Entity: "registration",
			Msg: fmt.Sprintf("tier %d outside book range 1-%d", tier, book.TierCount)}
	}

	var reg *models.Registration
	err = s.withBookTx(ctx, bookID, func(r models.Repository) error {
		existing, err := r.GetActiveRegistration(ctx, memberID, book.Classification)
		if err != nil {
			return err
		}
		if existing != nil {
			return &hallerrors.ConflictError{Entity: "registration",
				ID:   strconv.FormatUint(uint64(existing.ID), 10),
				Rule: constants.RuleDuplicateRegistration}
		}

		now := s.clock.Now().In(s.cfg.Location)
		key, err := s.nextPriorityKey(ctx, r, bookID, now)
		if err != nil {
			return err
		}

		reg = &models.Registration{
			MemberID:       memberID,
			BookID:         bookID,
			Classification: book.Classification,
			PriorityKey:    key,
			Tier:           tier,
			Status:         models.RegistrationActive,
			LastResignAt:   now,
		}
		id, err := r.CreateRegistration(ctx, *reg)
		if err != nil {
			if err == models.ErrDuplicateRegistration {
				// A registration on a sibling book of the same
				// classification committed between the check above and
				// this insert; the partial unique index caught it.
				return &hallerrors.ConflictError{Entity: "registration",
					Rule: constants.RuleDuplicateRegistration}
			}
			return errors.Wrap(err, "could not create registration")
		}
		reg.ID = id

		return s.recordActivity(ctx, r, models.RegistrationActivity{
			RegistrationID: id,
			MemberID:       memberID,
			BookID:         bookID,
			Kind:           constants.ActivityRegister,
			Detail:         "registered with key " + key.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// nextPriorityKey allocates the next unique key on the book for the
// given day. The caller must hold the book lock: two allocations in the
// same instant would otherwise collide and trip the unique index.
func (s *service) nextPriorityKey(ctx context.Context, r models.Repository, bookID uint, now time.Time) (decimal.Decimal, error) {
	serial := models.DaySerial(now)
	seq, err := r.GetMaxPrioritySequence(ctx, bookID, serial)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return models.NewPriorityKey(now, seq+1)
}

// ReSign renews the registration's 30-day cycle. Valid any time while
// ACTIVE and inside the cycle plus grace; past that the sweep has
// already expired it.
func (s *service) ReSign(ctx context.Context, registrationID uint) (*models.Registration, error) {
	reg, err := s.getRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	err = s.withBookTx(ctx, reg.BookID, func(r models.Repository) error {
		reg, err = r.GetRegistrationByID(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != models.RegistrationActive {
			return &hallerrors.StateError{Entity: "registration",
				ID:    strconv.FormatUint(uint64(registrationID), 10),
				State: string(reg.Status), Msg: "only an active registration can re-sign"}
		}

		now := s.clock.Now().In(s.cfg.Location)
		deadline := reg.LastResignAt.AddDate(0, 0, s.cfg.ReSignCycleDays+s.cfg.ReSignGraceDays)
		if now.After(deadline) {
			return &hallerrors.StateError{Entity: "registration",
				ID:    strconv.FormatUint(uint64(registrationID), 10),
				State: string(reg.Status), Msg: constants.RuleReSignCycle + " elapsed"}
		}

		if err := r.UpdateRegistrationResign(ctx, registrationID, now); err != nil {
			return err
		}
		reg.LastResignAt = now
		reg.OverdueAt = time.Time{}

		return s.recordActivity(ctx, r, models.RegistrationActivity{
			RegistrationID: registrationID,
			MemberID:       reg.MemberID,
			BookID:         reg.BookID,
			Kind:           constants.ActivityReSign,
		})
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// Drop removes the registration from the queue. The row survives with
// DROPPED status for audit continuity.
func (s *service) Drop(ctx context.Context, registrationID uint, reason string) error {
	reg, err := s.getRegistration(ctx, registrationID)
	if err != nil {
		return err
	}

	return s.withBookTx(ctx, reg.BookID, func(r models.Repository) error {
		if err := r.UpdateRegistrationStatusCheckStatus(ctx, registrationID,
			models.RegistrationActive, models.RegistrationDropped); err != nil {
			if err == models.ErrRegistrationNotUpdated {
				return &hallerrors.StateError{Entity: "registration",
					ID:    strconv.FormatUint(uint64(registrationID), 10),
					State: string(reg.Status), Msg: "only an active registration can be dropped"}
			}
			return err
		}

		return s.recordActivity(ctx, r, models.RegistrationActivity{
			RegistrationID: registrationID,
			MemberID:       reg.MemberID,
			BookID:         reg.BookID,
			Kind:           constants.ActivityDrop,
			Detail:         reason,
		})
	})
}

// QueuePositions is a read-only snapshot; it takes no lock.
func (s *service) QueuePositions(ctx context.Context, bookID uint) ([]*models.QueuePosition, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	regs, err := s.repository.GetActiveRegistrationsByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	positions := make([]*models.QueuePosition, 0, len(regs))
	for i, reg := range regs {
		positions = append(positions, &models.QueuePosition{
			Rank:        i + 1,
			MemberID:    reg.MemberID,
			BookID:      bookID,
			PriorityKey: reg.PriorityKey,
			Status:      reg.Status,
			Exempt:      reg.Exempt,
		})
	}
	return positions, nil
}

// RunReSignSweep flags overdue registrations and expires those whose
// grace window has elapsed. Exempt members are skipped: an active
// exemption suspends the re-sign cycle. Idempotent.
func (s *service) RunReSignSweep(ctx context.Context, bookID uint) (int, int, error) {
	var flagged, expired int

	err := s.withBookTx(ctx, bookID, func(r models.Repository) error {
		flagged, expired = 0, 0

		now := s.clock.Now().In(s.cfg.Location)
		cutoff := now.AddDate(0, 0, -s.cfg.ReSignCycleDays)

		overdue, err := r.GetOverdueRegistrations(ctx, bookID, cutoff)
		if err != nil {
			return err
		}

		for _, reg := range overdue {
			exempt, err := s.exemptFromSweep(ctx, r, reg.MemberID, now)
			if err != nil {
				return err
			}
			if exempt {
				continue
			}

			graceEnd := reg.LastResignAt.AddDate(0, 0, s.cfg.ReSignCycleDays+s.cfg.ReSignGraceDays)
			if now.After(graceEnd) {
				if err := r.UpdateRegistrationStatusCheckStatus(ctx, reg.ID,
					models.RegistrationActive, models.RegistrationExpired); err != nil {
					return err
				}
				expired++
				if err := s.recordActivity(ctx, r, models.RegistrationActivity{
					RegistrationID: reg.ID,
					MemberID:       reg.MemberID,
					BookID:         bookID,
					Kind:           constants.ActivityExpire,
				}); err != nil {
					return err
				}
				continue
			}

			if !reg.OverdueAt.IsZero() {
				// Already flagged on an earlier sweep.
				continue
			}
			if err := r.UpdateRegistrationOverdue(ctx, reg.ID, now); err != nil {
				return err
			}
			flagged++
			if err := s.recordActivity(ctx, r, models.RegistrationActivity{
				RegistrationID: reg.ID,
				MemberID:       reg.MemberID,
				BookID:         bookID,
				Kind:           constants.ActivityOverdue,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return flagged, expired, err
}

func (s *service) RunReSignSweeps(ctx context.Context) (int, int, error) {
	books, err := s.repository.ListBooks(ctx)
	if err != nil {
		return 0, 0, err
	}

	var flagged, expired int
	for _, book := range books {
		f, e, err := s.RunReSignSweep(ctx, book.ID)
		if err != nil {
			return flagged, expired, errors.Wrapf(err, "sweep failed on book %d", book.ID)
		}
		flagged += f
		expired += e
	}
	return flagged, expired, nil
}

func (s *service) exemptFromSweep(ctx context.Context, r models.Repository, memberID uuid.UUID, now time.Time) (bool, error) {
	exemptions, err := r.GetActiveExemptions(ctx, memberID, now)
	if err != nil {
		return false, err
	}
	return len(exemptions) > 0, nil
}

func (s *service) getRegistration(ctx context.Context, registrationID uint) (*models.Registration, error) {
	reg, err := s.repository.GetRegistrationByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, &hallerrors.ValidationError{Entity: "registration",
			ID: strconv.FormatUint(uint64(registrationID), 10), Msg: "unknown registration"}
	}
	return reg, nil
}
