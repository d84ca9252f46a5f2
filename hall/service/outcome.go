package service

import (
	"context"
	"strconv"
	"time"

	"github.com/unionhall/hall-app/hall/constants"
	hallerrors "github.com/unionhall/hall-app/hall/errors"
	"github.com/unionhall/hall-app/hall/models"
)

// reactivationDays is the layoff window inside which a member returns to
// their original book position instead of the back of the queue.
const reactivationDays = 90

// RecordOutcome closes out an accepted dispatch. Outcomes are terminal.
// The recorder feeds the enforcement ledger (blackouts, check marks) and
// the registration queue (short-call and reactivation returns) in the
// same transaction.
func (s *service) RecordOutcome(ctx context.Context, dispatchID uint, outcome models.DispatchOutcome, kind models.OutcomeKind, actualEnd time.Time) error {
	if outcome == models.OutcomePending {
		return &hallerrors.ValidationError{Entity: "dispatch",
			ID: strconv.FormatUint(uint64(dispatchID), 10), Msg: "an outcome must be stated"}
	}
	if kind == "" {
		kind = models.KindRegular
	}

	d, err := s.getDispatch(ctx, dispatchID)
	if err != nil {
		return err
	}
	reg, err := s.getRegistration(ctx, d.RegistrationID)
	if err != nil {
		return err
	}

	return s.withBookTx(ctx, reg.BookID, func(r models.Repository) error {
		d, err = r.GetDispatchByID(ctx, dispatchID)
		if err != nil {
			return err
		}
		if d.Status != models.DispatchAccepted {
			return &hallerrors.StateError{Entity: "dispatch",
				ID:    strconv.FormatUint(uint64(dispatchID), 10),
				State: string(d.Status), Msg: "only an accepted dispatch takes an outcome"}
		}

		if err := r.RecordDispatchOutcome(ctx, dispatchID, outcome, kind, actualEnd); err != nil {
			if err == models.ErrOutcomeAlreadySet {
				return &hallerrors.StateError{Entity: "dispatch",
					ID:    strconv.FormatUint(uint64(dispatchID), 10),
					State: string(d.Outcome), Msg: "outcome is already recorded"}
			}
			return err
		}

		now := s.clock.Now().In(s.cfg.Location)

		if outcome == models.OutcomeQuit || outcome == models.OutcomeTerminated {
			if err := s.openBlackout(ctx, r, d, now); err != nil {
				return err
			}
			if !kind.CheckMarkExempt() {
				if _, err := s.issueCheckMarkTx(ctx, r, d.MemberID, reg.BookID,
					"dispatch "+strconv.FormatUint(uint64(dispatchID), 10)+" ended "+string(outcome), now); err != nil {
					return err
				}
			}
		}

		if err := s.returnToQueue(ctx, r, d, reg, outcome, kind, actualEnd, now); err != nil {
			return err
		}

		return s.recordActivity(ctx, r, models.RegistrationActivity{
			RegistrationID: reg.ID,
			MemberID:       d.MemberID,
			BookID:         reg.BookID,
			Kind:           constants.ActivityOutcome,
			Detail:         string(outcome) + "/" + string(kind),
		})
	})
}

func (s *service) openBlackout(ctx context.Context, r models.Repository, d *models.Dispatch, now time.Time) error {
	_, err := r.CreateBlackoutPeriod(ctx, models.BlackoutPeriod{
		MemberID:   d.MemberID,
		EmployerID: d.EmployerID,
		DispatchID: d.ID,
		StartDate:  now,
		EndDate:    now.AddDate(0, 0, s.cfg.BlackoutDays),
	})
	return err
}

// returnToQueue decides what the closed dispatch does to the member's
// book position:
//   - short call completed under the cap: back on the book at the same
//     key, one slot consumed
//   - under-scale placement: back at the same key, no slot consumed
//   - layoff within the reactivation window: back at the same key
//   - everything else, including calls at or under the long-call floor:
//     the member is off the book and registers fresh at the back
func (s *service) returnToQueue(ctx context.Context, r models.Repository, d *models.Dispatch, reg *models.Registration, outcome models.DispatchOutcome, kind models.OutcomeKind, actualEnd, now time.Time) error {
	if err := r.UpdateRegistrationStatusCheckStatus(ctx, reg.ID,
		models.RegistrationDispatched, models.RegistrationResigned); err != nil {
		if err == models.ErrRegistrationNotUpdated {
			// Dropped mid-dispatch by a third check mark; nothing to return.
			return nil
		}
		return err
	}

	retain, consumeSlot := s.returnDisposition(reg, d, outcome, kind, actualEnd)
	if !retain {
		return nil
	}

	next := models.Registration{
		MemberID:       reg.MemberID,
		BookID:         reg.BookID,
		Classification: reg.Classification,
		PriorityKey:    reg.PriorityKey,
		Tier:           reg.Tier,
		Status:         models.RegistrationActive,
		ShortCallCount: reg.ShortCallCount,
		LastResignAt:   now,
	}
	if consumeSlot {
		next.ShortCallCount++
	}

	id, err := r.CreateRegistration(ctx, next)
	if err != nil {
		return err
	}

	return s.recordActivity(ctx, r, models.RegistrationActivity{
		RegistrationID: id,
		MemberID:       reg.MemberID,
		BookID:         reg.BookID,
		Kind:           constants.ActivityReturn,
		Detail:         "retained key " + reg.PriorityKey.String(),
	})
}

func (s *service) returnDisposition(reg *models.Registration, d *models.Dispatch, outcome models.DispatchOutcome, kind models.OutcomeKind, actualEnd time.Time) (retain, consumeSlot bool) {
	if outcome == models.OutcomeQuit || outcome == models.OutcomeTerminated {
		return false, false
	}

	if kind == models.KindUnderScale {
		return true, false
	}

	length := callLengthBusinessDays(d.StartDate, actualEnd)
	if length <= s.cfg.LongCallUnderDays {
		// Reclassified as a long call: rotates, no slot consumed.
		return false, false
	}
	if length <= s.cfg.ShortCallMaxDays {
		if reg.ShortCallCount >= s.cfg.ShortCallsPerCycle {
			return false, false
		}
		return true, true
	}

	if outcome == models.OutcomeLaidOff &&
		int(actualEnd.Sub(d.StartDate).Hours()/24) <= reactivationDays {
		return true, false
	}

	return false, false
}
