package service

import (
	"context"
	"time"

	"github.com/pborman/uuid"

	"github.com/unionhall/hall-app/hall/constants"
	hallerrors "github.com/unionhall/hall-app/hall/errors"
	"github.com/unionhall/hall-app/hall/models"
)

// IssueCheckMark records a penalty mark against (member, book). The
// third mark drops the member's live registration on that book in the
// same operation.
func (s *service) IssueCheckMark(ctx context.Context, memberID uuid.UUID, bookID uint, reason string) (*models.CheckMark, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	var mark *models.CheckMark
	err := s.withBookTx(ctx, bookID, func(r models.Repository) error {
		var err error
		mark, err = s.issueCheckMarkTx(ctx, r, memberID, bookID, reason, s.clock.Now().In(s.cfg.Location))
		return err
	})
	if err != nil {
		return nil, err
	}
	return mark, nil
}

// issueCheckMarkTx runs under the caller's book lock and transaction.
func (s *service) issueCheckMarkTx(ctx context.Context, r models.Repository, memberID uuid.UUID, bookID uint, reason string, now time.Time) (*models.CheckMark, error) {
	mark := models.CheckMark{
		MemberID: memberID,
		BookID:   bookID,
		Reason:   reason,
		IssuedAt: now,
	}
	id, err := r.CreateCheckMark(ctx, mark)
	if err != nil {
		return nil, err
	}
	mark.ID = id

	count, err := r.CountCheckMarks(ctx, memberID, bookID)
	if err != nil {
		return nil, err
	}
	if count < s.cfg.CheckMarkCap {
		return &mark, nil
	}

	// Cap reached: the live registration on this book drops now, in the
	// same operation, never on a later sweep.
	reg, err := r.GetActiveRegistrationByMemberBook(ctx, memberID, bookID)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return &mark, nil
	}

	if err := r.UpdateRegistrationStatusCheckStatus(ctx, reg.ID, reg.Status,
		models.RegistrationDropped); err != nil {
		return nil, err
	}

	if err := s.recordActivity(ctx, r, models.RegistrationActivity{
		RegistrationID: reg.ID,
		MemberID:       memberID,
		BookID:         bookID,
		Kind:           constants.ActivityCheckMark,
		Detail:         constants.RuleCheckMarkCap,
	}); err != nil {
		return nil, err
	}

	s.logger.Warnf("member %s dropped from book %d on check mark %d",
		memberID.String(), bookID, count)
	return &mark, nil
}

// GrantExemption opens a time-boxed suspension of rule enforcement. An
// open-ended exemption has a zero end.
func (s *service) GrantExemption(ctx context.Context, memberID uuid.UUID, reason string, unavailable bool, start, end time.Time) (*models.Exemption, error) {
	if reason == "" {
		return nil, &hallerrors.ValidationError{Entity: "exemption", Msg: "a reason code is required"}
	}
	if start.IsZero() {
		start = s.clock.Now().In(s.cfg.Location)
	}
	if !end.IsZero() && end.Before(start) {
		return nil, &hallerrors.ValidationError{Entity: "exemption", Msg: "end precedes start"}
	}

	e := models.Exemption{
		MemberID:    memberID,
		Reason:      reason,
		Unavailable: unavailable,
		StartDate:   start,
		EndDate:     end,
	}
	err := s.withTx(ctx, func(r models.Repository) error {
		id, err := r.CreateExemption(ctx, e)
		if err != nil {
			return err
		}
		e.ID = id

		return s.recordActivity(ctx, r, models.RegistrationActivity{
			MemberID: memberID,
			Kind:     constants.ActivityExemption,
			Detail:   reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *service) MemberBlackouts(ctx context.Context, memberID uuid.UUID) ([]*models.BlackoutPeriod, error) {
	return s.repository.GetActiveBlackoutsByMember(ctx, memberID, s.clock.Now().In(s.cfg.Location))
}

// GetEnforcementStatus is a read-only snapshot; it takes no lock.
func (s *service) GetEnforcementStatus(ctx context.Context, memberID uuid.UUID) (*models.EnforcementStatus, error) {
	now := s.clock.Now().In(s.cfg.Location)

	marks, err := s.repository.GetCheckMarkCountsByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	exemptions, err := s.repository.GetActiveExemptions(ctx, memberID, now)
	if err != nil {
		return nil, err
	}
	blackouts, err := s.repository.GetActiveBlackoutsByMember(ctx, memberID, now)
	if err != nil {
		return nil, err
	}

	return &models.EnforcementStatus{
		MemberID:         memberID,
		CheckMarksByBook: marks,
		Exemptions:       exemptions,
		Blackouts:        blackouts,
	}, nil
}

func (s *service) DispatchHistory(ctx context.Context, memberID uuid.UUID) ([]*models.Dispatch, error) {
	return s.repository.GetDispatchesByMember(ctx, memberID)
}
