package service

import (
	"context"
	"strconv"
	"time"

	hallerrors "github.com/unionhall/hall-app/hall/errors"
	"github.com/unionhall/hall-app/hall/models"
)

// SubmitLaborRequest validates and timestamps an employer's request.
// Submissions after the daily cutoff are accepted but deferred one
// processing cycle; that is a scheduling offset, not an error.
func (s *service) SubmitLaborRequest(ctx context.Context, req models.LaborRequest) (*models.LaborRequest, error) {
	book, err := s.GetBook(ctx, req.BookID)
	if err != nil {
		return nil, err
	}
	if req.WorkerCount < 1 {
		return nil, &hallerrors.ValidationError{Entity: "labor request",
			Msg: "worker count must be at least 1"}
	}
	if req.EmployerID == nil {
		return nil, &hallerrors.ValidationError{Entity: "labor request",
			Msg: "employer is required"}
	}
	if req.ByName && req.NamedMemberID == nil {
		return nil, &hallerrors.ValidationError{Entity: "labor request",
			Msg: "by-name request must name a member"}
	}
	if req.StartDate.IsZero() || req.ExpectedEnd.Before(req.StartDate) {
		return nil, &hallerrors.ValidationError{Entity: "labor request",
			Msg: "start and expected end dates must be set and ordered"}
	}
	if req.Agreement == "" {
		// The request inherits the book's governing agreement.
		req.Agreement = book.Agreement
	}

	now := s.clock.Now().In(s.cfg.Location)
	req.SubmittedAt = now
	req.FilledCount = 0
	req.Status = models.RequestOpen
	req.ProcessAfter = s.processAfter(now)

	id, err := s.repository.CreateLaborRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	req.ID = id

	if req.ByName {
		// Anti-collusion: by-name requests are tracked, never rejected
		// here. The review signal fires at dispatch time.
		s.logger.Infof("by-name labor request %d from employer %s for member %s",
			id, req.EmployerID.String(), req.NamedMemberID.String())
	}

	return &req, nil
}

// processAfter computes the earliest referral-run date for a request
// submitted now: next business morning when before the cutoff, one
// cycle later otherwise.
func (s *service) processAfter(now time.Time) time.Time {
	day := nextBusinessDay(now)
	if !now.Before(s.cfg.intakeCutoff.at(now, s.cfg.Location)) {
		day = nextBusinessDay(day)
	}
	return truncateToDay(day)
}

func (s *service) CancelLaborRequest(ctx context.Context, requestID uint) error {
	req, err := s.GetLaborRequest(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.repository.UpdateLaborRequestStatusCheckStatus(ctx, requestID,
		models.RequestOpen, models.RequestCancelled); err != nil {
		if err == models.ErrRequestNotUpdated {
			return &hallerrors.StateError{Entity: "labor request",
				ID:    strconv.FormatUint(uint64(requestID), 10),
				State: string(req.Status), Msg: "only an open request can be cancelled"}
		}
		return err
	}
	return nil
}

func (s *service) GetLaborRequest(ctx context.Context, requestID uint) (*models.LaborRequest, error) {
	req, err := s.repository.GetLaborRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, &hallerrors.ValidationError{Entity: "labor request",
			ID: strconv.FormatUint(uint64(requestID), 10), Msg: "unknown labor request"}
	}
	return req, nil
}
