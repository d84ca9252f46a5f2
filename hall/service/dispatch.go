package service

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/unionhall/hall-app/hall/constants"
	hallerrors "github.com/unionhall/hall-app/hall/errors"
	"github.com/unionhall/hall-app/hall/models"
)

// ReferralSummary reports what a morning referral run did.
type ReferralSummary struct {
	Date              time.Time `json:"date"`
	BooksProcessed    int       `json:"books_processed"`
	RequestsProcessed int       `json:"requests_processed"`
	OffersCreated     int       `json:"offers_created"`
	RequestsStarved   int       `json:"requests_starved"` // open requests with no eligible candidate left
}

// OfferDispatch selects the next eligible registrant for the request and
// creates a provisional OFFERED dispatch. The offer becomes an
// assignment on AcceptOffer.
func (s *service) OfferDispatch(ctx context.Context, requestID uint) (*models.Dispatch, error) {
	req, err := s.GetLaborRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	book, err := s.GetBook(ctx, req.BookID)
	if err != nil {
		return nil, err
	}

	var dispatch *models.Dispatch
	err = s.withBookTx(ctx, req.BookID, func(r models.Repository) error {
		req, err = r.GetLaborRequestByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestOpen {
			return &hallerrors.StateError{Entity: "labor request",
				ID:    strconv.FormatUint(uint64(requestID), 10),
				State: string(req.Status), Msg: "offers only come from open requests"}
		}

		now := s.clock.Now().In(s.cfg.Location)
		if now.Before(req.ProcessAfter) {
			return &hallerrors.StateError{Entity: "labor request",
				ID:    strconv.FormatUint(uint64(requestID), 10),
				State: string(req.Status),
				Msg:   "deferred until " + req.ProcessAfter.Format("2006-01-02")}
		}

		dispatch, err = s.offerTx(ctx, r, req, book, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dispatch, nil
}

// offerTx runs under the book lock inside the caller's transaction.
func (s *service) offerTx(ctx context.Context, r models.Repository, req *models.LaborRequest, book *models.Book, now time.Time) (*models.Dispatch, error) {
	reg, err := s.selectCandidate(ctx, r, req, book, now)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, &hallerrors.StateError{Entity: "labor request",
			ID:    strconv.FormatUint(uint64(req.ID), 10),
			State: string(req.Status), Msg: "no eligible registrant on the book"}
	}

	d := models.Dispatch{
		RegistrationID: reg.ID,
		RequestID:      req.ID,
		MemberID:       reg.MemberID,
		EmployerID:     req.EmployerID,
		StartDate:      req.StartDate,
		ExpectedEnd:    req.ExpectedEnd,
		ShortCall:      s.isShortCall(req.StartDate, req.ExpectedEnd),
		ByName:         req.ByName,
		Status:         models.DispatchOffered,
	}
	id, err := r.CreateDispatch(ctx, d)
	if err != nil {
		return nil, errors.Wrap(err, "could not create dispatch offer")
	}
	d.ID = id

	if req.ByName {
		if err := s.flagByNameRate(ctx, r, &d, reg.BookID, now); err != nil {
			return nil, err
		}
	}

	return &d, nil
}

// selectCandidate walks the queue in priority order and returns the
// first registrant no rule excludes, or nil when the book is exhausted.
func (s *service) selectCandidate(ctx context.Context, r models.Repository, req *models.LaborRequest, book *models.Book, now time.Time) (*models.Registration, error) {
	if req.ByName {
		return s.selectNamed(ctx, r, req, now)
	}

	regs, err := r.GetActiveRegistrationsByBook(ctx, req.BookID)
	if err != nil {
		return nil, err
	}
	if !book.Agreement.Standard() {
		// Agreement books drop the same-day tie-break: day order only,
		// ties broken by earliest re-sign.
		sort.SliceStable(regs, func(i, j int) bool {
			di, dj := regs[i].PriorityKey.IntPart(), regs[j].PriorityKey.IntPart()
			if di != dj {
				return di < dj
			}
			return regs[i].LastResignAt.Before(regs[j].LastResignAt)
		})
	}

	excluded, err := s.alreadyOffered(ctx, r, req.ID)
	if err != nil {
		return nil, err
	}

	shortCall := s.isShortCall(req.StartDate, req.ExpectedEnd)
	for _, reg := range regs {
		if excluded[reg.MemberID.String()] {
			continue
		}
		if shortCall && reg.ShortCallCount >= s.cfg.ShortCallsPerCycle {
			continue
		}

		eligible, err := s.eligibleForDispatch(ctx, r, reg, req, now)
		if err != nil {
			return nil, err
		}
		if eligible {
			return reg, nil
		}
	}
	return nil, nil
}

// selectNamed resolves a by-name request. Queue order is bypassed but
// the blackout rule is a hard error, never a skip.
func (s *service) selectNamed(ctx context.Context, r models.Repository, req *models.LaborRequest, now time.Time) (*models.Registration, error) {
	blackout, err := r.GetActiveBlackout(ctx, req.NamedMemberID, req.EmployerID, now)
	if err != nil {
		return nil, err
	}
	if blackout != nil {
		return nil, &hallerrors.EnforcementViolation{Entity: "labor request",
			ID:     strconv.FormatUint(uint64(req.ID), 10),
			Rule:   constants.RuleBlackoutByName,
			Reason: "member is blacked out with this employer until " + blackout.EndDate.Format("2006-01-02")}
	}

	reg, err := r.GetActiveRegistrationByMemberBook(ctx, req.NamedMemberID, req.BookID)
	if err != nil {
		return nil, err
	}
	if reg == nil || reg.Status != models.RegistrationActive {
		return nil, &hallerrors.StateError{Entity: "labor request",
			ID:    strconv.FormatUint(uint64(req.ID), 10),
			State: string(req.Status), Msg: "named member holds no active registration on the book"}
	}
	if unavailable, err := s.unavailableByExemption(ctx, r, reg, now); err != nil || unavailable {
		if err != nil {
			return nil, err
		}
		return nil, &hallerrors.StateError{Entity: "labor request",
			ID:    strconv.FormatUint(uint64(req.ID), 10),
			State: string(req.Status), Msg: "named member is unavailable under an exemption"}
	}
	return reg, nil
}

func (s *service) eligibleForDispatch(ctx context.Context, r models.Repository, reg *models.Registration, req *models.LaborRequest, now time.Time) (bool, error) {
	blackout, err := r.GetActiveBlackout(ctx, reg.MemberID, req.EmployerID, now)
	if err != nil {
		return false, err
	}
	if blackout != nil {
		return false, nil
	}

	unavailable, err := s.unavailableByExemption(ctx, r, reg, now)
	if err != nil {
		return false, err
	}
	return !unavailable, nil
}

// unavailableByExemption reports whether an exemption explicitly marks
// the member unavailable. Exemptions otherwise preserve queue position
// without excluding the member from referral.
func (s *service) unavailableByExemption(ctx context.Context, r models.Repository, reg *models.Registration, now time.Time) (bool, error) {
	exemptions, err := r.GetActiveExemptions(ctx, reg.MemberID, now)
	if err != nil {
		return false, err
	}
	for _, e := range exemptions {
		if e.Unavailable {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) alreadyOffered(ctx context.Context, r models.Repository, requestID uint) (map[string]bool, error) {
	dispatches, err := r.GetDispatchesByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(dispatches))
	for _, d := range dispatches {
		if d.Status == models.DispatchOffered || d.Status == models.DispatchAccepted {
			excluded[d.MemberID.String()] = true
		}
	}
	return excluded, nil
}

// isShortCall classifies the call: at or under the short-call ceiling
// but over the long-call floor. At or under the floor the call counts as
// long for rotation and never consumes a short-call slot.
func (s *service) isShortCall(start, end time.Time) bool {
	length := callLengthBusinessDays(start, end)
	return length > s.cfg.LongCallUnderDays && length <= s.cfg.ShortCallMaxDays
}

// flagByNameRate emits the anti-collusion review signal when the
// employer's by-name share exceeds the configured threshold. The signal
// never blocks the dispatch.
func (s *service) flagByNameRate(ctx context.Context, r models.Repository, d *models.Dispatch, bookID uint, now time.Time) error {
	since := now.AddDate(0, -s.cfg.ByNameWindowMonths, 0)
	total, byName, err := r.CountDispatchesByEmployer(ctx, d.EmployerID, since)
	if err != nil {
		return err
	}
	if total == 0 || float64(byName)/float64(total) <= s.cfg.ByNameRatioThreshold {
		return nil
	}

	s.logger.Warnf("employer %s by-name rate %d/%d exceeds threshold, flagged for review",
		d.EmployerID.String(), byName, total)
	return s.recordActivity(ctx, r, models.RegistrationActivity{
		RegistrationID: d.RegistrationID,
		MemberID:       d.MemberID,
		BookID:         bookID,
		Kind:           constants.ActivityByNameReview,
		Detail:         "employer " + d.EmployerID.String(),
	})
}

// AcceptOffer turns a provisional offer into an assignment: the
// registration leaves the queue and the request fill count advances.
func (s *service) AcceptOffer(ctx context.Context, dispatchID uint) (*models.Dispatch, error) {
	d, err := s.getDispatch(ctx, dispatchID)
	if err != nil {
		return nil, err
	}
	reg, err := s.getRegistration(ctx, d.RegistrationID)
	if err != nil {
		return nil, err
	}

	err = s.withBookTx(ctx, reg.BookID, func(r models.Repository) error {
		if err := r.UpdateDispatchStatusCheckStatus(ctx, dispatchID,
			models.DispatchOffered, models.DispatchAccepted); err != nil {
			if err == models.ErrDispatchNotUpdated {
				return &hallerrors.StateError{Entity: "dispatch",
					ID:    strconv.FormatUint(uint64(dispatchID), 10),
					State: string(d.Status), Msg: "only an open offer can be accepted"}
			}
			return err
		}

		if err := r.UpdateRegistrationStatusCheckStatus(ctx, d.RegistrationID,
			models.RegistrationActive, models.RegistrationDispatched); err != nil {
			if err == models.ErrRegistrationNotUpdated {
				return &hallerrors.ConflictError{Entity: "registration",
					ID:   strconv.FormatUint(uint64(d.RegistrationID), 10),
					Rule: "registrant already dispatched"}
			}
			return err
		}

		filled, err := r.IncrementFilledCount(ctx, d.RequestID)
		if err != nil {
			return err
		}
		req, err := r.GetLaborRequestByID(ctx, d.RequestID)
		if err != nil {
			return err
		}
		if req != nil && filled >= req.WorkerCount {
			if err := r.UpdateLaborRequestStatusCheckStatus(ctx, d.RequestID,
				models.RequestOpen, models.RequestFilled); err != nil && err != models.ErrRequestNotUpdated {
				return err
			}
		}

		return s.recordActivity(ctx, r, models.RegistrationActivity{
			RegistrationID: d.RegistrationID,
			MemberID:       d.MemberID,
			BookID:         reg.BookID,
			Kind:           constants.ActivityDispatchOut,
			Detail:         "dispatch " + strconv.FormatUint(uint64(dispatchID), 10),
		})
	})
	if err != nil {
		return nil, err
	}

	d.Status = models.DispatchAccepted
	return d, nil
}

// RejectOffer declines a morning-referral offer. Unlike bid rejections
// this carries no penalty; the walk simply moves on.
func (s *service) RejectOffer(ctx context.Context, dispatchID uint) error {
	d, err := s.getDispatch(ctx, dispatchID)
	if err != nil {
		return err
	}

	if err := s.repository.UpdateDispatchStatusCheckStatus(ctx, dispatchID,
		models.DispatchOffered, models.DispatchDeclined); err != nil {
		if err == models.ErrDispatchNotUpdated {
			return &hallerrors.StateError{Entity: "dispatch",
				ID:    strconv.FormatUint(uint64(dispatchID), 10),
				State: string(d.Status), Msg: "only an open offer can be rejected"}
		}
		return err
	}
	return nil
}

// RunMorningReferral processes every open request due on the given date,
// classification by classification in the configured order. Idempotent:
// re-running offers only to slots still unfilled.
func (s *service) RunMorningReferral(ctx context.Context, date time.Time) (*ReferralSummary, error) {
	summary := &ReferralSummary{Date: truncateToDay(date)}

	for _, classification := range s.cfg.ClassificationOrder {
		books, err := s.repository.GetBooksByClassification(ctx, classification)
		if err != nil {
			return summary, err
		}

		for _, book := range books {
			summary.BooksProcessed++
			if err := s.referBook(ctx, book, date, summary); err != nil {
				return summary, errors.Wrapf(err, "referral failed on book %d", book.ID)
			}
		}
	}

	s.logger.Infof("morning referral for %s: %d requests, %d offers, %d starved",
		summary.Date.Format("2006-01-02"), summary.RequestsProcessed,
		summary.OffersCreated, summary.RequestsStarved)
	return summary, nil
}

func (s *service) referBook(ctx context.Context, book *models.Book, date time.Time, summary *ReferralSummary) error {
	return s.withBookTx(ctx, book.ID, func(r models.Repository) error {
		requests, err := r.GetOpenLaborRequestsByBook(ctx, book.ID, truncateToDay(date))
		if err != nil {
			return err
		}

		now := s.clock.Now().In(s.cfg.Location)
		for _, req := range requests {
			summary.RequestsProcessed++

			open := req.WorkerCount - req.FilledCount
			offered, err := s.alreadyOffered(ctx, r, req.ID)
			if err != nil {
				return err
			}
			open -= len(offered) - req.FilledCount // outstanding offers hold slots

			for i := 0; i < open; i++ {
				d, err := s.offerTx(ctx, r, req, book, now)
				if err != nil {
					var stateErr *hallerrors.StateError
					if errors.As(err, &stateErr) {
						summary.RequestsStarved++
						break
					}
					var violation *hallerrors.EnforcementViolation
					if errors.As(err, &violation) {
						// Surfaced loudly, but one bad by-name request
						// must not sink the rest of the run.
						s.logger.Errorf("request %d skipped: %s", req.ID, violation.Error())
						break
					}
					return err
				}
				summary.OffersCreated++
				s.logger.Infof("offered dispatch %d to member %s for request %d",
					d.ID, d.MemberID.String(), req.ID)
			}
		}
		return nil
	})
}

func (s *service) getDispatch(ctx context.Context, dispatchID uint) (*models.Dispatch, error) {
	d, err := s.repository.GetDispatchByID(ctx, dispatchID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &hallerrors.ValidationError{Entity: "dispatch",
			ID: strconv.FormatUint(uint64(dispatchID), 10), Msg: "unknown dispatch"}
	}
	return d, nil
}
