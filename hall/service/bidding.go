package service

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/unionhall/hall-app/hall/constants"
	hallerrors "github.com/unionhall/hall-app/hall/errors"
	"github.com/unionhall/hall-app/hall/models"
)

// SubmitBid records a registrant's bid on an open request. Bids are only
// taken while the daily window is open, and only from registrants whose
// bidding privileges are not suspended.
func (s *service) SubmitBid(ctx context.Context, requestID uint, memberID uuid.UUID) (*models.JobBid, error) {
	req, err := s.GetLaborRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestOpen {
		return nil, &hallerrors.StateError{Entity: "labor request",
			ID:    strconv.FormatUint(uint64(requestID), 10),
			State: string(req.Status), Msg: "bids only go to open requests"}
	}

	now := s.clock.Now().In(s.cfg.Location)
	if !s.inBidWindow(now) {
		return nil, &hallerrors.StateError{Entity: "job bid",
			State: "WINDOW_CLOSED",
			Msg: constants.RuleBiddingWindow + " (" +
				s.cfg.BidWindowOpen + "-" + s.cfg.BidWindowClose + ")"}
	}

	reg, err := s.repository.GetActiveRegistrationByMemberBook(ctx, memberID, req.BookID)
	if err != nil {
		return nil, err
	}
	if reg == nil || reg.Status != models.RegistrationActive {
		return nil, &hallerrors.StateError{Entity: "job bid",
			State: "NO_REGISTRATION",
			Msg:   "bidder holds no active registration on the book"}
	}

	suspendedUntil, err := s.bidSuspensionEnd(ctx, s.repository, memberID, now)
	if err != nil {
		return nil, err
	}
	if now.Before(suspendedUntil) {
		return nil, &hallerrors.StateError{Entity: "job bid",
			State: "SUSPENDED",
			Msg:   constants.RuleBidSuspension + " until " + suspendedUntil.Format("2006-01-02")}
	}

	bid := models.JobBid{
		RequestID:   requestID,
		MemberID:    memberID,
		SubmittedAt: now,
		Outcome:     models.BidPending,
	}
	id, err := s.repository.CreateJobBid(ctx, bid)
	if err != nil {
		return nil, err
	}
	bid.ID = id
	return &bid, nil
}

// WithdrawBid cancels a pending bid without penalty. Only possible while
// the window the bid was submitted in is still open; after close the
// outcome is terminal.
func (s *service) WithdrawBid(ctx context.Context, bidID uint) error {
	bid, err := s.repository.GetJobBidByID(ctx, bidID)
	if err != nil {
		return err
	}
	if bid == nil {
		return &hallerrors.ValidationError{Entity: "job bid",
			ID: strconv.FormatUint(uint64(bidID), 10), Msg: "unknown bid"}
	}

	now := s.clock.Now().In(s.cfg.Location)
	if now.After(s.windowCloseAfter(bid.SubmittedAt)) {
		return &hallerrors.StateError{Entity: "job bid",
			ID:    strconv.FormatUint(uint64(bidID), 10),
			State: string(bid.Outcome), Msg: "the bid's window has closed"}
	}

	if err := s.repository.UpdateJobBidOutcomeCheckOutcome(ctx, bidID,
		models.BidPending, models.BidWithdrawn); err != nil {
		if err == models.ErrBidNotUpdated {
			return &hallerrors.StateError{Entity: "job bid",
				ID:    strconv.FormatUint(uint64(bidID), 10),
				State: string(bid.Outcome), Msg: "only a pending bid can be withdrawn"}
		}
		return err
	}
	return nil
}

// ResolveBidWindow closes out bidding on one request: the pending bid
// with the lowest priority key wins and is dispatched; the rest are
// rejected and counted toward the rolling suspension rule. Idempotent:
// with no pending bids it does nothing.
func (s *service) ResolveBidWindow(ctx context.Context, requestID uint) (*models.Dispatch, error) {
	req, err := s.GetLaborRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().In(s.cfg.Location)
	if s.inBidWindow(now) {
		return nil, &hallerrors.StateError{Entity: "labor request",
			ID:    strconv.FormatUint(uint64(requestID), 10),
			State: "WINDOW_OPEN", Msg: "the bidding window is still open"}
	}

	var dispatch *models.Dispatch
	err = s.withBookTx(ctx, req.BookID, func(r models.Repository) error {
		dispatch = nil

		req, err := r.GetLaborRequestByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestOpen {
			return nil
		}

		bids, err := r.GetPendingBidsByRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if len(bids) == 0 {
			return nil
		}

		winner, winnerReg, err := s.pickWinningBid(ctx, r, req, bids, now)
		if err != nil {
			return err
		}

		for _, bid := range bids {
			if winner != nil && bid.ID == winner.ID {
				continue
			}
			if err := s.rejectBid(ctx, r, bid, req.BookID, now); err != nil {
				return err
			}
		}
		if winner == nil {
			return nil
		}

		if err := r.UpdateJobBidOutcomeCheckOutcome(ctx, winner.ID,
			models.BidPending, models.BidAccepted); err != nil {
			return err
		}

		dispatch, err = s.dispatchWinner(ctx, r, req, winnerReg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dispatch, nil
}

// ResolveBidWindows sweeps every book's open requests. Run daily at
// window close.
func (s *service) ResolveBidWindows(ctx context.Context) (int, error) {
	books, err := s.repository.ListBooks(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now().In(s.cfg.Location)
	resolved := 0
	for _, book := range books {
		// Bidding covers requests not yet due for a morning run, so look
		// a cycle ahead.
		requests, err := s.repository.GetOpenLaborRequestsByBook(ctx, book.ID,
			truncateToDay(now.AddDate(0, 0, 7)))
		if err != nil {
			return resolved, err
		}
		for _, req := range requests {
			if _, err := s.ResolveBidWindow(ctx, req.ID); err != nil {
				return resolved, errors.Wrapf(err, "failed to resolve bids on request %d", req.ID)
			}
			resolved++
		}
	}
	return resolved, nil
}

// pickWinningBid returns the eligible bid with the lowest priority key.
// Bidders who lost their registration or eligibility since submitting
// cannot win; their bids are rejected with the other losers when the
// window resolves.
func (s *service) pickWinningBid(ctx context.Context, r models.Repository, req *models.LaborRequest, bids []*models.JobBid, now time.Time) (*models.JobBid, *models.Registration, error) {
	type candidate struct {
		bid *models.JobBid
		reg *models.Registration
	}
	var candidates []candidate

	shortCall := s.isShortCall(req.StartDate, req.ExpectedEnd)
	for _, bid := range bids {
		reg, err := r.GetActiveRegistrationByMemberBook(ctx, bid.MemberID, req.BookID)
		if err != nil {
			return nil, nil, err
		}
		if reg == nil || reg.Status != models.RegistrationActive {
			continue
		}
		if shortCall && reg.ShortCallCount >= s.cfg.ShortCallsPerCycle {
			continue
		}
		eligible, err := s.eligibleForDispatch(ctx, r, reg, req, now)
		if err != nil {
			return nil, nil, err
		}
		if eligible {
			candidates = append(candidates, candidate{bid, reg})
		}
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].reg.PriorityKey.LessThan(candidates[j].reg.PriorityKey)
	})
	return candidates[0].bid, candidates[0].reg, nil
}

func (s *service) rejectBid(ctx context.Context, r models.Repository, bid *models.JobBid, bookID uint, now time.Time) error {
	if err := r.UpdateJobBidOutcomeCheckOutcome(ctx, bid.ID,
		models.BidPending, models.BidRejected); err != nil {
		return err
	}
	if err := r.CreateBidRejection(ctx, bid.MemberID, now); err != nil {
		return err
	}

	reg, err := r.GetActiveRegistrationByMemberBook(ctx, bid.MemberID, bookID)
	if err != nil {
		return err
	}
	if reg == nil {
		// The rejection stands even with no live registration to pin
		// the activity to.
		return nil
	}
	return s.recordActivity(ctx, r, models.RegistrationActivity{
		RegistrationID: reg.ID,
		MemberID:       bid.MemberID,
		BookID:         bookID,
		Kind:           constants.ActivityBidRejected,
		Detail:         "bid " + strconv.FormatUint(uint64(bid.ID), 10),
	})
}

// dispatchWinner creates the winning dispatch as already accepted: a bid
// is a standing commitment, not an offer awaiting confirmation.
func (s *service) dispatchWinner(ctx context.Context, r models.Repository, req *models.LaborRequest, reg *models.Registration) (*models.Dispatch, error) {
	d := models.Dispatch{
		RegistrationID: reg.ID,
		RequestID:      req.ID,
		MemberID:       reg.MemberID,
		EmployerID:     req.EmployerID,
		StartDate:      req.StartDate,
		ExpectedEnd:    req.ExpectedEnd,
		ShortCall:      s.isShortCall(req.StartDate, req.ExpectedEnd),
		Status:         models.DispatchAccepted,
	}
	id, err := r.CreateDispatch(ctx, d)
	if err != nil {
		return nil, err
	}
	d.ID = id

	if err := r.UpdateRegistrationStatusCheckStatus(ctx, reg.ID,
		models.RegistrationActive, models.RegistrationDispatched); err != nil {
		if err == models.ErrRegistrationNotUpdated {
			return nil, &hallerrors.ConflictError{Entity: "registration",
				ID:   strconv.FormatUint(uint64(reg.ID), 10),
				Rule: "registrant already dispatched"}
		}
		return nil, err
	}

	filled, err := r.IncrementFilledCount(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if filled >= req.WorkerCount {
		if err := r.UpdateLaborRequestStatusCheckStatus(ctx, req.ID,
			models.RequestOpen, models.RequestFilled); err != nil && err != models.ErrRequestNotUpdated {
			return nil, err
		}
	}

	if err := s.recordActivity(ctx, r, models.RegistrationActivity{
		RegistrationID: reg.ID,
		MemberID:       reg.MemberID,
		BookID:         reg.BookID,
		Kind:           constants.ActivityDispatchOut,
		Detail:         "won bid on request " + strconv.FormatUint(uint64(req.ID), 10),
	}); err != nil {
		return nil, err
	}
	return &d, nil
}

// inBidWindow reports whether now falls inside the daily window. The
// window normally spans midnight (17:30 to 07:00 the next morning).
func (s *service) inBidWindow(now time.Time) bool {
	minutes := dayClock(now.Hour()*60 + now.Minute())
	open, close := s.cfg.bidWindowOpen, s.cfg.bidWindowClose
	if open <= close {
		return minutes >= open && minutes < close
	}
	return minutes >= open || minutes < close
}

// windowCloseAfter returns the close instant of the window containing t.
func (s *service) windowCloseAfter(t time.Time) time.Time {
	close := s.cfg.bidWindowClose.at(t, s.cfg.Location)
	if !close.After(t) {
		close = close.AddDate(0, 0, 1)
	}
	return close
}

// bidSuspensionEnd computes when the member's bidding suspension ends,
// or the zero time when none applies. The second rejection inside the
// rolling window triggers a suspension running one year from that
// second rejection, not from the first.
func (s *service) bidSuspensionEnd(ctx context.Context, r models.Repository, memberID uuid.UUID, now time.Time) (time.Time, error) {
	lookback := now.AddDate(-s.cfg.BidSuspensionYears, -s.cfg.BidRejectionWindowMo, 0)
	rejections, err := r.GetBidRejectionTimes(ctx, memberID, lookback)
	if err != nil {
		return time.Time{}, err
	}
	// Most recent first; scan oldest-first for the triggering pair.
	sort.Slice(rejections, func(i, j int) bool { return rejections[i].Before(rejections[j]) })

	var end time.Time
	for i := 1; i < len(rejections); i++ {
		windowStart := rejections[i].AddDate(0, -s.cfg.BidRejectionWindowMo, 0)
		if !rejections[i-1].Before(windowStart) {
			suspendUntil := rejections[i].AddDate(s.cfg.BidSuspensionYears, 0, 0)
			if suspendUntil.After(end) {
				end = suspendUntil
			}
		}
	}
	return end, nil
}
