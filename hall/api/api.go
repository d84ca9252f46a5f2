// Package api maps the hall's operation groups onto HTTP. Caller
// identity is validated upstream; handlers translate the error taxonomy
// onto status codes and otherwise delegate to the service.
package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/unionhall/hall-app/hall/constants"
	"github.com/unionhall/hall-app/hall/database"
	hallerrors "github.com/unionhall/hall-app/hall/errors"
	"github.com/unionhall/hall-app/hall/models"
	"github.com/unionhall/hall-app/hall/service"
)

type Handler struct {
	Svc service.Service
	DB  *sql.DB
}

func NewHandler(svc service.Service, db *sql.DB) *Handler {
	return &Handler{Svc: svc, DB: db}
}

type errorResponse struct {
	Entity string `json:"entity,omitempty"`
	ID     string `json:"id,omitempty"`
	Rule   string `json:"rule,omitempty"`
	Error  string `json:"error"`
}

// respondError maps the taxonomy: bad input 400, uniqueness conflicts
// 409, wrong-state operations 422, enforcement breaches 403.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *hallerrors.ValidationError
		conflict    *hallerrors.ConflictError
		state       *hallerrors.StateError
		enforcement *hallerrors.EnforcementViolation
	)

	switch {
	case errors.As(err, &validation):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Entity: validation.Entity, ID: validation.ID, Error: err.Error()})
	case errors.As(err, &conflict):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, errorResponse{Entity: conflict.Entity, ID: conflict.ID, Rule: conflict.Rule, Error: err.Error()})
	case errors.As(err, &state):
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, errorResponse{Entity: state.Entity, ID: state.ID, Error: err.Error()})
	case errors.As(err, &enforcement):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, errorResponse{Entity: enforcement.Entity, ID: enforcement.ID, Rule: enforcement.Rule, Error: err.Error()})
	default:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: "internal server error"})
	}
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &hallerrors.ValidationError{Entity: "request body", Msg: "malformed JSON"}
	}
	return nil
}

func uintParam(r *http.Request, name string) (uint, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, &hallerrors.ValidationError{Entity: name, ID: chi.URLParam(r, name), Msg: "not a numeric id"}
	}
	return uint(v), nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id := uuid.Parse(chi.URLParam(r, name))
	if id == nil {
		return nil, &hallerrors.ValidationError{Entity: name, ID: chi.URLParam(r, name), Msg: "not a UUID"}
	}
	return id, nil
}

type registerRequest struct {
	MemberID string `json:"member_id"`
	BookID   uint   `json:"book_id"`
	Tier     int    `json:"tier"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	memberID := uuid.Parse(req.MemberID)
	if memberID == nil {
		respondError(w, r, &hallerrors.ValidationError{Entity: "member", ID: req.MemberID, Msg: "not a UUID"})
		return
	}
	if req.Tier == 0 {
		req.Tier = 1
	}

	reg, err := h.Svc.Register(r.Context(), memberID, req.BookID, req.Tier)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, reg)
}

func (h *Handler) ReSign(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "registrationID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	reg, err := h.Svc.ReSign(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, reg)
}

type dropRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Drop(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "registrationID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req dropRequest
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			respondError(w, r, err)
			return
		}
	}
	if err := h.Svc.Drop(r.Context(), id, req.Reason); err != nil {
		respondError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (h *Handler) BookQueue(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "bookID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	positions, err := h.Svc.QueuePositions(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, positions)
}

type laborRequestPayload struct {
	BookID        uint      `json:"book_id"`
	EmployerID    string    `json:"employer_id"`
	WorkerCount   int       `json:"worker_count"`
	AgreementType string    `json:"agreement_type"`
	ByName        bool      `json:"by_name"`
	NamedMemberID string    `json:"named_member_id"`
	StartDate     time.Time `json:"start_date"`
	ExpectedEnd   time.Time `json:"expected_end_date"`
}

func (h *Handler) SubmitLaborRequest(w http.ResponseWriter, r *http.Request) {
	var payload laborRequestPayload
	if err := decode(r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	req := models.LaborRequest{
		BookID:      payload.BookID,
		EmployerID:  uuid.Parse(payload.EmployerID),
		WorkerCount: payload.WorkerCount,
		Agreement:   models.AgreementType(payload.AgreementType),
		ByName:      payload.ByName,
		StartDate:   payload.StartDate,
		ExpectedEnd: payload.ExpectedEnd,
	}
	if payload.NamedMemberID != "" {
		req.NamedMemberID = uuid.Parse(payload.NamedMemberID)
	}

	created, err := h.Svc.SubmitLaborRequest(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

func (h *Handler) GetLaborRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "requestID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	req, err := h.Svc.GetLaborRequest(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, req)
}

func (h *Handler) CancelLaborRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "requestID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.Svc.CancelLaborRequest(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

type offerRequest struct {
	RequestID uint `json:"request_id"`
}

func (h *Handler) OfferDispatch(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	d, err := h.Svc.OfferDispatch(r.Context(), req.RequestID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, d)
}

func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "dispatchID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	d, err := h.Svc.AcceptOffer(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, d)
}

func (h *Handler) RejectOffer(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "dispatchID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.Svc.RejectOffer(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

type outcomeRequest struct {
	Outcome     string    `json:"outcome"`
	OutcomeKind string    `json:"outcome_kind"`
	ActualEnd   time.Time `json:"actual_end_date"`
}

func (h *Handler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "dispatchID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req outcomeRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.ActualEnd.IsZero() {
		req.ActualEnd = time.Now()
	}

	if err := h.Svc.RecordOutcome(r.Context(), id,
		models.DispatchOutcome(req.Outcome), models.OutcomeKind(req.OutcomeKind), req.ActualEnd); err != nil {
		respondError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

type bidRequest struct {
	RequestID uint   `json:"request_id"`
	MemberID  string `json:"member_id"`
}

func (h *Handler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	memberID := uuid.Parse(req.MemberID)
	if memberID == nil {
		respondError(w, r, &hallerrors.ValidationError{Entity: "member", ID: req.MemberID, Msg: "not a UUID"})
		return
	}

	bid, err := h.Svc.SubmitBid(r.Context(), req.RequestID, memberID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, bid)
}

func (h *Handler) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "bidID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.Svc.WithdrawBid(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

type checkMarkRequest struct {
	MemberID string `json:"member_id"`
	BookID   uint   `json:"book_id"`
	Reason   string `json:"reason"`
}

func (h *Handler) IssueCheckMark(w http.ResponseWriter, r *http.Request) {
	var req checkMarkRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	memberID := uuid.Parse(req.MemberID)
	if memberID == nil {
		respondError(w, r, &hallerrors.ValidationError{Entity: "member", ID: req.MemberID, Msg: "not a UUID"})
		return
	}

	mark, err := h.Svc.IssueCheckMark(r.Context(), memberID, req.BookID, req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mark)
}

type exemptionRequest struct {
	MemberID    string    `json:"member_id"`
	Reason      string    `json:"reason"`
	Unavailable bool      `json:"unavailable"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

func (h *Handler) GrantExemption(w http.ResponseWriter, r *http.Request) {
	var req exemptionRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	memberID := uuid.Parse(req.MemberID)
	if memberID == nil {
		respondError(w, r, &hallerrors.ValidationError{Entity: "member", ID: req.MemberID, Msg: "not a UUID"})
		return
	}

	e, err := h.Svc.GrantExemption(r.Context(), memberID, req.Reason, req.Unavailable, req.StartDate, req.EndDate)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, e)
}

func (h *Handler) MemberBlackouts(w http.ResponseWriter, r *http.Request) {
	memberID, err := uuidParam(r, "memberID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	blackouts, err := h.Svc.MemberBlackouts(r.Context(), memberID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, blackouts)
}

func (h *Handler) EnforcementStatus(w http.ResponseWriter, r *http.Request) {
	memberID, err := uuidParam(r, "memberID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	status, err := h.Svc.GetEnforcementStatus(r.Context(), memberID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}

func (h *Handler) DispatchHistory(w http.ResponseWriter, r *http.Request) {
	memberID, err := uuidParam(r, "memberID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	history, err := h.Svc.DispatchHistory(r.Context(), memberID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, history)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := database.HealthCheck(r.Context(), h.DB, 2*time.Second); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"database": "error"})
			return
		}
	}
	render.JSON(w, r, map[string]string{"database": "ok"})
}

func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"version": constants.Version})
}
