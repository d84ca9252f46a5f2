package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unionhall/hall-app/hall/api"
)

func NewAPIRouter(h *api.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, NewStructuredLogger(), middleware.Recoverer, ConnectionClose)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/registrations", h.Register)
		r.Post("/registrations/{registrationID}/resign", h.ReSign)
		r.Delete("/registrations/{registrationID}", h.Drop)
		r.Get("/books/{bookID}/queue", h.BookQueue)

		r.Post("/labor-requests", h.SubmitLaborRequest)
		r.Get("/labor-requests/{requestID}", h.GetLaborRequest)
		r.Delete("/labor-requests/{requestID}", h.CancelLaborRequest)

		r.Post("/dispatches/offer", h.OfferDispatch)
		r.Post("/dispatches/{dispatchID}/accept", h.AcceptOffer)
		r.Post("/dispatches/{dispatchID}/reject", h.RejectOffer)
		r.Post("/dispatches/{dispatchID}/outcome", h.RecordOutcome)

		r.Post("/bids", h.SubmitBid)
		r.Delete("/bids/{bidID}", h.WithdrawBid)

		r.Post("/enforcement/check-marks", h.IssueCheckMark)
		r.Post("/enforcement/exemptions", h.GrantExemption)
		r.Get("/members/{memberID}/blackouts", h.MemberBlackouts)
		r.Get("/members/{memberID}/enforcement", h.EnforcementStatus)
		r.Get("/members/{memberID}/dispatches", h.DispatchHistory)
	})

	r.Get("/_health", h.Health)
	r.Get("/_version", h.Version)

	return r
}
