package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/studio-admin/internal/persistence"
)

type paymentService interface {
	Payments(ctx context.Context, owner persistence.PaymentOwner, personID string) ([]persistence.MonthlyPayment, error)
	MonthPaid(ctx context.Context, owner persistence.PaymentOwner, personID, month string) (bool, error)
	SetMonthPaid(ctx context.Context, owner persistence.PaymentOwner, personID, month string, paid bool) (persistence.MonthlyPayment, error)
	ToggleMonthPaid(ctx context.Context, owner persistence.PaymentOwner, personID, month string) (persistence.MonthlyPayment, error)
	CurrentMonthStatus(ctx context.Context, owner persistence.PaymentOwner) (map[string]bool, error)
}

// paymentRoutes serves the monthly payment records of one owner collection.
// personParam names the URL parameter holding the person id.
type paymentRoutes struct {
	service     paymentService
	owner       persistence.PaymentOwner
	personParam string
	responder   responder
}

func (p paymentRoutes) mount(r chi.Router) {
	r.Get("/payments", p.list)
	r.Get("/payments/{month}", p.get)
	r.Put("/payments/{month}", p.set)
	r.Post("/payments/{month}/toggle", p.toggle)
}

func (p paymentRoutes) list(w http.ResponseWriter, r *http.Request) {
	rows, err := p.service.Payments(r.Context(), p.owner, chi.URLParam(r, p.personParam))
	if err != nil {
		p.responder.handleServiceError(r.Context(), w, err)
		return
	}
	p.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"payments": mapSlice(rows, toPaymentDTO)})
}

func (p paymentRoutes) get(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")
	paid, err := p.service.MonthPaid(r.Context(), p.owner, chi.URLParam(r, p.personParam), month)
	if err != nil {
		p.responder.handleServiceError(r.Context(), w, err)
		return
	}
	p.responder.writeJSON(r.Context(), w, http.StatusOK, paymentDTO{YearMonth: month, Paid: paid})
}

func (p paymentRoutes) set(w http.ResponseWriter, r *http.Request) {
	var req paidRequest
	if err := decodeJSON(r, &req); err != nil {
		p.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	payment, err := p.service.SetMonthPaid(r.Context(), p.owner, chi.URLParam(r, p.personParam), chi.URLParam(r, "month"), req.Paid)
	if err != nil {
		p.responder.handleServiceError(r.Context(), w, err)
		return
	}
	p.responder.writeJSON(r.Context(), w, http.StatusOK, toPaymentDTO(payment))
}

func (p paymentRoutes) toggle(w http.ResponseWriter, r *http.Request) {
	payment, err := p.service.ToggleMonthPaid(r.Context(), p.owner, chi.URLParam(r, p.personParam), chi.URLParam(r, "month"))
	if err != nil {
		p.responder.handleServiceError(r.Context(), w, err)
		return
	}
	p.responder.writeJSON(r.Context(), w, http.StatusOK, toPaymentDTO(payment))
}

// current serves the current-month paid flag of every person of the owner.
func (p paymentRoutes) current(w http.ResponseWriter, r *http.Request) {
	status, err := p.service.CurrentMonthStatus(r.Context(), p.owner)
	if err != nil {
		p.responder.handleServiceError(r.Context(), w, err)
		return
	}
	p.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"paid": status})
}
