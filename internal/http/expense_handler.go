package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/example/studio-admin/internal/application"
	"github.com/example/studio-admin/internal/persistence"
)

type expenseService interface {
	Expenses(ctx context.Context) ([]persistence.FixedExpense, error)
	AddExpense(ctx context.Context, input persistence.ExpenseInput) (persistence.FixedExpense, error)
	EditExpense(ctx context.Context, id string, patch persistence.ExpensePatch) error
	RemoveExpense(ctx context.Context, id string) error
	ExpenseSummary(ctx context.Context, month string, months int) (application.ExpenseSummary, error)
}

// ExpenseHandler serves fixed expenses and their monthly totals.
type ExpenseHandler struct {
	service   expenseService
	responder responder
	logger    *slog.Logger
}

func NewExpenseHandler(service expenseService, logger *slog.Logger) *ExpenseHandler {
	base := defaultLogger(logger)
	return &ExpenseHandler{service: service, responder: newResponder(base), logger: base}
}

// Routes mounts the handler under /expenses.
func (h *ExpenseHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/summary", h.Summary)
	r.Patch("/{expenseId}", h.Update)
	r.Delete("/{expenseId}", h.Delete)
}

func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Expenses(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"expenses": mapSlice(rows, toExpenseDTO)})
}

func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		handlerLogger(r.Context(), h.logger, "ExpenseHandler", "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode expense", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	expense, err := h.service.AddExpense(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"expense": toExpenseDTO(expense)})
}

func (h *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req expensePatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := h.service.EditExpense(r.Context(), chi.URLParam(r, "expenseId"), req.toPatch()); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveExpense(r.Context(), chi.URLParam(r, "expenseId")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Summary serves GET /expenses/summary?month=YYYY-MM&months=N. months is optional.
func (h *ExpenseHandler) Summary(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingParam)
		return
	}
	months := 0
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{FieldErrors: map[string]string{"months": "months must be a positive integer"}})
			return
		}
		months = n
	}
	summary, err := h.service.ExpenseSummary(r.Context(), month, months)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toExpenseSummaryDTO(summary))
}
