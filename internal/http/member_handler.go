package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/studio-admin/internal/application"
	"github.com/example/studio-admin/internal/persistence"
)

type memberService interface {
	paymentService
	Members(ctx context.Context) ([]persistence.Member, error)
	Member(ctx context.Context, id string) (persistence.Member, error)
	AddMember(ctx context.Context, id string, input persistence.MemberInput) (persistence.Member, error)
	EditMember(ctx context.Context, id string, patch persistence.MemberPatch) error
	AdjustLessonsPaid(ctx context.Context, id string, delta int) (persistence.Member, error)
	SetLessonCounts(ctx context.Context, id string, attended, paid int) error
	LessonBalance(ctx context.Context, id string) (application.LessonBalance, error)
	RemoveMember(ctx context.Context, id string) (*application.CascadePlan, error)
	UnpaidReport(ctx context.Context, month string) (application.UnpaidReport, error)
}

// MemberHandler serves member profiles, their payments and lesson counters.
type MemberHandler struct {
	service   memberService
	payments  paymentRoutes
	responder responder
	logger    *slog.Logger
}

func NewMemberHandler(service memberService, logger *slog.Logger) *MemberHandler {
	base := defaultLogger(logger)
	resp := newResponder(base)
	return &MemberHandler{
		service:   service,
		payments:  paymentRoutes{service: service, owner: persistence.MemberPayments, personParam: "memberId", responder: resp},
		responder: resp,
		logger:    base,
	}
}

func (h *MemberHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "MemberHandler", operation, attrs...)
}

// Routes mounts the handler under /members.
func (h *MemberHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/payments/current", h.payments.current)
	r.Route("/{memberId}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/lessons", h.AdjustLessons)
		r.Put("/lessons", h.SetLessons)
		r.Get("/balance", h.Balance)
		h.payments.mount(r)
	})
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.Members(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"members": mapSlice(members, toMemberDTO)})
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	member, err := h.service.Member(r.Context(), chi.URLParam(r, "memberId"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"member": toMemberDTO(member)})
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode member", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	member, err := h.service.AddMember(r.Context(), req.ID, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"member": toMemberDTO(member)})
}

func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "memberId")
	var req memberPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := h.service.EditMember(r.Context(), id, req.toPatch()); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	member, err := h.service.Member(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"member": toMemberDTO(member)})
}

// Delete removes the member with their bookings and payments. A partial
// failure answers 502 with the step list; repeating the request finishes the
// remaining deletes.
func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "memberId")
	plan, err := h.service.RemoveMember(r.Context(), id)
	writeCascade(r.Context(), h.responder, h.log(r.Context(), "Delete", "member_id", id), w, plan, err)
}

func (h *MemberHandler) AdjustLessons(w http.ResponseWriter, r *http.Request) {
	var req deltaRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	member, err := h.service.AdjustLessonsPaid(r.Context(), chi.URLParam(r, "memberId"), req.Delta)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"member": toMemberDTO(member)})
}

func (h *MemberHandler) SetLessons(w http.ResponseWriter, r *http.Request) {
	var req lessonCountsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := h.service.SetLessonCounts(r.Context(), chi.URLParam(r, "memberId"), req.LessonsAttended, req.LessonsPaid); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *MemberHandler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.LessonBalance(r.Context(), chi.URLParam(r, "memberId"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, balanceDTO(balance))
}

// UnpaidReport serves GET /reports/unpaid?month=YYYY-MM.
func (h *MemberHandler) UnpaidReport(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingParam)
		return
	}
	report, err := h.service.UnpaidReport(r.Context(), month)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, unpaidReportDTO{
		Month:  report.Month,
		Paid:   mapSlice(report.Paid, toMemberDTO),
		Unpaid: mapSlice(report.Unpaid, toMemberDTO),
	})
}

// cascadeIncompleteMessage explains a partially applied cascade delete.
const cascadeIncompleteMessage = "Some deletes failed; repeat the request to finish."

func writeCascade(ctx context.Context, resp responder, logger *slog.Logger, w http.ResponseWriter, plan *application.CascadePlan, err error) {
	if plan == nil {
		resp.handleServiceError(ctx, w, err)
		return
	}
	body := toCascadeResponse(plan)
	if err != nil {
		logger.WarnContext(ctx, "cascade incomplete", "pending_steps", len(plan.Pending()), "error", err, "error_kind", application.ErrorKind(err))
		body.Message = cascadeIncompleteMessage
		resp.writeJSON(ctx, w, http.StatusBadGateway, body)
		return
	}
	resp.writeJSON(ctx, w, http.StatusOK, body)
}
