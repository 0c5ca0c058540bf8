package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/studio-admin/internal/application"
	"github.com/example/studio-admin/internal/persistence"
)

type registryService interface {
	paymentService
	PendingUsers(ctx context.Context) ([]persistence.PendingUser, error)
	AddPendingUser(ctx context.Context, input persistence.PendingUserInput) (persistence.PendingUser, error)
	EditPendingUser(ctx context.Context, id string, patch persistence.PendingUserPatch) error
	RemovePendingUser(ctx context.Context, id string) error
	ClaimPendingUser(ctx context.Context, uid, email string) (persistence.Member, error)

	SearchCensus(ctx context.Context, text string) ([]persistence.CensusPerson, error)
	Person(ctx context.Context, id string) (persistence.CensusPerson, error)
	AddPerson(ctx context.Context, input persistence.CensusInput) (persistence.CensusPerson, error)
	EditPerson(ctx context.Context, id string, patch persistence.CensusPatch) error
	AdjustPersonLessons(ctx context.Context, id string, delta int) (persistence.CensusPerson, error)
	RemovePerson(ctx context.Context, id string) (*application.CascadePlan, error)
}

// RegistryHandler serves the signup queue and the census registry.
type RegistryHandler struct {
	service   registryService
	payments  paymentRoutes
	responder responder
	logger    *slog.Logger
}

func NewRegistryHandler(service registryService, logger *slog.Logger) *RegistryHandler {
	base := defaultLogger(logger)
	resp := newResponder(base)
	return &RegistryHandler{
		service:   service,
		payments:  paymentRoutes{service: service, owner: persistence.CensusPayments, personParam: "personId", responder: resp},
		responder: resp,
		logger:    base,
	}
}

// PendingRoutes mounts the signup queue under /pending.
func (h *RegistryHandler) PendingRoutes(r chi.Router) {
	r.Get("/", h.ListPending)
	r.Post("/", h.CreatePending)
	r.Post("/claim", h.Claim)
	r.Patch("/{pendingId}", h.UpdatePending)
	r.Delete("/{pendingId}", h.DeletePending)
}

// CensusRoutes mounts the registry under /census.
func (h *RegistryHandler) CensusRoutes(r chi.Router) {
	r.Get("/", h.Search)
	r.Post("/", h.CreatePerson)
	r.Get("/payments/current", h.payments.current)
	r.Route("/{personId}", func(r chi.Router) {
		r.Get("/", h.GetPerson)
		r.Patch("/", h.UpdatePerson)
		r.Delete("/", h.DeletePerson)
		r.Post("/lessons", h.AdjustLessons)
		h.payments.mount(r)
	})
}

func (h *RegistryHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	queue, err := h.service.PendingUsers(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"pending": mapSlice(queue, toPendingUserDTO)})
}

func (h *RegistryHandler) CreatePending(w http.ResponseWriter, r *http.Request) {
	var req pendingUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	user, err := h.service.AddPendingUser(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"pending": toPendingUserDTO(user)})
}

func (h *RegistryHandler) UpdatePending(w http.ResponseWriter, r *http.Request) {
	var req pendingUserPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := h.service.EditPendingUser(r.Context(), chi.URLParam(r, "pendingId"), req.toPatch()); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *RegistryHandler) DeletePending(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePendingUser(r.Context(), chi.URLParam(r, "pendingId")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *RegistryHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	member, err := h.service.ClaimPendingUser(r.Context(), req.UID, req.Email)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "RegistryHandler", "Claim", "uid", req.UID).WarnContext(r.Context(), "claim failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"member": toMemberDTO(member)})
}

// Search serves GET /census?q=text. Without q the whole registry is returned.
func (h *RegistryHandler) Search(w http.ResponseWriter, r *http.Request) {
	people, err := h.service.SearchCensus(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"census": mapSlice(people, toCensusPersonDTO)})
}

func (h *RegistryHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	person, err := h.service.Person(r.Context(), chi.URLParam(r, "personId"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"person": toCensusPersonDTO(person)})
}

func (h *RegistryHandler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var req censusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	person, err := h.service.AddPerson(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"person": toCensusPersonDTO(person)})
}

func (h *RegistryHandler) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "personId")
	var req censusPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := h.service.EditPerson(r.Context(), id, req.toPatch()); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	person, err := h.service.Person(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"person": toCensusPersonDTO(person)})
}

func (h *RegistryHandler) AdjustLessons(w http.ResponseWriter, r *http.Request) {
	var req deltaRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	person, err := h.service.AdjustPersonLessons(r.Context(), chi.URLParam(r, "personId"), req.Delta)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"person": toCensusPersonDTO(person)})
}

func (h *RegistryHandler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "personId")
	plan, err := h.service.RemovePerson(r.Context(), id)
	writeCascade(r.Context(), h.responder, handlerLogger(r.Context(), h.logger, "RegistryHandler", "DeletePerson", "person_id", id), w, plan, err)
}
