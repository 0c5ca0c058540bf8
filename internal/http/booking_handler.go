package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/studio-admin/internal/application"
	"github.com/example/studio-admin/internal/persistence"
)

type bookingService interface {
	Lessons(ctx context.Context, from, to string) ([]application.LessonView, error)
	Book(ctx context.Context, input persistence.BookingInput) (persistence.Booking, error)
	CancelBooking(ctx context.Context, id string) error
	MyBookings(ctx context.Context, userID string) ([]persistence.Booking, error)
	BookingsForDate(ctx context.Context, date string) ([]persistence.Booking, error)
	BookingsForLesson(ctx context.Context, courseID, date string) ([]persistence.Booking, error)
	RemoteBookingsForDate(ctx context.Context, date string) ([]persistence.Booking, error)
	UserBookings(ctx context.Context, userID string) ([]persistence.Booking, error)
}

// BookingHandler serves the lesson calendar and bookings.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

// Lessons serves GET /lessons?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *BookingHandler) Lessons(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingParam)
		return
	}
	lessons, err := h.service.Lessons(r.Context(), from, to)
	if err != nil {
		h.log(r.Context(), "Lessons", "from", from, "to", to).WarnContext(r.Context(), "lesson expansion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"lessons": mapSlice(lessons, toLessonViewDTO)})
}

// Routes mounts the handler under /bookings.
func (h *BookingHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{bookingId}", h.Delete)
}

// List filters bookings by userId, date, or courseId and date. remote=true
// reads the store instead of the cached booking window.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, date, courseID := q.Get("userId"), q.Get("date"), q.Get("courseId")
	remote := strings.EqualFold(q.Get("remote"), "true")

	var (
		bookings []persistence.Booking
		err      error
	)
	switch {
	case userID != "" && remote:
		bookings, err = h.service.UserBookings(r.Context(), userID)
	case userID != "":
		bookings, err = h.service.MyBookings(r.Context(), userID)
	case courseID != "" && date != "":
		bookings, err = h.service.BookingsForLesson(r.Context(), courseID, date)
	case date != "" && remote:
		bookings, err = h.service.RemoteBookingsForDate(r.Context(), date)
	case date != "":
		bookings, err = h.service.BookingsForDate(r.Context(), date)
	default:
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingParam)
		return
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"bookings": mapSlice(bookings, toBookingDTO)})
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode booking", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	booking, err := h.service.Book(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"booking": toBookingDTO(booking)})
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelBooking(r.Context(), chi.URLParam(r, "bookingId")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}
