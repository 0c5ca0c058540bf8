package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/studio-admin/internal/application"
	"github.com/example/studio-admin/internal/persistence"
	"github.com/example/studio-admin/internal/recurrence"
)

type courseService interface {
	Courses(ctx context.Context) ([]persistence.Course, error)
	Course(ctx context.Context, id string) (persistence.Course, error)
	AddCourse(ctx context.Context, input persistence.CourseInput) (persistence.Course, error)
	EditCourse(ctx context.Context, id string, patch persistence.CoursePatch) error
	RemoveCourse(ctx context.Context, id string) error
	OverridesFor(ctx context.Context, courseID string) ([]persistence.LessonOverride, error)
	SetOverride(ctx context.Context, input persistence.OverrideInput) (persistence.LessonOverride, error)
	RemoveOverride(ctx context.Context, courseID, date string) error
	ResolveLesson(ctx context.Context, courseID, date string) ([]recurrence.Lesson, error)
}

// CourseHandler serves courses, their dated overrides and resolved lessons.
type CourseHandler struct {
	service   courseService
	responder responder
	logger    *slog.Logger
}

func NewCourseHandler(service courseService, logger *slog.Logger) *CourseHandler {
	base := defaultLogger(logger)
	return &CourseHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *CourseHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "CourseHandler", operation, attrs...)
}

// Routes mounts the handler under /courses.
func (h *CourseHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{courseId}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/overrides", h.ListOverrides)
		r.Put("/overrides/{date}", h.PutOverride)
		r.Delete("/overrides/{date}", h.DeleteOverride)
		r.Get("/lessons/{date}", h.Resolve)
	})
}

func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.Courses(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "course list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"courses": mapSlice(courses, toCourseDTO)})
}

func (h *CourseHandler) Get(w http.ResponseWriter, r *http.Request) {
	course, err := h.service.Course(r.Context(), chi.URLParam(r, "courseId"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"course": toCourseDTO(course)})
}

func (h *CourseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode course request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	course, err := h.service.AddCourse(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"course": toCourseDTO(course)})
}

func (h *CourseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "courseId")
	var req coursePatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "course_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode course patch", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	if err := h.service.EditCourse(r.Context(), id, req.toPatch()); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	course, err := h.service.Course(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"course": toCourseDTO(course)})
}

func (h *CourseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveCourse(r.Context(), chi.URLParam(r, "courseId")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *CourseHandler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	overrides, err := h.service.OverridesFor(r.Context(), chi.URLParam(r, "courseId"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"overrides": mapSlice(overrides, toOverrideDTO)})
}

func (h *CourseHandler) PutOverride(w http.ResponseWriter, r *http.Request) {
	courseID, date := chi.URLParam(r, "courseId"), chi.URLParam(r, "date")
	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "PutOverride", "course_id", courseID, "date", date, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode override", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	override, err := h.service.SetOverride(r.Context(), persistence.OverrideInput{
		CourseID:     courseID,
		Date:         date,
		NewStartTime: req.NewStartTime,
		NewEndTime:   req.NewEndTime,
		Cancelled:    req.Cancelled,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"override": toOverrideDTO(override)})
}

func (h *CourseHandler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveOverride(r.Context(), chi.URLParam(r, "courseId"), chi.URLParam(r, "date")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *CourseHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	lessons, err := h.service.ResolveLesson(r.Context(), chi.URLParam(r, "courseId"), chi.URLParam(r, "date"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"lessons": mapSlice(lessons, toLessonDTO)})
}
