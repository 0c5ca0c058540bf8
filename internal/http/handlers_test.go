package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/studio-admin/internal/persistence"
	"github.com/example/studio-admin/internal/testfixtures"
)

func newTestRouter(t *testing.T) (*testfixtures.StudioHarness, http.Handler) {
	t.Helper()
	h := testfixtures.NewStudioFactory().NewStudio()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(RouterConfig{
		Courses:    NewCourseHandler(h.Studio, logger),
		Bookings:   NewBookingHandler(h.Studio, logger),
		Members:    NewMemberHandler(h.Studio, logger),
		Expenses:   NewExpenseHandler(h.Studio, logger),
		Registry:   NewRegistryHandler(h.Studio, logger),
		Refresher:  h.Studio,
		Gatherer:   h.Registry,
		Logger:     logger,
		Middleware: []func(http.Handler) http.Handler{RequestLogger(logger), Recoverer(logger)},
	})
	return h, router
}

func do(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

const yogaBody = `{"name":"Yoga","capacity":8,"schedule":[{"dayOfWeek":1,"startTime":"18:00","endTime":"19:00"},{"dayOfWeek":3,"startTime":"18:00","endTime":"19:00"}]}`

func TestCourseHandlers(t *testing.T) {
	t.Parallel()

	t.Run("create, patch and list", func(t *testing.T) {
		t.Parallel()
		h, router := newTestRouter(t)

		rec := do(t, router, http.MethodPost, "/courses", yogaBody)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		created := decodeBody[struct{ Course courseDTO }](t, rec).Course
		if created.ID == "" || len(created.Schedule) != 2 {
			t.Fatalf("unexpected course %+v", created)
		}

		rec = do(t, router, http.MethodPatch, "/courses/"+created.ID, `{"name":"Hatha Yoga"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		for _, call := range h.Remote.Calls() {
			if call.Op == "update" && len(call.Fields) != 1 {
				t.Fatalf("patch must only write the provided field, got %v", call.Fields)
			}
		}

		rec = do(t, router, http.MethodGet, "/courses", "")
		list := decodeBody[struct{ Courses []courseDTO }](t, rec).Courses
		if len(list) != 1 || list[0].Name != "Hatha Yoga" {
			t.Fatalf("unexpected list %+v", list)
		}
	})

	t.Run("error mapping", func(t *testing.T) {
		t.Parallel()
		h, router := newTestRouter(t)

		rec := do(t, router, http.MethodPost, "/courses", `{"name":"","capacity":-1}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		body := decodeBody[errorResponse](t, rec)
		if body.Errors["name"] == "" || body.Errors["capacity"] == "" {
			t.Fatalf("expected field errors, got %+v", body)
		}

		if rec := do(t, router, http.MethodGet, "/courses/missing", ""); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		if rec := do(t, router, http.MethodPost, "/courses", `{"name":"Yoga","colour":"red"}`); rec.Code != http.StatusBadRequest {
			t.Fatalf("unknown fields must be rejected, got %d", rec.Code)
		}

		h.Remote.FailOn("create", persistence.CoursesCollection, "", nil)
		rec = do(t, router, http.MethodPost, "/courses", yogaBody)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
		h.Remote.Heal()
		list := decodeBody[struct{ Courses []courseDTO }](t, do(t, router, http.MethodGet, "/courses", "")).Courses
		if len(list) != 0 {
			t.Fatalf("failed create must not be cached, got %+v", list)
		}
	})

	t.Run("overrides change the lessons of a day", func(t *testing.T) {
		t.Parallel()
		_, router := newTestRouter(t)
		created := decodeBody[struct{ Course courseDTO }](t, do(t, router, http.MethodPost, "/courses", yogaBody)).Course

		rec := do(t, router, http.MethodPut, "/courses/"+created.ID+"/overrides/2024-03-06", `{"cancelled":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		lessons := decodeBody[struct{ Lessons []lessonDTO }](t, do(t, router, http.MethodGet, "/courses/"+created.ID+"/lessons/2024-03-06", "")).Lessons
		if len(lessons) != 1 || !lessons[0].Cancelled {
			t.Fatalf("expected cancelled lesson, got %+v", lessons)
		}

		if rec := do(t, router, http.MethodDelete, "/courses/"+created.ID+"/overrides/2024-03-06", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		lessons = decodeBody[struct{ Lessons []lessonDTO }](t, do(t, router, http.MethodGet, "/courses/"+created.ID+"/lessons/2024-03-06", "")).Lessons
		if lessons[0].Cancelled {
			t.Fatalf("override removal must restore the lesson")
		}
	})
}

func TestBookingHandlers(t *testing.T) {
	t.Parallel()
	_, router := newTestRouter(t)
	created := decodeBody[struct{ Course courseDTO }](t, do(t, router, http.MethodPost, "/courses", yogaBody)).Course

	for i := 0; i < 2; i++ {
		rec := do(t, router, http.MethodPost, "/bookings", `{"courseId":"`+created.ID+`","date":"2024-03-06","userId":"u1","userName":"Ada"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	lessons := decodeBody[struct{ Lessons []lessonDTO }](t, do(t, router, http.MethodGet, "/lessons?from=2024-03-04&to=2024-03-10", "")).Lessons
	if len(lessons) != 2 || lessons[1].Booked == nil || *lessons[1].Booked != 2 || *lessons[1].FreeSpots != 6 {
		t.Fatalf("unexpected lessons %+v", lessons)
	}

	bookings := decodeBody[struct{ Bookings []bookingDTO }](t, do(t, router, http.MethodGet, "/bookings?userId=u1", "")).Bookings
	if len(bookings) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(bookings))
	}
	if rec := do(t, router, http.MethodDelete, "/bookings/"+bookings[0].ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	bookings = decodeBody[struct{ Bookings []bookingDTO }](t, do(t, router, http.MethodGet, "/bookings?courseId="+created.ID+"&date=2024-03-06", "")).Bookings
	if len(bookings) != 1 {
		t.Fatalf("expected 1 booking after cancel, got %d", len(bookings))
	}

	if rec := do(t, router, http.MethodGet, "/bookings", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without filters, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, "/lessons?from=2024-03-10&to=2024-03-01", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for reversed range, got %d", rec.Code)
	}
}

func TestMemberHandlers(t *testing.T) {
	t.Parallel()

	t.Run("partial cascade failure is reported and finished by a retry", func(t *testing.T) {
		t.Parallel()
		h, router := newTestRouter(t)
		created := decodeBody[struct{ Course courseDTO }](t, do(t, router, http.MethodPost, "/courses", yogaBody)).Course
		if rec := do(t, router, http.MethodPost, "/members", `{"id":"uid-1","displayName":"Ada","email":"ada@example.com"}`); rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		booking := decodeBody[struct{ Booking bookingDTO }](t, do(t, router, http.MethodPost, "/bookings", `{"courseId":"`+created.ID+`","date":"2024-03-04","userId":"uid-1"}`)).Booking
		if rec := do(t, router, http.MethodPost, "/members/uid-1/payments/2024-03/toggle", ""); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		h.Remote.FailOn("delete", persistence.BookingsCollection, booking.ID, nil)
		rec := do(t, router, http.MethodDelete, "/members/uid-1", "")
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody[cascadeResponse](t, rec)
		if body.Complete || len(body.Steps) != 3 {
			t.Fatalf("unexpected cascade body %+v", body)
		}
		if body.Message != cascadeIncompleteMessage || strings.Contains(body.Message, "Nothing was changed") {
			t.Fatalf("partial cascade must say some deletes failed, got %q", body.Message)
		}
		for _, step := range body.Steps {
			if (step.Kind == "booking") == step.Done {
				t.Fatalf("only the booking step must fail, got %+v", step)
			}
		}

		h.Remote.Heal()
		rec = do(t, router, http.MethodDelete, "/members/uid-1", "")
		if rec.Code != http.StatusOK || !decodeBody[cascadeResponse](t, rec).Complete {
			t.Fatalf("repeating the delete must finish the cascade, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("payments and unpaid report", func(t *testing.T) {
		t.Parallel()
		_, router := newTestRouter(t)
		do(t, router, http.MethodPost, "/members", `{"id":"uid-1","displayName":"Ada"}`)
		do(t, router, http.MethodPost, "/members", `{"id":"uid-2","displayName":"Bea"}`)

		if rec := do(t, router, http.MethodPut, "/members/uid-1/payments/2024-03", `{"paid":true}`); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		payment := decodeBody[paymentDTO](t, do(t, router, http.MethodGet, "/members/uid-2/payments/2024-03", ""))
		if payment.Paid {
			t.Fatalf("missing month must be unpaid")
		}

		report := decodeBody[unpaidReportDTO](t, do(t, router, http.MethodGet, "/reports/unpaid?month=2024-03", ""))
		if len(report.Paid) != 1 || report.Paid[0].ID != "uid-1" || len(report.Unpaid) != 1 || report.Unpaid[0].ID != "uid-2" {
			t.Fatalf("unexpected report %+v", report)
		}

		current := decodeBody[struct{ Paid map[string]bool }](t, do(t, router, http.MethodGet, "/members/payments/current", ""))
		if !current.Paid["uid-1"] || current.Paid["uid-2"] {
			t.Fatalf("unexpected current status %+v", current.Paid)
		}
	})
}

func TestExpenseHandlers(t *testing.T) {
	t.Parallel()
	_, router := newTestRouter(t)
	for _, body := range []string{
		`{"type":"affitto","amount":700,"yearMonth":"2024-03"}`,
		`{"type":"bolletta_luce","amount":50.5,"yearMonth":"2024-03"}`,
		`{"type":"altro","amount":30,"yearMonth":"2024-02"}`,
	} {
		if rec := do(t, router, http.MethodPost, "/expenses", body); rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	}
	if rec := do(t, router, http.MethodPost, "/expenses", `{"type":"affitto","amount":0,"yearMonth":"2024-03"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for zero amount, got %d", rec.Code)
	}

	summary := decodeBody[expenseSummaryDTO](t, do(t, router, http.MethodGet, "/expenses/summary?month=2024-03&months=2", ""))
	if summary.MonthTotal != 750.5 || summary.PeriodTotal != 780.5 || len(summary.Months) != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if rec := do(t, router, http.MethodGet, "/expenses/summary?month=2024-03&months=x", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad months, got %d", rec.Code)
	}
}

func TestRegistryHandlers(t *testing.T) {
	t.Parallel()
	_, router := newTestRouter(t)

	if rec := do(t, router, http.MethodPost, "/pending", `{"displayName":"Giulia","email":"giulia@example.com"}`); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := do(t, router, http.MethodPost, "/pending/claim", `{"uid":"uid-g","email":"GIULIA@example.com"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, router, http.MethodPost, "/pending/claim", `{"uid":"uid-h","email":"nobody@example.com"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	person := decodeBody[struct{ Person censusPersonDTO }](t, do(t, router, http.MethodPost, "/census", `{"firstName":"Maria","lastName":"Rossi","paymentType":"per-lesson"}`)).Person
	found := decodeBody[struct{ Census []censusPersonDTO }](t, do(t, router, http.MethodGet, "/census?q=rossi", "")).Census
	if len(found) != 1 || found[0].ID != person.ID {
		t.Fatalf("unexpected search result %+v", found)
	}
	adjusted := decodeBody[struct{ Person censusPersonDTO }](t, do(t, router, http.MethodPost, "/census/"+person.ID+"/lessons", `{"delta":-3}`)).Person
	if adjusted.LessonsPaid != 0 {
		t.Fatalf("expected clamp at zero, got %d", adjusted.LessonsPaid)
	}
	if rec := do(t, router, http.MethodPost, "/census/"+person.ID+"/payments/2024-01/toggle", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = do(t, router, http.MethodDelete, "/census/"+person.ID, "")
	if rec.Code != http.StatusOK || len(decodeBody[cascadeResponse](t, rec).Steps) != 2 {
		t.Fatalf("expected payment and profile steps, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()
	h, router := newTestRouter(t)

	if rec := do(t, router, http.MethodGet, "/health", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}

	do(t, router, http.MethodPost, "/courses", yogaBody)
	rec := do(t, router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `studio_relay_mutations_total{operation="AddCourse",outcome="success"} 1`) {
		t.Fatalf("expected relay metric in exposition, got %s", rec.Body.String())
	}

	before := h.Remote.Count("find", persistence.CoursesCollection)
	if rec := do(t, router, http.MethodPost, "/refresh", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if h.Remote.Count("find", persistence.CoursesCollection) != before+1 {
		t.Fatalf("refresh must reload courses")
	}
}
