package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	t.Run("assigns a request id and shares the logger", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		var seenID string
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID, _ = RequestIDFromContext(r.Context())
			LoggerFromContext(r.Context()).Info("inside handler")
			w.WriteHeader(http.StatusTeapot)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses", nil))

		if _, err := uuid.Parse(seenID); err != nil {
			t.Fatalf("expected a UUID request id, got %q", seenID)
		}
		if rec.Header().Get(RequestIDHeader) != seenID {
			t.Fatalf("response header must echo the request id")
		}

		var entries []map[string]any
		for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
			var entry map[string]any
			if err := json.Unmarshal(line, &entry); err != nil {
				t.Fatalf("invalid log line %q: %v", line, err)
			}
			entries = append(entries, entry)
		}
		if len(entries) != 2 {
			t.Fatalf("expected handler and completion entries, got %d", len(entries))
		}
		for _, entry := range entries {
			if entry["request_id"] != seenID {
				t.Fatalf("every entry must carry the request id, got %v", entry)
			}
		}
		if entries[1]["status"] != float64(http.StatusTeapot) {
			t.Fatalf("completion entry must record the status, got %v", entries[1])
		}
	})

	t.Run("reuses an incoming request id", func(t *testing.T) {
		t.Parallel()
		handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Header().Get(RequestIDHeader) != "abc-123" {
			t.Fatalf("expected incoming id to be kept, got %q", rec.Header().Get(RequestIDHeader))
		}
	})
}

func TestRecoverer(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !bytes.Contains(buf.Bytes(), []byte("handler panicked")) {
		t.Fatalf("expected panic to be logged, got %s", buf.String())
	}
}

func TestHandlerLoggerFallsBackToBase(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := ContextWithRequestID(context.Background(), "req-7")
	handlerLogger(ctx, base, "CourseHandler", "List").Info("listed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if entry["request_id"] != "req-7" || entry["handler"] != "CourseHandler" || entry["operation"] != "List" {
		t.Fatalf("unexpected entry %v", entry)
	}
}
