package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/example/studio-admin/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestServiceLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var base, scoped bytes.Buffer
	baseLogger := slog.New(slog.NewJSONHandler(&base, nil))
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewJSONHandler(&scoped, nil)))

	serviceLogger(ctx, baseLogger, "Studio", "AddCourse", "course_id", "c1").Info("done")
	if base.Len() != 0 {
		t.Fatalf("base logger must not be used when the context carries one")
	}

	var entry map[string]any
	if err := json.Unmarshal(scoped.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if entry["service"] != "Studio" || entry["operation"] != "AddCourse" || entry["course_id"] != "c1" {
		t.Fatalf("unexpected attributes %v", entry)
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "validation", err: &ValidationError{FieldErrors: map[string]string{"name": "required"}}, want: "validation"},
		{name: "not found", err: fmt.Errorf("x: %w", ErrNotFound), want: "not_found"},
		{name: "remote", err: &RemoteError{Op: "Book", Err: errors.New("offline")}, want: "remote"},
		{name: "joined remote", err: errors.Join(&RemoteError{Op: "RemoveMember"}), want: "remote"},
		{name: "other", err: errors.New("boom"), want: "unexpected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorKind(tc.err); got != tc.want {
				t.Fatalf("ErrorKind() = %q, want %q", got, tc.want)
			}
		})
	}
}
