package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/studio-admin/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"field": "invalid"}}
	if got := withFields.Error(); got != "validation failed" {
		t.Fatalf("expected consistent message for populated error, got %q", got)
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	if base.HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	base.merge(nil)
	if len(base.FieldErrors) != 2 || !base.HasErrors() {
		t.Fatalf("expected two fields after merge, got %v", base.FieldErrors)
	}
}

func TestRemoteError(t *testing.T) {
	t.Parallel()

	t.Run("wraps transport failures", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("connection reset")
		err := remoteError("AddCourse", persistence.CoursesCollection, cause)

		var rErr *RemoteError
		if !errors.As(err, &rErr) {
			t.Fatalf("expected RemoteError, got %T", err)
		}
		if rErr.Op != "AddCourse" || !errors.Is(err, cause) {
			t.Fatalf("unexpected remote error %+v", rErr)
		}
		if got := err.Error(); got != "AddCourse courses: connection reset" {
			t.Fatalf("unexpected message %q", got)
		}
	})

	t.Run("maps missing documents to ErrNotFound", func(t *testing.T) {
		t.Parallel()
		err := remoteError("EditCourse", persistence.CoursesCollection, fmt.Errorf("lookup: %w", persistence.ErrNotFound))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		var rErr *RemoteError
		if errors.As(err, &rErr) {
			t.Fatalf("not found must not be reported as a remote failure")
		}
	})

	t.Run("nil stays nil", func(t *testing.T) {
		t.Parallel()
		if err := remoteError("op", "c", nil); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	})
}
