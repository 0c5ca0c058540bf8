package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/studio-admin/internal/persistence"
)

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("application: not found")
)

// ValidationError captures field level validation issues that callers can surface to users.
// It is returned before any remote call is made.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// RemoteError reports a failed round trip to the document store. The cache
// is left unchanged whenever a RemoteError is returned.
type RemoteError struct {
	Op         string
	Collection string
	Err        error
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Collection != "" {
		b.WriteString(" ")
		b.WriteString(e.Collection)
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("remote call failed")
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// remoteError classifies an error returned by a repository call.
func remoteError(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%s %s: %w", op, collection, ErrNotFound)
	case errors.Is(err, persistence.ErrMalformedDocument):
		return fmt.Errorf("%s %s: %w", op, collection, err)
	}
	return &RemoteError{Op: op, Collection: collection, Err: err}
}
