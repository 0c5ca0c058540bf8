package persistence

import (
	"errors"

	"github.com/example/studio-admin/internal/docstore"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = docstore.ErrNotFound
	// ErrMalformedDocument is returned when a stored document cannot be decoded.
	ErrMalformedDocument = errors.New("persistence: malformed document")
)
