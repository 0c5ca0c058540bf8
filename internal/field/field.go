// Package field provides a three-state optional value used by partial updates.
//
// A Value is either undefined (the zero value, omitted from writes), set to a
// concrete value, or explicitly null (written as a cleared field).
package field

import (
	"bytes"
	"encoding/json"
)

type state uint8

const (
	undefined state = iota
	present
	null
)

// Value carries an optional T that distinguishes "not provided" from "cleared".
type Value[T any] struct {
	state state
	value T
}

// Set returns a defined value.
func Set[T any](v T) Value[T] {
	return Value[T]{state: present, value: v}
}

// Null returns an explicitly cleared value.
func Null[T any]() Value[T] {
	return Value[T]{state: null}
}

// FromPtr maps nil to Null and anything else to Set.
func FromPtr[T any](v *T) Value[T] {
	if v == nil {
		return Null[T]()
	}
	return Set(*v)
}

// IsDefined reports whether the value was provided at all, including null.
func (v Value[T]) IsDefined() bool {
	return v.state != undefined
}

// IsNull reports whether the value was explicitly cleared.
func (v Value[T]) IsNull() bool {
	return v.state == null
}

// Get returns the concrete value and whether one is present.
func (v Value[T]) Get() (T, bool) {
	return v.value, v.state == present
}

// Ptr returns nil for undefined or null values.
func (v Value[T]) Ptr() *T {
	if v.state != present {
		return nil
	}
	out := v.value
	return &out
}

// MarshalJSON encodes undefined and null values as JSON null.
func (v Value[T]) MarshalJSON() ([]byte, error) {
	if v.state != present {
		return []byte("null"), nil
	}
	return json.Marshal(v.value)
}

// UnmarshalJSON is only invoked for keys present in the payload, so an absent
// key leaves the value undefined.
func (v *Value[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Null[T]()
		return nil
	}
	var decoded T
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*v = Set(decoded)
	return nil
}
