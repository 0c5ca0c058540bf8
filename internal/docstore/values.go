package docstore

import (
	"cmp"
	"encoding/json"
	"fmt"
	"time"
)

// Normalize converts a Go value into the canonical representation stored by
// backends: signed integers become int64, floats become float64, times are UTC.
func Normalize(v any) (any, error) {
	switch typed := v.(type) {
	case nil, string, bool, int64, float64:
		return typed, nil
	case int:
		return int64(typed), nil
	case int32:
		return int64(typed), nil
	case int16:
		return int64(typed), nil
	case int8:
		return int64(typed), nil
	case uint8:
		return int64(typed), nil
	case uint16:
		return int64(typed), nil
	case uint32:
		return int64(typed), nil
	case float32:
		return float64(typed), nil
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i, nil
		}
		return typed.Float64()
	case time.Time:
		return typed.UTC(), nil
	case []string:
		out := make([]any, len(typed))
		for i, s := range typed {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			n, err := Normalize(item)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	default:
		if IsServerTimestamp(v) {
			return v, nil
		}
		return nil, fmt.Errorf("docstore: unsupported value type %T", v)
	}
}

// NormalizeFields applies Normalize to every entry and replaces ServerTimestamp
// sentinels with now.
func NormalizeFields(fields Fields, now time.Time) (Fields, error) {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if IsServerTimestamp(v) {
			out[k] = now.UTC()
			continue
		}
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// typeRank follows the cross-type ordering used by Firestore.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	case []any:
		return 5
	case map[string]any:
		return 6
	default:
		return 7
	}
}

// Compare orders two normalized values.
func Compare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case int64, float64:
		return cmp.Compare(toFloat(a), toFloat(b))
	case time.Time:
		return av.Compare(b.(time.Time))
	case string:
		return cmp.Compare(av, b.(string))
	default:
		return 0
	}
}

// equalValues reports whether two normalized values compare equal.
func equalValues(a, b any) bool {
	if typeRank(a) != typeRank(b) || typeRank(a) > 4 {
		return false
	}
	return Compare(a, b) == 0
}

func toFloat(v any) float64 {
	switch typed := v.(type) {
	case int64:
		return float64(typed)
	case float64:
		return typed
	default:
		return 0
	}
}

// Matches evaluates a filter against a stored document.
func Matches(fields Fields, f Filter) bool {
	value, ok := fields[f.Field]
	if !ok {
		return false
	}
	want, err := Normalize(f.Value)
	if err != nil {
		return false
	}
	switch f.Op {
	case In:
		list, _ := want.([]any)
		for _, candidate := range list {
			if equalValues(value, candidate) {
				return true
			}
		}
		return false
	default:
		return equalValues(value, want)
	}
}
