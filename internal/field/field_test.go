package field

import (
	"encoding/json"
	"testing"
)

func TestValueStates(t *testing.T) {
	t.Run("zero value is undefined", func(t *testing.T) {
		var v Value[string]
		if v.IsDefined() || v.IsNull() {
			t.Fatalf("expected undefined value, got %+v", v)
		}
		if v.Ptr() != nil {
			t.Fatalf("expected nil pointer for undefined value")
		}
	})

	t.Run("set value", func(t *testing.T) {
		v := Set(3)
		got, ok := v.Get()
		if !ok || got != 3 {
			t.Fatalf("expected 3, got %d (ok=%v)", got, ok)
		}
		if !v.IsDefined() || v.IsNull() {
			t.Fatalf("unexpected state for set value")
		}
	})

	t.Run("null value", func(t *testing.T) {
		v := Null[string]()
		if !v.IsDefined() || !v.IsNull() {
			t.Fatalf("expected defined null value")
		}
		if _, ok := v.Get(); ok {
			t.Fatalf("null value must not report a concrete value")
		}
	})

	t.Run("from pointer", func(t *testing.T) {
		if !FromPtr[string](nil).IsNull() {
			t.Fatalf("nil pointer should map to null")
		}
		s := "x"
		if got, _ := FromPtr(&s).Get(); got != "x" {
			t.Fatalf("expected x, got %q", got)
		}
	})
}

func TestValueJSON(t *testing.T) {
	type patch struct {
		Name  Value[string] `json:"name"`
		Notes Value[string] `json:"notes"`
		Count Value[int]    `json:"count"`
	}

	var p patch
	if err := json.Unmarshal([]byte(`{"name":"Yoga","notes":null}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got, ok := p.Name.Get(); !ok || got != "Yoga" {
		t.Fatalf("expected name to be set, got %q", got)
	}
	if !p.Notes.IsNull() {
		t.Fatalf("expected notes to be null")
	}
	if p.Count.IsDefined() {
		t.Fatalf("expected count to stay undefined")
	}

	if err := json.Unmarshal([]byte(`{"count":"nope"}`), &p); err == nil {
		t.Fatalf("expected type error for count")
	}
}
