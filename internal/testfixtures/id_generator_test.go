package testfixtures

import "testing"

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("entity")

	first := gen.Next()
	second := gen.Next()

	if first != "entity-001" || second != "entity-002" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if gen.Issued() != 2 {
		t.Fatalf("expected 2 issued identifiers, got %d", gen.Issued())
	}
}

func TestIDGeneratorDefaultPrefix(t *testing.T) {
	if next := NewIDGenerator("").Next(); next != "doc-001" {
		t.Fatalf("expected doc-001, got %q", next)
	}
}
