package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	if got := AtoiDefault("42", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := AtoiDefault("", 7); got != 7 {
		t.Fatalf("expected default for empty, got %d", got)
	}
	if got := AtoiDefault("nope", 7); got != 7 {
		t.Fatalf("expected default for junk, got %d", got)
	}
	if got := AtoiDefault("-3", 7); got != -3 {
		t.Fatalf("expected -3, got %d", got)
	}
}
