package interner

import "testing"

func TestInternDeduplicates(t *testing.T) {
	in := New()
	a := in.Intern("self")
	b := in.Intern("self")
	c := in.Intern("super")

	if a != b {
		t.Fatalf("expected same id for repeated intern, got %v != %v", a, b)
	}
	if a == c {
		t.Fatalf("expected distinct ids for distinct strings")
	}
	if in.Lookup(a) != "self" || in.Lookup(c) != "super" {
		t.Fatalf("lookup did not round-trip")
	}
	if in.Len() != 2 {
		t.Fatalf("expected 2 distinct strings, got %d", in.Len())
	}
}
