package internal

import (
	"testing"
)

// FuzzCheckOpaque exercises state value shape checks with arbitrary strings.
// Goal: no panics; only exact-size base64url values pass.
func FuzzCheckOpaque(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	if v, err := NewOpaque(OpaqueSize); err == nil {
		f.Add(v)
	}

	f.Add("!!!not-base64!!!")
	f.Add("aGVsbG8=")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA==")

	f.Fuzz(func(t *testing.T, v string) {
		err := CheckOpaque(v, OpaqueSize)
		if err == nil && len(v) != 43 {
			t.Fatalf("accepted value of length %d", len(v))
		}
	})
}

func TestNewOpaqueShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		v, err := NewOpaque(OpaqueSize)
		if err != nil {
			t.Fatalf("NewOpaque: %v", err)
		}
		if err := CheckOpaque(v, OpaqueSize); err != nil {
			t.Fatalf("fresh value rejected: %v", err)
		}
		if seen[v] {
			t.Fatal("duplicate opaque value")
		}
		seen[v] = true
	}
	if _, err := NewOpaque(8); err == nil {
		t.Fatal("expected short opaque size to be rejected")
	}
}

func TestCorrelationIsStableAndShort(t *testing.T) {
	a := Correlation("secret-state")
	if a != Correlation("secret-state") {
		t.Fatal("correlation must be deterministic")
	}
	if len(a) != 12 {
		t.Fatalf("expected 12 hex chars, got %q", a)
	}
	if a == Correlation("other-state") {
		t.Fatal("distinct values should not collide")
	}
	if Correlation("") != "" {
		t.Fatal("empty input should give empty correlation")
	}
}
