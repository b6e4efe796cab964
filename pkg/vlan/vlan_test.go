package vlan

import (
	"math/rand"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"1",
		"100-200",
		"1-5,7,9-11",
		"4094",
		"any",
	}
	for _, s := range cases {
		r, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", s, err)
		}
		if got := r.String(); got != s {
			t.Errorf("Parse(%q).String() = %q", s, got)
		}
	}
}

func TestParseCoalesces(t *testing.T) {
	r, err := Parse("3,1,2,7,5,6")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := r.String(); got != "1-3,5-7" {
		t.Errorf("String() = %q, want 1-3,5-7", got)
	}
}

func TestParseRejectsOutOfBounds(t *testing.T) {
	for _, s := range []string{"0", "4095", "4000-5000", "-3"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	r, err := Parse("")
	if err != nil {
		t.Fatalf("Parse(\"\") error: %v", err)
	}
	if !r.IsEmpty() {
		t.Errorf("Parse(\"\") = %v, want empty", r)
	}
}

func TestSetAlgebraLaws(t *testing.T) {
	a := New(1, 2, 3, 4)
	b := New(3, 4, 5)
	c := New(4, 5, 6)

	// Commutativity
	if !Union(a, b).Equal(Union(b, a)) {
		t.Error("union not commutative")
	}
	if !Intersect(a, b).Equal(Intersect(b, a)) {
		t.Error("intersect not commutative")
	}

	// Associativity
	if !Union(Union(a, b), c).Equal(Union(a, Union(b, c))) {
		t.Error("union not associative")
	}
	if !Intersect(Intersect(a, b), c).Equal(Intersect(a, Intersect(b, c))) {
		t.Error("intersect not associative")
	}

	// Identity laws
	if !Subtract(a, Empty()).Equal(a) {
		t.Error("subtract(a, empty) != a")
	}
	if !Intersect(a, a).Equal(a) {
		t.Error("intersect(a, a) != a")
	}
}

func TestIntersectAny(t *testing.T) {
	a := New(1, 2, 3)
	if got := Intersect(Any(), a); !got.Equal(a) {
		t.Errorf("Intersect(ANY, a) = %v, want a", got)
	}
	if got := Intersect(Any(), Any()); !got.IsAny() {
		t.Errorf("Intersect(ANY, ANY) = %v, want ANY", got)
	}
}

func TestAnyEqualsOnlyAny(t *testing.T) {
	if Any().Equal(New(1)) {
		t.Error("ANY equals a concrete range")
	}
	if !Any().Equal(Any()) {
		t.Error("ANY does not equal ANY")
	}
	if Any().Equal(Empty()) {
		t.Error("ANY equals empty")
	}
}

func TestSubset(t *testing.T) {
	small := New(2, 3)
	big := New(1, 2, 3, 4)
	if !small.Subset(big) {
		t.Error("small not subset of big")
	}
	if big.Subset(small) {
		t.Error("big subset of small")
	}
	if !Empty().Subset(small) {
		t.Error("empty not subset of small")
	}
}

func TestSingleTag(t *testing.T) {
	if tag, ok := Single(150).SingleTag(); !ok || tag != 150 {
		t.Errorf("SingleTag() = %d, %v", tag, ok)
	}
	if _, ok := New(1, 2).SingleTag(); ok {
		t.Error("two-element range reported as single")
	}
	if _, ok := Any().SingleTag(); ok {
		t.Error("ANY reported as single")
	}
}

func TestPickRandom(t *testing.T) {
	r := New(10, 20, 30)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		tag, ok := r.PickRandom(rng)
		if !ok {
			t.Fatal("PickRandom failed on a non-empty range")
		}
		if !r.Contains(tag) {
			t.Fatalf("PickRandom returned %d, not a member", tag)
		}
	}
	if _, ok := Empty().PickRandom(rng); ok {
		t.Error("PickRandom succeeded on empty range")
	}
	if _, ok := Any().PickRandom(rng); ok {
		t.Error("PickRandom succeeded on ANY")
	}
}

func TestAddAndSubtract(t *testing.T) {
	r := New(1, 2)
	r2 := r.Add(3)
	if !r2.Contains(3) {
		t.Error("Add did not insert")
	}
	if r.Contains(3) {
		t.Error("Add mutated the receiver")
	}

	d := Subtract(r2, Single(2))
	if d.Contains(2) || !d.Contains(1) || !d.Contains(3) {
		t.Errorf("Subtract = %v", d)
	}
}
