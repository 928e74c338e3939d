package kanren

import "testing"

func TestUnifyAtoms(t *testing.T) {
	s := NewSubstitution()
	if _, ok := s.Unify(Atom("hello"), Atom("hello")); !ok {
		t.Fatal("identical atoms should unify")
	}
	if _, ok := s.Unify(Atom("hello"), Atom("world")); ok {
		t.Fatal("different atoms should not unify")
	}
}

func TestUnifyVariableBinding(t *testing.T) {
	s := NewSubstitution()
	result, ok := s.Unify(Var("X"), Atom("test"))
	if !ok {
		t.Fatal("variable should unify with atom")
	}
	bound, ok := result.Lookup("X")
	if !ok || !bound.Equal(Atom("test")) {
		t.Fatalf("X should resolve to \"test\", got %v", bound)
	}
}

func TestUnifyCompound(t *testing.T) {
	s := NewSubstitution()
	t1 := Compound("f", Var("X"), Atom("b"))
	t2 := Compound("f", Atom("a"), Atom("b"))
	result, ok := s.Unify(t1, t2)
	if !ok {
		t.Fatal("compounds should unify")
	}
	bound, _ := result.Lookup("X")
	if !bound.Equal(Atom("a")) {
		t.Fatalf("X should resolve to \"a\", got %v", bound)
	}

	if _, ok := s.Unify(Compound("f", Atom("a")), Compound("g", Atom("a"))); ok {
		t.Fatal("different functors should not unify")
	}
	if _, ok := s.Unify(Compound("f", Atom("a")), Compound("f", Atom("a"), Atom("b"))); ok {
		t.Fatal("different arities should not unify")
	}
}

func TestUnifyIntegers(t *testing.T) {
	s := NewSubstitution()
	if _, ok := s.Unify(Int(42), Int(42)); !ok {
		t.Fatal("equal integers should unify")
	}
	if _, ok := s.Unify(Int(42), Int(43)); ok {
		t.Fatal("unequal integers should not unify")
	}
	if _, ok := s.Unify(Int(42), Atom("42")); ok {
		t.Fatal("integer should not unify with atom")
	}
}

func TestOccursCheck(t *testing.T) {
	s := NewSubstitution()
	// X against f(X): binding would create a cyclic term.
	if _, ok := s.Unify(Var("X"), Compound("f", Var("X"))); ok {
		t.Fatal("occurs-check should reject X = f(X)")
	}

	// Indirect cycle: X = f(Y), then Y = g(X).
	s, ok := s.Unify(Var("X"), Compound("f", Var("Y")))
	if !ok {
		t.Fatal("X = f(Y) should unify")
	}
	if _, ok := s.Unify(Var("Y"), Compound("g", Var("X"))); ok {
		t.Fatal("occurs-check should reject the indirect cycle")
	}
}

func TestSubstitutionDoesNotMutate(t *testing.T) {
	s := NewSubstitution()
	extended, ok := s.Unify(Var("X"), Atom("a"))
	if !ok {
		t.Fatal("unify failed")
	}
	if _, bound := s.Lookup("X"); bound {
		t.Fatal("original substitution must stay unchanged")
	}
	if _, bound := extended.Lookup("X"); !bound {
		t.Fatal("extended substitution should carry the binding")
	}
}

func TestWalkChains(t *testing.T) {
	s := NewSubstitution()
	s, _ = s.Unify(Var("X"), Var("Y"))
	s, _ = s.Unify(Var("Y"), Atom("end"))
	resolved := s.Resolve(Var("X"))
	if !resolved.Equal(Atom("end")) {
		t.Fatalf("X should walk to \"end\", got %v", resolved)
	}
}

func TestFactKeyStructuralEquality(t *testing.T) {
	f1 := NewFact("edge", Atom("a"), Int(1))
	f2 := NewFact("edge", Atom("a"), Int(1))
	f3 := NewFact("edge", Atom("a"), Int(2))
	if f1.Key() != f2.Key() {
		t.Fatal("structurally equal facts should share a key")
	}
	if f1.Key() == f3.Key() {
		t.Fatal("different facts should have different keys")
	}
}
