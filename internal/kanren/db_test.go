package kanren

import "testing"

func parentDB() *FactDB {
	db := NewFactDB()
	db.Assert(NewFact("parent", Atom("tom"), Atom("bob")))
	db.Assert(NewFact("parent", Atom("tom"), Atom("liz")))
	db.Assert(NewFact("parent", Atom("bob"), Atom("ann")))
	return db
}

func grandparentRule() Rule {
	return Rule{
		Name: "grandparent",
		Head: Pred("grandparent", Var("X"), Var("Z")),
		Body: []BodyItem{
			Body(Pred("parent", Var("X"), Var("Y"))),
			Body(Pred("parent", Var("Y"), Var("Z"))),
		},
		Confidence: 0.9,
	}
}

func TestMatch(t *testing.T) {
	db := parentDB()
	results := db.Match(Pred("parent", Atom("tom"), Var("C")), NewSubstitution())
	if len(results) != 2 {
		t.Fatalf("expected 2 children of tom, got %d", len(results))
	}
}

func TestAssertDeduplicates(t *testing.T) {
	db := NewFactDB()
	db.Assert(NewFact("edge", Atom("a"), Atom("b")))
	db.Assert(NewFact("edge", Atom("a"), Atom("b")))
	if db.Len() != 1 {
		t.Fatalf("duplicate assert should be ignored, got %d facts", db.Len())
	}
}

func TestForwardChain(t *testing.T) {
	db := parentDB()
	if err := db.AddRule(grandparentRule()); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}
	derived, apps := db.ForwardChain()
	if derived == 0 {
		t.Fatal("forward chaining should derive facts")
	}
	if db.Count("grandparent") != 1 {
		t.Fatalf("expected 1 grandparent fact, got %d", db.Count("grandparent"))
	}
	if len(apps) == 0 || apps[0].Name != "grandparent" {
		t.Fatalf("rule application not recorded: %v", apps)
	}
}

func TestForwardChainTransitiveClosure(t *testing.T) {
	db := NewFactDB()
	db.Assert(NewFact("edge", Atom("a"), Atom("b")))
	db.Assert(NewFact("edge", Atom("b"), Atom("c")))
	db.Assert(NewFact("edge", Atom("c"), Atom("a"))) // cycle
	db.MustAddRule(Rule{
		Name: "reach_base",
		Head: Pred("reach", Var("X"), Var("Y")),
		Body: []BodyItem{Body(Pred("edge", Var("X"), Var("Y")))},
	})
	db.MustAddRule(Rule{
		Name: "reach_step",
		Head: Pred("reach", Var("X"), Var("Z")),
		Body: []BodyItem{
			Body(Pred("reach", Var("X"), Var("Y"))),
			Body(Pred("edge", Var("Y"), Var("Z"))),
		},
	})
	db.ForwardChain()
	// 3 nodes in a cycle: all 9 ordered pairs are reachable.
	if db.Count("reach") != 9 {
		t.Fatalf("expected 9 reach facts in a 3-cycle, got %d", db.Count("reach"))
	}
}

// Monotonicity: saturate(F1) is a subset of saturate(F2) when F1 is a
// subset of F2, for negation-free rules.
func TestForwardChainMonotonic(t *testing.T) {
	build := func(extra bool) *FactDB {
		db := parentDB()
		if extra {
			db.Assert(NewFact("parent", Atom("ann"), Atom("joe")))
		}
		db.MustAddRule(grandparentRule())
		db.ForwardChain()
		return db
	}
	small := build(false)
	large := build(true)

	for _, fact := range small.Facts("grandparent") {
		if !large.Contains(fact) {
			t.Fatalf("monotonicity violated: %v missing from larger saturation", fact)
		}
	}
	if large.Count("grandparent") < small.Count("grandparent") {
		t.Fatal("larger input should derive at least as many facts")
	}
}

func TestBuiltins(t *testing.T) {
	db := NewFactDB()
	db.Assert(NewFact("val", Atom("a"), Int(1)))
	db.Assert(NewFact("val", Atom("b"), Int(2)))
	db.MustAddRule(Rule{
		Name: "smaller",
		Head: Pred("smaller", Var("X"), Var("Y")),
		Body: []BodyItem{
			Body(Pred("val", Var("X"), Var("NX"))),
			Body(Pred("val", Var("Y"), Var("NY"))),
			LessThan(Var("NX"), Var("NY")),
			Distinct(Var("X"), Var("Y")),
		},
	})
	db.ForwardChain()
	facts := db.Facts("smaller")
	if len(facts) != 1 {
		t.Fatalf("expected exactly smaller(a,b), got %v", facts)
	}
	if !facts[0].Args[0].Equal(Atom("a")) || !facts[0].Args[1].Equal(Atom("b")) {
		t.Fatalf("wrong derivation: %v", facts[0])
	}
}

func TestNegationAsFailure(t *testing.T) {
	db := NewFactDB()
	db.Assert(NewFact("bird", Atom("tweety")))
	db.Assert(NewFact("bird", Atom("pingu")))
	db.Assert(NewFact("penguin", Atom("pingu")))
	db.MustAddRule(Rule{
		Name: "flies",
		Head: Pred("flies", Var("X")),
		Body: []BodyItem{
			Body(Pred("bird", Var("X"))),
			Not(Pred("penguin", Var("X"))),
		},
	})
	db.ForwardChain()
	if db.Count("flies") != 1 {
		t.Fatalf("expected only tweety to fly, got %d facts", db.Count("flies"))
	}
	if !db.Contains(NewFact("flies", Atom("tweety"))) {
		t.Fatal("tweety should fly")
	}
}

func TestBackwardQueryThroughRules(t *testing.T) {
	db := parentDB()
	db.MustAddRule(grandparentRule())

	// No forward chaining: the goal must be proven backward.
	solutions := db.Query(Pred("grandparent", Atom("tom"), Var("G")))
	if len(solutions) != 1 {
		t.Fatalf("expected one solution, got %d", len(solutions))
	}
	bound, ok := solutions[0].Lookup("G")
	if !ok || !bound.Equal(Atom("ann")) {
		t.Fatalf("G should be ann, got %v", bound)
	}
}

func TestRuleValidation(t *testing.T) {
	db := NewFactDB()

	// Range restriction: head variable absent from body.
	err := db.AddRule(Rule{
		Name: "bad_range",
		Head: Pred("out", Var("X"), Var("Unbound")),
		Body: []BodyItem{Body(Pred("in", Var("X")))},
	})
	if err == nil {
		t.Fatal("range-restriction violation should be rejected")
	}
	if _, ok := err.(*RuleError); !ok {
		t.Fatalf("expected *RuleError, got %T", err)
	}

	// Function symbols in heads are forbidden.
	err = db.AddRule(Rule{
		Name: "bad_head",
		Head: Pred("out", Compound("f", Var("X"))),
		Body: []BodyItem{Body(Pred("in", Var("X")))},
	})
	if err == nil {
		t.Fatal("function symbol in head should be rejected")
	}

	err = db.AddRule(Rule{
		Name:       "bad_confidence",
		Head:       Pred("out", Var("X")),
		Body:       []BodyItem{Body(Pred("in", Var("X")))},
		Confidence: 1.5,
	})
	if err == nil {
		t.Fatal("confidence outside [0,1] should be rejected")
	}
}

func TestQueryNoMatchIsEmpty(t *testing.T) {
	db := parentDB()
	if got := db.Query(Pred("sibling", Var("A"), Var("B"))); len(got) != 0 {
		t.Fatalf("unprovable goal should yield no solutions, got %d", len(got))
	}
}
