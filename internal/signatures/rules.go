package signatures

import "github.com/hyperpolymath/panic-attacker/internal/kanren"

// loadSignatureRules installs the signature rule catalogue. The catalogue
// is compiled in: a rule that fails validation here is a programmer error,
// caught by MustAddRule at first use.
func loadSignatureRules(db *kanren.FactDB) {
	v := kanren.Var("V")
	f := kanren.Var("F")
	u := kanren.Var("U")
	l1 := kanren.Var("L1")
	l2 := kanren.Var("L2")
	l3 := kanren.Var("L3")
	l4 := kanren.Var("L4")
	m1 := kanren.Var("M1")
	m2 := kanren.Var("M2")

	// use_after_free(V, F, U) :- free(V, F), use(V, U), ordering(F, U).
	db.MustAddRule(kanren.Rule{
		Name: "use_after_free",
		Head: kanren.Pred("use_after_free", v, f, u),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("free", v, f)),
			kanren.Body(kanren.Pred("use", v, u)),
			kanren.Body(kanren.Pred("ordering", f, u)),
		},
		Confidence: 0.85,
		Priority:   90,
	})

	// double_free(V, L1, L2) :- free(V, L1), free(V, L2), L1 < L2.
	db.MustAddRule(kanren.Rule{
		Name: "double_free",
		Head: kanren.Pred("double_free", v, l1, l2),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("free", v, l1)),
			kanren.Body(kanren.Pred("free", v, l2)),
			kanren.LessThan(l1, l2),
		},
		Confidence: 0.9,
		Priority:   90,
	})

	// deadlock(M1, M2): two lock chains acquiring M1, M2 in reversed order.
	db.MustAddRule(kanren.Rule{
		Name: "deadlock",
		Head: kanren.Pred("deadlock", m1, m2),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("lock", m1, l1)),
			kanren.Body(kanren.Pred("lock", m2, l2)),
			kanren.Body(kanren.Pred("lock", m2, l3)),
			kanren.Body(kanren.Pred("lock", m1, l4)),
			kanren.LessThan(l1, l2),
			kanren.LessThan(l3, l4),
			kanren.Distinct(m1, m2),
			kanren.Distinct(l2, l3),
		},
		Confidence: 0.7,
		Priority:   70,
	})

	// data_race(V, L1, L2) :- write(V, L1), read(V, L2),
	//   concurrent(L1, L2), not synchronized(L1, L2).
	db.MustAddRule(kanren.Rule{
		Name: "data_race",
		Head: kanren.Pred("data_race", v, l1, l2),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("write", v, l1)),
			kanren.Body(kanren.Pred("read", v, l2)),
			kanren.Body(kanren.Pred("concurrent", l1, l2)),
			kanren.Not(kanren.Pred("synchronized", l1, l2)),
		},
		Confidence: 0.65,
		Priority:   60,
	})

	// memory_leak(V, L) :- alloc(V, L), not free(V, _).
	db.MustAddRule(kanren.Rule{
		Name: "memory_leak",
		Head: kanren.Pred("memory_leak", v, l1),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("alloc", v, l1)),
			kanren.Not(kanren.Pred("free", v, kanren.Var("AnyLoc"))),
		},
		Confidence: 0.6,
		Priority:   50,
	})
}
