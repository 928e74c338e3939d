package kanren

import (
	"fmt"
	"sort"
)

// Predicate is a fact pattern, possibly containing variables.
type Predicate struct {
	Relation string
	Args     []Term
}

// Pred builds a predicate pattern.
func Pred(relation string, args ...Term) Predicate {
	return Predicate{Relation: relation, Args: args}
}

func (p Predicate) term() Term {
	return Compound(p.Relation, p.Args...)
}

func (p Predicate) rename(suffix string) Predicate {
	args := make([]Term, len(p.Args))
	for i, arg := range p.Args {
		args[i] = arg.rename(suffix)
	}
	return Predicate{Relation: p.Relation, Args: args}
}

// BodyItem is one conjunct of a rule body: either a fact pattern or a
// built-in relation (less_than, distinct, not).
type BodyItem struct {
	Pred    *Predicate
	Builtin string // "less_than", "distinct", "not", ""
	Args    []Term
	Negated *Predicate // set when Builtin == "not"
}

// Body constructs a positive body conjunct.
func Body(p Predicate) BodyItem { return BodyItem{Pred: &p} }

// LessThan constructs the less_than built-in over two terms.
func LessThan(a, b Term) BodyItem {
	return BodyItem{Builtin: "less_than", Args: []Term{a, b}}
}

// Distinct constructs the distinct built-in over two terms.
func Distinct(a, b Term) BodyItem {
	return BodyItem{Builtin: "distinct", Args: []Term{a, b}}
}

// Not constructs negation as failure over a predicate. Negation is checked
// against every fact in the database when the rule is evaluated, including
// facts derived in earlier forward-chaining rounds.
func Not(p Predicate) BodyItem {
	return BodyItem{Builtin: "not", Negated: &p}
}

func (b BodyItem) rename(suffix string) BodyItem {
	out := BodyItem{Builtin: b.Builtin}
	if b.Pred != nil {
		p := b.Pred.rename(suffix)
		out.Pred = &p
	}
	if b.Negated != nil {
		p := b.Negated.rename(suffix)
		out.Negated = &p
	}
	if b.Args != nil {
		out.Args = make([]Term, len(b.Args))
		for i, arg := range b.Args {
			out.Args[i] = arg.rename(suffix)
		}
	}
	return out
}

// Rule derives its head whenever every body conjunct is satisfied.
type Rule struct {
	Name       string
	Head       Predicate
	Body       []BodyItem
	Confidence float64
	Priority   int
	Tags       []string
}

// RuleApplication records one rule firing during forward chaining.
type RuleApplication struct {
	Name       string
	Confidence float64
	Priority   int
	Derived    int
}

// FactDB is a deduplicated fact set plus a rule list. It is owned by one
// task at a time; multiple databases may run in parallel but share nothing.
type FactDB struct {
	facts map[string]Fact
	order []string // insertion order for deterministic iteration
	rules []Rule
}

// NewFactDB returns an empty database.
func NewFactDB() *FactDB {
	return &FactDB{facts: make(map[string]Fact)}
}

// Assert adds a fact; duplicates (by structural equality) are ignored.
func (db *FactDB) Assert(f Fact) {
	key := f.Key()
	if _, ok := db.facts[key]; ok {
		return
	}
	db.facts[key] = f
	db.order = append(db.order, key)
}

// AddRule registers a validated rule. Malformed rules are rejected with a
// RuleError; inference itself can then never fail.
func (db *FactDB) AddRule(r Rule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	db.rules = append(db.rules, r)
	return nil
}

// MustAddRule registers a rule from the embedded catalogues. A compile-time
// catalogue that fails validation is a programmer error.
func (db *FactDB) MustAddRule(r Rule) {
	if err := db.AddRule(r); err != nil {
		panic(err)
	}
}

// Facts returns all facts for a relation in insertion order.
func (db *FactDB) Facts(relation string) []Fact {
	var out []Fact
	for _, key := range db.order {
		if f := db.facts[key]; f.Relation == relation {
			out = append(out, f)
		}
	}
	return out
}

// Contains reports whether a ground fact is present.
func (db *FactDB) Contains(f Fact) bool {
	_, ok := db.facts[f.Key()]
	return ok
}

// Len is the total fact count.
func (db *FactDB) Len() int { return len(db.facts) }

// Count returns the fact count for one relation.
func (db *FactDB) Count(relation string) int {
	n := 0
	for _, f := range db.facts {
		if f.Relation == relation {
			n++
		}
	}
	return n
}

// Match finds all substitutions under which the predicate is a fact in the
// database. An empty result means no match, which is not an error.
func (db *FactDB) Match(p Predicate, base Substitution) []Substitution {
	var out []Substitution
	pattern := p.term()
	for _, key := range db.order {
		f := db.facts[key]
		if f.Relation != p.Relation || len(f.Args) != len(p.Args) {
			continue
		}
		if subst, ok := base.Unify(pattern, f.term()); ok {
			out = append(out, subst)
		}
	}
	return out
}

// matchBody finds every substitution satisfying all conjuncts.
func (db *FactDB) matchBody(body []BodyItem, base Substitution) []Substitution {
	current := []Substitution{base}
	for _, item := range body {
		var next []Substitution
		for _, subst := range current {
			switch {
			case item.Pred != nil:
				next = append(next, db.Match(*item.Pred, subst)...)
			case item.Builtin == "not":
				if len(db.Match(*item.Negated, subst)) == 0 {
					next = append(next, subst)
				}
			default:
				if evalBuiltin(item, subst) {
					next = append(next, subst)
				}
			}
		}
		current = next
		if len(current) == 0 {
			break
		}
	}
	return current
}

// evalBuiltin evaluates a ground built-in relation. Unbound arguments make
// the conjunct fail rather than error.
func evalBuiltin(item BodyItem, subst Substitution) bool {
	a := subst.Resolve(item.Args[0])
	b := subst.Resolve(item.Args[1])
	if !a.IsGround() || !b.IsGround() {
		return false
	}
	switch item.Builtin {
	case "less_than":
		return a.Kind == KindInt && b.Kind == KindInt && a.Int < b.Int
	case "distinct":
		return !a.Equal(b)
	}
	return false
}

// ForwardChain applies every rule to fixpoint. Rules are range-restricted
// and heads carry no function symbols, so the Herbrand base is finite and
// the loop always terminates. Returns the number of derived facts and the
// per-rule applications.
func (db *FactDB) ForwardChain() (int, []RuleApplication) {
	totalDerived := 0
	var applications []RuleApplication
	round := 0

	for {
		var fresh []Fact
		for _, rule := range db.rules {
			round++
			suffix := fmt.Sprintf("#%d", round)
			head := rule.Head.rename(suffix)
			body := make([]BodyItem, len(rule.Body))
			for i, item := range rule.Body {
				body[i] = item.rename(suffix)
			}

			derived := 0
			for _, subst := range db.matchBody(body, NewSubstitution()) {
				instantiated := subst.Resolve(head.term())
				fact := Fact{Relation: instantiated.Sym, Args: instantiated.Args}
				if !instantiated.IsGround() || db.Contains(fact) {
					continue
				}
				already := false
				for _, f := range fresh {
					if f.Key() == fact.Key() {
						already = true
						break
					}
				}
				if !already {
					fresh = append(fresh, fact)
					derived++
				}
			}
			if derived > 0 {
				applications = append(applications, RuleApplication{
					Name:       rule.Name,
					Confidence: rule.Confidence,
					Priority:   rule.Priority,
					Derived:    derived,
				})
			}
		}
		if len(fresh) == 0 {
			break
		}
		totalDerived += len(fresh)
		for _, f := range fresh {
			db.Assert(f)
		}
	}
	return totalDerived, applications
}

// queryDepthLimit bounds backward search so recursive rule sets cannot
// spin; range-restricted rules converge far below it in practice.
const queryDepthLimit = 64

// Query proves a goal backward against the facts plus the rule set using
// SLD-resolution-style search, returning every solution substitution.
func (db *FactDB) Query(goal Predicate) []Substitution {
	return db.solve(goal, NewSubstitution(), 0)
}

func (db *FactDB) solve(goal Predicate, subst Substitution, depth int) []Substitution {
	if depth > queryDepthLimit {
		return nil
	}
	solutions := db.Match(goal, subst)

	for ri, rule := range db.rules {
		if rule.Head.Relation != goal.Relation || len(rule.Head.Args) != len(goal.Args) {
			continue
		}
		suffix := fmt.Sprintf("@%d_%d", depth, ri)
		head := rule.Head.rename(suffix)
		unified, ok := subst.Unify(goal.term(), head.term())
		if !ok {
			continue
		}
		body := make([]BodyItem, len(rule.Body))
		for i, item := range rule.Body {
			body[i] = item.rename(suffix)
		}
		solutions = append(solutions, db.solveBody(body, unified, depth+1)...)
	}
	return solutions
}

func (db *FactDB) solveBody(body []BodyItem, subst Substitution, depth int) []Substitution {
	if len(body) == 0 {
		return []Substitution{subst}
	}
	head, rest := body[0], body[1:]
	var out []Substitution
	switch {
	case head.Pred != nil:
		for _, next := range db.solve(*head.Pred, subst, depth) {
			out = append(out, db.solveBody(rest, next, depth)...)
		}
	case head.Builtin == "not":
		if len(db.solve(*head.Negated, subst, depth)) == 0 {
			out = db.solveBody(rest, subst, depth)
		}
	default:
		if evalBuiltin(head, subst) {
			out = db.solveBody(rest, subst, depth)
		}
	}
	return out
}

// Relations lists relation names present in the database, sorted.
func (db *FactDB) Relations() []string {
	seen := make(map[string]bool)
	for _, f := range db.facts {
		seen[f.Relation] = true
	}
	out := make([]string, 0, len(seen))
	for rel := range seen {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}
