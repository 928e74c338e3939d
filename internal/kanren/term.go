// Package kanren implements the relational inference engine: substitution
// based unification with occurs-check, a deduplicated fact database,
// monotonic forward chaining, and SLD-style backward queries. Domain
// analyzers (taint, cross-language, search strategy) are built on top of
// these primitives.
package kanren

import (
	"fmt"
	"strconv"
	"strings"
)

// TermKind discriminates the term representation.
type TermKind int

const (
	KindVar TermKind = iota
	KindAtom
	KindInt
	KindCompound
)

// Term is a logic term: a variable, a string atom, an integer, or a
// compound functor(args...).
type Term struct {
	Kind TermKind
	Sym  string // variable name, atom value, or compound functor
	Int  int64
	Args []Term
}

// Var creates a logic variable.
func Var(name string) Term { return Term{Kind: KindVar, Sym: name} }

// Atom creates a string constant.
func Atom(value string) Term { return Term{Kind: KindAtom, Sym: value} }

// Int creates an integer constant.
func Int(value int64) Term { return Term{Kind: KindInt, Int: value} }

// Compound creates a functor term.
func Compound(functor string, args ...Term) Term {
	return Term{Kind: KindCompound, Sym: functor, Args: args}
}

// IsGround reports whether the term contains no variables.
func (t Term) IsGround() bool {
	switch t.Kind {
	case KindVar:
		return false
	case KindCompound:
		for _, arg := range t.Args {
			if !arg.IsGround() {
				return false
			}
		}
	}
	return true
}

// Equal compares two terms structurally.
func (t Term) Equal(other Term) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindVar, KindAtom:
		return t.Sym == other.Sym
	case KindInt:
		return t.Int == other.Int
	case KindCompound:
		if t.Sym != other.Sym || len(t.Args) != len(other.Args) {
			return false
		}
		for i := range t.Args {
			if !t.Args[i].Equal(other.Args[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders a canonical form usable as a set key.
func (t Term) String() string {
	switch t.Kind {
	case KindVar:
		return "?" + t.Sym
	case KindAtom:
		return strconv.Quote(t.Sym)
	case KindInt:
		return strconv.FormatInt(t.Int, 10)
	case KindCompound:
		parts := make([]string, len(t.Args))
		for i, arg := range t.Args {
			parts[i] = arg.String()
		}
		return t.Sym + "(" + strings.Join(parts, ",") + ")"
	}
	return "?"
}

// containsVar reports whether the term syntactically contains the variable.
func (t Term) containsVar(name string) bool {
	switch t.Kind {
	case KindVar:
		return t.Sym == name
	case KindCompound:
		for _, arg := range t.Args {
			if arg.containsVar(name) {
				return true
			}
		}
	}
	return false
}

// rename returns the term with every variable suffixed; used to freshen
// rule variables per application so applications cannot capture each other.
func (t Term) rename(suffix string) Term {
	switch t.Kind {
	case KindVar:
		return Var(t.Sym + suffix)
	case KindCompound:
		args := make([]Term, len(t.Args))
		for i, arg := range t.Args {
			args[i] = arg.rename(suffix)
		}
		return Compound(t.Sym, args...)
	default:
		return t
	}
}

// Substitution maps variable names to terms. It is persistent in usage:
// Unify returns extended copies and never mutates the receiver.
type Substitution struct {
	bindings map[string]Term
}

// NewSubstitution returns an empty substitution.
func NewSubstitution() Substitution {
	return Substitution{bindings: map[string]Term{}}
}

// Walk resolves a term through the substitution until it is not a bound
// variable.
func (s Substitution) Walk(t Term) Term {
	for t.Kind == KindVar {
		bound, ok := s.bindings[t.Sym]
		if !ok {
			return t
		}
		t = bound
	}
	return t
}

// Resolve walks a term and then resolves compound arguments recursively.
func (s Substitution) Resolve(t Term) Term {
	t = s.Walk(t)
	if t.Kind != KindCompound {
		return t
	}
	args := make([]Term, len(t.Args))
	for i, arg := range t.Args {
		args[i] = s.Resolve(arg)
	}
	return Compound(t.Sym, args...)
}

// Lookup returns the resolved binding for a variable name.
func (s Substitution) Lookup(name string) (Term, bool) {
	t := s.Resolve(Var(name))
	if t.Kind == KindVar {
		return t, false
	}
	return t, true
}

func (s Substitution) clone() Substitution {
	next := Substitution{bindings: make(map[string]Term, len(s.bindings)+1)}
	for k, v := range s.bindings {
		next.bindings[k] = v
	}
	return next
}

// bind adds a variable binding, rejecting cyclic terms: a variable may
// never be bound to a term that syntactically contains it.
func (s Substitution) bind(name string, t Term) (Substitution, bool) {
	if s.Resolve(t).containsVar(name) {
		return Substitution{}, false
	}
	next := s.clone()
	next.bindings[name] = t
	return next, true
}

// Unify attempts to make two terms equal under an extension of the
// substitution. Failure is a normal outcome, not an error.
func (s Substitution) Unify(t1, t2 Term) (Substitution, bool) {
	t1 = s.Walk(t1)
	t2 = s.Walk(t2)

	switch {
	case t1.Kind == KindVar && t2.Kind == KindVar && t1.Sym == t2.Sym:
		return s, true
	case t1.Kind == KindVar:
		return s.bind(t1.Sym, t2)
	case t2.Kind == KindVar:
		return s.bind(t2.Sym, t1)
	case t1.Kind == KindAtom && t2.Kind == KindAtom:
		if t1.Sym == t2.Sym {
			return s, true
		}
	case t1.Kind == KindInt && t2.Kind == KindInt:
		if t1.Int == t2.Int {
			return s, true
		}
	case t1.Kind == KindCompound && t2.Kind == KindCompound:
		if t1.Sym != t2.Sym || len(t1.Args) != len(t2.Args) {
			return Substitution{}, false
		}
		current := s
		for i := range t1.Args {
			next, ok := current.Unify(t1.Args[i], t2.Args[i])
			if !ok {
				return Substitution{}, false
			}
			current = next
		}
		return current, true
	}
	return Substitution{}, false
}

// Fact is a ground relational record stored in the database.
type Fact struct {
	Relation string
	Args     []Term
}

// NewFact builds a fact from a relation name and terms.
func NewFact(relation string, args ...Term) Fact {
	return Fact{Relation: relation, Args: args}
}

// Key is the structural-equality key used by the fact set.
func (f Fact) Key() string {
	return f.term().String()
}

func (f Fact) term() Term {
	return Compound(f.Relation, f.Args...)
}

func (f Fact) String() string {
	parts := make([]string, len(f.Args))
	for i, arg := range f.Args {
		parts[i] = arg.String()
	}
	return fmt.Sprintf("%s(%s)", f.Relation, strings.Join(parts, ", "))
}
