package kanren

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleError reports a malformed rule rejected at load time.
type RuleError struct {
	Rule   string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q: %s", e.Rule, e.Reason)
}

// validateRule enforces the termination restrictions: every head variable
// must occur in a positive body predicate (range restriction), and heads
// may not contain function symbols.
func validateRule(r Rule) error {
	if r.Name == "" {
		return &RuleError{Rule: "(unnamed)", Reason: "rule needs a name"}
	}
	if r.Head.Relation == "" {
		return &RuleError{Rule: r.Name, Reason: "head needs a relation"}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return &RuleError{Rule: r.Name, Reason: "confidence must be in [0,1]"}
	}

	for _, arg := range r.Head.Args {
		if arg.Kind == KindCompound {
			return &RuleError{Rule: r.Name, Reason: "head must not contain function symbols"}
		}
	}

	bodyVars := make(map[string]bool)
	for _, item := range r.Body {
		if item.Pred == nil {
			continue
		}
		for _, arg := range item.Pred.Args {
			collectVars(arg, bodyVars)
		}
	}
	for _, arg := range r.Head.Args {
		if arg.Kind == KindVar && !bodyVars[arg.Sym] {
			return &RuleError{Rule: r.Name, Reason: fmt.Sprintf("head variable %s unbound by body (range restriction)", arg.Sym)}
		}
	}

	for _, item := range r.Body {
		switch item.Builtin {
		case "":
			if item.Pred == nil {
				return &RuleError{Rule: r.Name, Reason: "empty body conjunct"}
			}
		case "not":
			if item.Negated == nil {
				return &RuleError{Rule: r.Name, Reason: "not requires a predicate"}
			}
		case "less_than", "distinct":
			if len(item.Args) != 2 {
				return &RuleError{Rule: r.Name, Reason: item.Builtin + " requires two arguments"}
			}
		default:
			return &RuleError{Rule: r.Name, Reason: "unknown built-in " + item.Builtin}
		}
	}
	return nil
}

func collectVars(t Term, into map[string]bool) {
	switch t.Kind {
	case KindVar:
		into[t.Sym] = true
	case KindCompound:
		for _, arg := range t.Args {
			collectVars(arg, into)
		}
	}
}

// ruleSpec is the YAML shape of one catalogue rule.
type ruleSpec struct {
	Name       string     `yaml:"name"`
	Confidence float64    `yaml:"confidence"`
	Priority   int        `yaml:"priority"`
	Tags       []string   `yaml:"tags"`
	Head       termSpec   `yaml:"head"`
	Body       []bodySpec `yaml:"body"`
}

type termSpec struct {
	Relation string    `yaml:"relation"`
	Args     []argSpec `yaml:"args"`
}

type bodySpec struct {
	Relation string    `yaml:"relation,omitempty"`
	Args     []argSpec `yaml:"args,omitempty"`
	Builtin  string    `yaml:"builtin,omitempty"`
	Not      *termSpec `yaml:"not,omitempty"`
}

type argSpec struct {
	Var  string `yaml:"var,omitempty"`
	Atom string `yaml:"atom,omitempty"`
	Int  *int64 `yaml:"int,omitempty"`
}

func (a argSpec) term() (Term, error) {
	switch {
	case a.Var != "":
		return Var(a.Var), nil
	case a.Int != nil:
		return Int(*a.Int), nil
	case a.Atom != "":
		return Atom(a.Atom), nil
	}
	return Term{}, fmt.Errorf("argument needs var, atom, or int")
}

func (t termSpec) predicate() (Predicate, error) {
	args := make([]Term, len(t.Args))
	for i, a := range t.Args {
		term, err := a.term()
		if err != nil {
			return Predicate{}, err
		}
		args[i] = term
	}
	return Pred(t.Relation, args...), nil
}

// LoadRuleFile parses a declarative YAML rule catalogue and validates every
// rule. Any malformed entry aborts the load: the engine never runs with a
// partial catalogue.
func LoadRuleFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule catalogue %s: %w", path, err)
	}
	var specs []ruleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parsing rule catalogue %s: %w", path, err)
	}

	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		rule, err := spec.rule()
		if err != nil {
			return nil, err
		}
		if err := validateRule(rule); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s ruleSpec) rule() (Rule, error) {
	head, err := s.Head.predicate()
	if err != nil {
		return Rule{}, &RuleError{Rule: s.Name, Reason: err.Error()}
	}
	body := make([]BodyItem, 0, len(s.Body))
	for _, b := range s.Body {
		switch {
		case b.Not != nil:
			p, err := b.Not.predicate()
			if err != nil {
				return Rule{}, &RuleError{Rule: s.Name, Reason: err.Error()}
			}
			body = append(body, Not(p))
		case b.Builtin != "":
			args := make([]Term, len(b.Args))
			for i, a := range b.Args {
				term, err := a.term()
				if err != nil {
					return Rule{}, &RuleError{Rule: s.Name, Reason: err.Error()}
				}
				args[i] = term
			}
			body = append(body, BodyItem{Builtin: b.Builtin, Args: args})
		default:
			p, err := termSpec{Relation: b.Relation, Args: b.Args}.predicate()
			if err != nil {
				return Rule{}, &RuleError{Rule: s.Name, Reason: err.Error()}
			}
			body = append(body, Body(p))
		}
	}
	return Rule{
		Name:       s.Name,
		Head:       head,
		Body:       body,
		Confidence: s.Confidence,
		Priority:   s.Priority,
		Tags:       s.Tags,
	}, nil
}
