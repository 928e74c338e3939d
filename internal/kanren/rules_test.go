package kanren

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRuleFile(t *testing.T) {
	path := writeRules(t, `
- name: risky_pair
  confidence: 0.8
  priority: 50
  head:
    relation: risky_pair
    args:
      - var: A
      - var: B
  body:
    - relation: weak_file
      args:
        - var: A
    - relation: weak_file
      args:
        - var: B
    - builtin: distinct
      args:
        - var: A
        - var: B
`)
	rules, err := LoadRuleFile(path)
	if err != nil {
		t.Fatalf("LoadRuleFile() error = %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	db := NewFactDB()
	db.Assert(NewFact("weak_file", Atom("a.rs")))
	db.Assert(NewFact("weak_file", Atom("b.rs")))
	for _, rule := range rules {
		if err := db.AddRule(rule); err != nil {
			t.Fatalf("AddRule() error = %v", err)
		}
	}
	db.ForwardChain()
	// Two distinct files yield both ordered pairs.
	if db.Count("risky_pair") != 2 {
		t.Fatalf("expected 2 risky_pair facts, got %d", db.Count("risky_pair"))
	}
}

func TestLoadRuleFileRejectsMalformedRule(t *testing.T) {
	path := writeRules(t, `
- name: bad
  head:
    relation: out
    args:
      - var: Unbound
  body:
    - relation: in
      args:
        - atom: x
`)
	_, err := LoadRuleFile(path)
	if err == nil {
		t.Fatal("range-restriction violation should fail the load")
	}
	if _, ok := err.(*RuleError); !ok {
		t.Fatalf("expected *RuleError, got %T: %v", err, err)
	}
}

func TestLoadRuleFileRejectsBadYAML(t *testing.T) {
	path := writeRules(t, "{{not yaml")
	if _, err := LoadRuleFile(path); err == nil {
		t.Fatal("malformed yaml should fail the load")
	}
}

func TestLoadRuleFileWithNot(t *testing.T) {
	path := writeRules(t, `
- name: unguarded
  confidence: 0.7
  head:
    relation: unguarded
    args:
      - var: F
  body:
    - relation: risky
      args:
        - var: F
    - not:
        relation: guarded
        args:
          - var: F
`)
	rules, err := LoadRuleFile(path)
	if err != nil {
		t.Fatalf("LoadRuleFile() error = %v", err)
	}

	db := NewFactDB()
	db.Assert(NewFact("risky", Atom("a.rs")))
	db.Assert(NewFact("risky", Atom("b.rs")))
	db.Assert(NewFact("guarded", Atom("b.rs")))
	for _, rule := range rules {
		db.MustAddRule(rule)
	}
	db.ForwardChain()
	if db.Count("unguarded") != 1 {
		t.Fatalf("expected only a.rs unguarded, got %d", db.Count("unguarded"))
	}
}
