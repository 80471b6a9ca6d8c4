package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRulesNormalizesAddresses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
aliases:
  "A.Smith@Y.edu ": a.smith@x.edu
exclusions:
  - " Editor@Journal.org"
phrases:
  completion:
    - "report uploaded"
accepted_target:
  jgeo: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if got := rules.Aliases["a.smith@y.edu"]; got != "a.smith@x.edu" {
		t.Errorf("alias lookup = %q, want lowercased trimmed mapping", got)
	}
	if rules.Exclusions[0] != "editor@journal.org" {
		t.Errorf("exclusion = %q, want normalized", rules.Exclusions[0])
	}
	if len(rules.Phrases.Completion) != 1 {
		t.Errorf("completion phrases = %v", rules.Phrases.Completion)
	}
	if rules.TargetFor("jgeo", 2) != 3 {
		t.Errorf("TargetFor(jgeo) = %d, want override 3", rules.TargetFor("jgeo", 2))
	}
	if rules.TargetFor("other", 2) != 2 {
		t.Errorf("TargetFor(other) = %d, want fallback 2", rules.TargetFor("other", 2))
	}
}

func TestLoadRulesEmptyPath(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules.Aliases == nil || rules.AcceptedTarget == nil {
		t.Error("empty path must still yield usable maps")
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	if _, err := LoadRules("/does/not/exist.yaml"); err == nil {
		t.Error("missing rules file must be an error, not silently ignored")
	}
}
