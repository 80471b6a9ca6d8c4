package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules bündelt die daten-getriebenen Regeln der Reconciliation: die
// Alias-Tabelle (Mailbox → Mailbox), Ausschluss-Adressen (Editoren, eigene
// Postfächer) und die Phrase-Sets der Status-Erkennung. Journale können die
// eingebauten Defaults per YAML-Datei überschreiben.
type Rules struct {
	// Aliases mappt eine bekannte Zweit-Adresse auf die Hauptadresse (many-to-one).
	Aliases map[string]string `yaml:"aliases"`

	// Exclusions sind Adressen, die nie als Gutachter geclustert werden.
	Exclusions []string `yaml:"exclusions"`

	Phrases PhraseRules `yaml:"phrases"`

	// AcceptedTarget überschreibt pro Journal-ID die Mindestzahl akzeptierter
	// Gutachter für die Stage "All Referees Assigned".
	AcceptedTarget map[string]int `yaml:"accepted_target"`
}

// PhraseRules sind die Phrase-Sets der Status-Erkennung. Leere Listen bedeuten:
// eingebaute Defaults verwenden.
type PhraseRules struct {
	Completion []string `yaml:"completion"`
	Acceptance []string `yaml:"acceptance"`
	Decline    []string `yaml:"decline"`
}

// LoadRules lädt die Regeldatei. Ein leerer Pfad liefert leere Regeln
// (nur eingebaute Defaults); eine fehlende oder kaputte Datei ist ein Fehler,
// damit ein Tippfehler im Pfad nicht stillschweigend Aliase verliert.
func LoadRules(path string) (*Rules, error) {
	rules := &Rules{
		Aliases:        map[string]string{},
		AcceptedTarget: map[string]int{},
	}
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}

	// Adressen normalisieren, damit Lookups case-insensitiv funktionieren.
	normalized := make(map[string]string, len(rules.Aliases))
	for from, to := range rules.Aliases {
		normalized[strings.ToLower(strings.TrimSpace(from))] = strings.ToLower(strings.TrimSpace(to))
	}
	rules.Aliases = normalized
	for i, a := range rules.Exclusions {
		rules.Exclusions[i] = strings.ToLower(strings.TrimSpace(a))
	}
	if rules.AcceptedTarget == nil {
		rules.AcceptedTarget = map[string]int{}
	}
	return rules, nil
}

// TargetFor liefert die akzeptierte Gutachter-Zielzahl für ein Journal.
func (r *Rules) TargetFor(journalID string, fallback int) int {
	if n, ok := r.AcceptedTarget[journalID]; ok && n > 0 {
		return n
	}
	return fallback
}
