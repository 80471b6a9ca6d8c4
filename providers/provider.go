package providers

import (
	"encoding/json"
	"fmt"

	"referee-hand/models"
)

// Normalizer ist das Interface, das jeder Evidence-Normalizer (E-Mail,
// Scraped Row, Audit-Log) implementieren muss. Ein Normalizer macht aus einem
// rohen Payload genau ein Event oder lehnt ihn mit einem NormalizationError ab.
type Normalizer interface {
	// Normalize wandelt einen rohen JSON-Payload in ein kanonisches Event um.
	Normalize(payload json.RawMessage) (*models.Event, error)

	// Kind gibt die Quelle zurück, für die dieser Normalizer zuständig ist.
	Kind() models.SourceKind
}

// NormalizationError beschreibt einen abgelehnten Roh-Datensatz. Fehlende
// optionale Felder sind kein Fehler, nur fehlerhaft vorhandene (kaputter
// Timestamp, leere Adresse).
type NormalizationError struct {
	Source models.SourceKind
	Field  string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: field %q: %s", e.Source, e.Field, e.Reason)
}

// Reject baut einen NormalizationError für ein einzelnes Feld.
func Reject(source models.SourceKind, field, reason string) error {
	return &NormalizationError{Source: source, Field: field, Reason: reason}
}
