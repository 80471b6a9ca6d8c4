// Package auditlog normalisiert Plattform-Audit-Log-Zeilen in kanonische
// System-Events für die Manuskript-Timeline.
package auditlog

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"referee-hand/models"
	"referee-hand/providers"
)

// RawLine ist eine Audit-Log-Zeile. Entweder ist der Timestamp schon separat
// geliefert, oder die Zeile beginnt mit ihm ("2024-03-01 12:00:00 - text").
type RawLine struct {
	Line      string `json:"line"`
	Timestamp string `json:"timestamp"`
	Label     string `json:"label"`
}

var lineLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
	"02.01.2006 15:04",
}

// lineSeparators trennen Timestamp-Präfix und Text in einer kombinierten Zeile.
var lineSeparators = []string{" - ", "\t", " | ", "  "}

type Normalizer struct {
	logger *zap.Logger
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Kind implementiert providers.Normalizer.
func (n *Normalizer) Kind() models.SourceKind {
	return models.SourceAuditLog
}

// Normalize wandelt eine Log-Zeile in genau ein System-Event um. Audit-Events
// haben keine Gegenstelle; RawAddress bleibt leer und der Identity Resolver
// überspringt sie.
func (n *Normalizer) Normalize(payload json.RawMessage) (*models.Event, error) {
	var raw RawLine
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, providers.Reject(models.SourceAuditLog, "payload", "invalid JSON: "+err.Error())
	}

	text := strings.TrimSpace(raw.Line)
	tsValue := strings.TrimSpace(raw.Timestamp)

	if tsValue == "" {
		// Timestamp aus dem Zeilen-Präfix lösen.
		prefix, rest, ok := splitLine(text)
		if !ok {
			return nil, providers.Reject(models.SourceAuditLog, "line", "no timestamp prefix in "+text)
		}
		tsValue, text = prefix, rest
	}
	if text == "" {
		return nil, providers.Reject(models.SourceAuditLog, "line", "empty event text")
	}

	ts, err := parseTimestamp(tsValue)
	if err != nil {
		return nil, err
	}

	return &models.Event{
		SourceKind:     models.SourceAuditLog,
		Direction:      models.DirectionSystem,
		Timestamp:      ts,
		BodyText:       text,
		ManuscriptHint: strings.TrimSpace(raw.Label),
	}, nil
}

// AsAuditEvent baut aus einem normalisierten Log-Event den Timeline-Eintrag.
func AsAuditEvent(ev *models.Event) models.AuditEvent {
	return models.AuditEvent{
		Timestamp:   ev.Timestamp,
		EventText:   ev.BodyText,
		StatusLabel: ev.ManuscriptHint,
	}
}

func splitLine(line string) (prefix, rest string, ok bool) {
	for _, sep := range lineSeparators {
		if idx := strings.Index(line, sep); idx > 0 {
			return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+len(sep):]), true
		}
	}
	return "", "", false
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range lineLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, &providers.NormalizationError{Source: models.SourceAuditLog, Field: "timestamp", Reason: "unparseable timestamp " + value}
}
