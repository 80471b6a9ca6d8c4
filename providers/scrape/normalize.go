// Package scrape normalisiert gescrapte Website-Tabellenzeilen in kanonische
// Events und extrahiert Manuskript-Metadaten (Titel, Autoren, Dateien).
package scrape

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"referee-hand/models"
	"referee-hand/providers"
)

// RawRow ist eine Zeile der Gutachter-Tabelle, wie der Scraper sie liefert.
// StatusText ist der freie Zellentext ("Report received 2024-03-01" o.ä.),
// über den die Status-Erkennung läuft.
type RawRow struct {
	RefereeName  string   `json:"referee_name"`
	RefereeEmail string   `json:"referee_email"`
	StatusText   string   `json:"status_text"`
	StatusDate   string   `json:"status_date"`
	Expertise    []string `json:"expertise"`

	// Manuskript-Metadaten, sofern die gescrapte Seite sie mitliefert.
	Title   string    `json:"title"`
	Authors []string  `json:"authors"`
	Files   []RawFile `json:"files"`
}

// RawFile ist ein Datei-Eintrag der gescrapten Seite.
type RawFile struct {
	DocumentType string `json:"document_type"`
	Filename     string `json:"filename"`
	Checksum     string `json:"checksum"`
	StoragePath  string `json:"storage_path"`
	SizeBytes    int64  `json:"size_bytes"`
}

// dateLayouts: Manuskript-Tracking-Seiten rendern Daten uneinheitlich.
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

type Normalizer struct {
	logger *zap.Logger
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Kind implementiert providers.Normalizer.
func (n *Normalizer) Kind() models.SourceKind {
	return models.SourceScrapedRow
}

// Normalize wandelt eine Tabellenzeile in genau ein Event um. Zeilen ohne
// Gutachter-Adresse werden abgelehnt; StatusText darf leer sein.
func (n *Normalizer) Normalize(payload json.RawMessage) (*models.Event, error) {
	var raw RawRow
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, providers.Reject(models.SourceScrapedRow, "payload", "invalid JSON: "+err.Error())
	}

	address := strings.ToLower(strings.TrimSpace(raw.RefereeEmail))
	if address == "" {
		return nil, providers.Reject(models.SourceScrapedRow, "referee_email", "empty")
	}
	if !strings.Contains(address, "@") {
		return nil, providers.Reject(models.SourceScrapedRow, "referee_email", "not an address: "+address)
	}

	ts, err := parseDate(raw.StatusDate)
	if err != nil {
		return nil, err
	}

	return &models.Event{
		SourceKind:     models.SourceScrapedRow,
		Direction:      models.DirectionSystem,
		RawAddress:     address,
		RawDisplayName: strings.TrimSpace(raw.RefereeName),
		Timestamp:      ts,
		BodyText:       strings.TrimSpace(raw.StatusText),
		Topics:         cleanTopics(raw.Expertise),
	}, nil
}

func cleanTopics(topics []string) []string {
	var out []string
	for _, t := range topics {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ExtractDetails liest die Manuskript-Metadaten derselben Zeile. Fehlende
// Metadaten sind kein Fehler; die Zeile trägt dann nur Gutachter-Evidence bei.
func ExtractDetails(payload json.RawMessage) (title string, authors []string, files []models.File) {
	var raw RawRow
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", nil, nil
	}
	for _, f := range raw.Files {
		if strings.TrimSpace(f.Checksum) == "" {
			continue
		}
		files = append(files, models.File{
			DocumentType: f.DocumentType,
			Filename:     f.Filename,
			Checksum:     strings.ToLower(strings.TrimSpace(f.Checksum)),
			StoragePath:  f.StoragePath,
			SizeBytes:    f.SizeBytes,
		})
	}
	for _, a := range raw.Authors {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	return strings.TrimSpace(raw.Title), authors, files
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &providers.NormalizationError{Source: models.SourceScrapedRow, Field: "status_date", Reason: "empty"}
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, &providers.NormalizationError{Source: models.SourceScrapedRow, Field: "status_date", Reason: "unparseable date " + value}
}
