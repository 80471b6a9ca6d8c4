package scrape

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"referee-hand/models"
	"referee-hand/providers"

	"go.uber.org/zap"
)

func TestNormalizeRow(t *testing.T) {
	n := NewNormalizer(zap.NewNop())
	payload := `{
		"referee_name": "Rivera, Paula",
		"referee_email": "P.Rivera@Uni.edu",
		"status_text": "Report received",
		"status_date": "02.01.2024",
		"expertise": [" Geochemistry ", "", "isotope dating"]
	}`

	ev, err := n.Normalize(json.RawMessage(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.Direction != models.DirectionSystem {
		t.Errorf("direction = %s, want system", ev.Direction)
	}
	if ev.RawAddress != "p.rivera@uni.edu" {
		t.Errorf("address = %q, want lowercased", ev.RawAddress)
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, want)
	}
	if len(ev.Topics) != 2 || ev.Topics[0] != "geochemistry" || ev.Topics[1] != "isotope dating" {
		t.Errorf("topics = %v, want cleaned lowercase list", ev.Topics)
	}
}

func TestNormalizeRowRejections(t *testing.T) {
	n := NewNormalizer(zap.NewNop())
	cases := []struct {
		name    string
		payload string
		field   string
	}{
		{"missing email", `{"referee_name":"X","status_date":"2024-01-01"}`, "referee_email"},
		{"not an address", `{"referee_email":"frontdesk","status_date":"2024-01-01"}`, "referee_email"},
		{"broken date", `{"referee_email":"r@uni.edu","status_date":"soonish"}`, "status_date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(json.RawMessage(tc.payload))
			var nerr *providers.NormalizationError
			if !errors.As(err, &nerr) {
				t.Fatalf("error = %v, want *providers.NormalizationError", err)
			}
			if nerr.Field != tc.field {
				t.Errorf("field = %q, want %q", nerr.Field, tc.field)
			}
		})
	}
}

func TestExtractDetails(t *testing.T) {
	payload := `{
		"title": "  Mantle Plumes Revisited ",
		"authors": ["K. Tanaka", " ", "L. Moreau"],
		"files": [
			{"document_type": "manuscript", "filename": "ms.pdf", "checksum": "ABCD12", "size_bytes": 1024},
			{"document_type": "figure", "filename": "fig1.png", "checksum": ""}
		]
	}`

	title, authors, files := ExtractDetails(json.RawMessage(payload))
	if title != "Mantle Plumes Revisited" {
		t.Errorf("title = %q", title)
	}
	if len(authors) != 2 {
		t.Fatalf("authors = %v, want blank entries dropped", authors)
	}
	if len(files) != 1 {
		t.Fatalf("files = %d, want entries without checksum dropped", len(files))
	}
	if files[0].Checksum != "abcd12" {
		t.Errorf("checksum = %q, want lowercased", files[0].Checksum)
	}
}

func TestExtractDetailsBadPayload(t *testing.T) {
	title, authors, files := ExtractDetails(json.RawMessage(`{`))
	if title != "" || authors != nil || files != nil {
		t.Errorf("bad payload must yield empty details, got %q %v %v", title, authors, files)
	}
}
