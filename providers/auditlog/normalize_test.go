package auditlog

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"referee-hand/models"
	"referee-hand/providers"

	"go.uber.org/zap"
)

func TestNormalizeSeparateTimestamp(t *testing.T) {
	n := NewNormalizer(zap.NewNop())
	payload := `{"line": "Manuscript submitted", "timestamp": "2024-03-01 12:00:00", "label": "submission"}`

	ev, err := n.Normalize(json.RawMessage(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.BodyText != "Manuscript submitted" {
		t.Errorf("text = %q", ev.BodyText)
	}
	if ev.RawAddress != "" {
		t.Errorf("audit events must not carry an address, got %q", ev.RawAddress)
	}
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, want)
	}
	if ev.ManuscriptHint != "submission" {
		t.Errorf("label = %q", ev.ManuscriptHint)
	}
}

func TestNormalizePrefixedLine(t *testing.T) {
	n := NewNormalizer(zap.NewNop())
	cases := []struct {
		name string
		line string
	}{
		{"dash separator", `2024-03-01 12:00:00 - Referee invitation sent`},
		{"tab separator", "2024-03-01T12:00:00\tReferee invitation sent"},
		{"pipe separator", `2024-03-01 12:00:00 | Referee invitation sent`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, _ := json.Marshal(RawLine{Line: tc.line})
			ev, err := n.Normalize(payload)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if ev.BodyText != "Referee invitation sent" {
				t.Errorf("text = %q", ev.BodyText)
			}
			if ev.Timestamp.IsZero() {
				t.Error("timestamp not parsed from prefix")
			}
		})
	}
}

func TestNormalizeRejections(t *testing.T) {
	n := NewNormalizer(zap.NewNop())
	cases := []struct {
		name    string
		payload string
	}{
		{"no timestamp anywhere", `{"line": "just text without prefix"}`},
		{"empty text after prefix", `{"line": "", "timestamp": "2024-03-01"}`},
		{"broken timestamp", `{"line": "x", "timestamp": "around noon"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(json.RawMessage(tc.payload))
			var nerr *providers.NormalizationError
			if !errors.As(err, &nerr) {
				t.Fatalf("error = %v, want *providers.NormalizationError", err)
			}
		})
	}
}

func TestAsAuditEvent(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := AsAuditEvent(&models.Event{Timestamp: ts, BodyText: "Reminder sent", ManuscriptHint: "reminder"})
	if !entry.Timestamp.Equal(ts) || entry.EventText != "Reminder sent" || entry.StatusLabel != "reminder" {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
}
