package services

import (
	"testing"
	"time"

	"referee-hand/models"
)

func TestMergeTimelineDedupAndOrder(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(2 * time.Hour)

	merged := MergeTimeline(
		[]models.AuditEvent{
			{Timestamp: t1, EventText: "Reviewer invited"},
			{Timestamp: t0, EventText: "Manuscript submitted"},
		},
		[]models.AuditEvent{
			// exakter Re-Import: gleicher Key, anderes Whitespace
			{Timestamp: t1, EventText: "Reviewer   invited"},
			{Timestamp: t0, EventText: "Manuscript submitted"},
			{Timestamp: t0, EventText: "Files uploaded"},
		},
	)

	if len(merged) != 3 {
		t.Fatalf("merged = %d entries, want 3: %+v", len(merged), merged)
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Timestamp.Before(merged[i-1].Timestamp) {
			t.Fatalf("timeline not ordered at %d: %+v", i, merged)
		}
	}
	// Gleicher Timestamp: Text entscheidet deterministisch.
	if merged[0].EventText != "Files uploaded" || merged[1].EventText != "Manuscript submitted" {
		t.Errorf("tie-break order wrong: %q, %q", merged[0].EventText, merged[1].EventText)
	}
}

func TestMergeTimelineSkipsEmptyText(t *testing.T) {
	merged := MergeTimeline([]models.AuditEvent{
		{Timestamp: time.Now(), EventText: "   "},
	})
	if len(merged) != 0 {
		t.Errorf("empty event text must be dropped, got %+v", merged)
	}
}

func TestMergeTimelineKeepsSubSecondDistinctEvents(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	// Gleiche Sekunde, andere Nanos: die Tabelle hält beide, der Merge auch.
	merged := MergeTimeline([]models.AuditEvent{
		{Timestamp: ts, EventText: "Reminder sent"},
		{Timestamp: ts.Add(500 * time.Millisecond), EventText: "Reminder sent"},
	})
	if len(merged) != 2 {
		t.Errorf("merged = %d entries, want 2: %+v", len(merged), merged)
	}
}

func TestAuditKeyNormalizesWhitespace(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a := AuditKey(models.AuditEvent{Timestamp: ts, EventText: "Reviewer invited"})
	b := AuditKey(models.AuditEvent{Timestamp: ts, EventText: " Reviewer \t invited "})
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
}
