package services

import (
	"sort"
	"strings"
	"time"

	"referee-hand/models"
)

// MergeTimeline vereinigt heterogene Audit-Einträge zur kanonischen Timeline:
// Dedup über (timestamp, event_text), aufsteigend nach Timestamp sortiert.
// Bei gleichem Timestamp entscheidet der Text, damit die Reihenfolge über
// Läufe hinweg stabil bleibt.
func MergeTimeline(batches ...[]models.AuditEvent) []models.AuditEvent {
	seen := make(map[string]bool)
	var merged []models.AuditEvent
	for _, batch := range batches {
		for _, entry := range batch {
			entry.Timestamp = entry.Timestamp.UTC()
			entry.EventText = normalizeEventText(entry.EventText)
			if entry.EventText == "" {
				continue
			}
			key := AuditKey(entry)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, entry)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		}
		return merged[i].EventText < merged[j].EventText
	})
	return merged
}

// AuditKey ist der Dedup-Key eines Audit-Eintrags. Volle Timestamp-Präzision,
// damit der In-Memory-Merge genauso trennt wie der Unique Index der Tabelle.
func AuditKey(entry models.AuditEvent) string {
	return entry.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + normalizeEventText(entry.EventText)
}

// normalizeEventText kollabiert Whitespace, damit derselbe Eintrag aus zwei
// Quellen (Scrape vs. Log-Export) identisch dedupliziert.
func normalizeEventText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
