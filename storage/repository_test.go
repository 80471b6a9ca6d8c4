package storage

import (
	"testing"
	"time"

	"referee-hand/models"
)

func TestDedupFilesByChecksum(t *testing.T) {
	files := []models.File{
		{Filename: "ms.pdf", Checksum: "aaa", DocumentType: "manuscript"},
		{Filename: "ms-copy.pdf", Checksum: "aaa", DocumentType: "manuscript"},
		{Filename: "fig1.png", Checksum: "bbb", DocumentType: "figure"},
		{Filename: "no-checksum.bin", Checksum: ""},
	}

	out := DedupFilesByChecksum(files)
	if len(out) != 2 {
		t.Fatalf("files = %d, want 2", len(out))
	}
	// Bei gleicher Checksum gewinnt der zuerst gesehene Eintrag.
	if out[0].Filename != "ms.pdf" {
		t.Errorf("first = %q, want ms.pdf", out[0].Filename)
	}
	if out[1].Checksum != "bbb" {
		t.Errorf("second = %q, want bbb", out[1].Checksum)
	}
}

func TestDedupFilesByChecksumEmpty(t *testing.T) {
	if out := DedupFilesByChecksum(nil); out != nil {
		t.Errorf("nil input must stay nil, got %v", out)
	}
}

func stableSnapshot() *models.Manuscript {
	contacted := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	accepted := contacted.AddDate(0, 0, 2)
	return &models.Manuscript{
		JournalID:     "jgeo",
		ExternalID:    "MS-2024-017",
		Title:         "Mantle Plumes Revisited",
		CurrentStatus: "Pending Referee Assignments",
		Authors: []models.Author{
			{FullName: "K. Tanaka", Position: 0},
			{FullName: "L. Moreau", Position: 1},
		},
		Referees: []models.Referee{{
			ClusterKey:         "a.smith",
			CanonicalName:      "Anna Smith",
			PrimaryAddress:     "a.smith@x.edu",
			AlternateAddresses: []byte(`["personal@gmail.com"]`),
			Status:             "accepted",
			ContactedAt:        &contacted,
			AcceptedAt:         &accepted,
			ExpertiseTags: []models.ExpertiseTag{
				{Topic: "geochemistry", Confidence: 0.5, EvidenceCount: 1},
			},
		}},
		Files: []models.File{
			{Filename: "ms.pdf", Checksum: "aaa", DocumentType: "manuscript"},
		},
		AuditTrail: []models.AuditEvent{
			{Timestamp: contacted, EventText: "Manuscript submitted"},
		},
	}
}

// Zwei Läufe über identische Evidence dürfen die Version genau einmal erhöhen;
// ManuscriptUnchanged ist das Gate dafür im Update-Pfad des Upserts.
func TestManuscriptUnchangedIdenticalSnapshots(t *testing.T) {
	existing, snapshot := stableSnapshot(), stableSnapshot()
	if !ManuscriptUnchanged(existing, snapshot) {
		t.Error("identical snapshots must be a no-op")
	}

	// Postgres rendert JSONB anders als json.Marshal; der Vergleich muss über
	// die dekodierten Werte laufen.
	existing.Referees[0].AlternateAddresses = []byte(`[ "personal@gmail.com" ]`)
	if !ManuscriptUnchanged(existing, snapshot) {
		t.Error("JSONB formatting differences must not count as a change")
	}

	// Ein leerer Snapshot-Titel überschreibt den bekannten nicht.
	snapshot.Title = ""
	if !ManuscriptUnchanged(existing, snapshot) {
		t.Error("empty snapshot title must not count as a change")
	}

	// Snapshot-Files noch undedupliziert: der Vergleich muss selbst deduplizieren.
	snapshot.Files = append(snapshot.Files, models.File{Filename: "ms-copy.pdf", Checksum: "aaa", DocumentType: "manuscript"})
	if !ManuscriptUnchanged(existing, snapshot) {
		t.Error("duplicate-checksum snapshot files must not count as a change")
	}
}

func TestManuscriptUnchangedDetectsChanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(m *models.Manuscript)
	}{
		{"new title", func(m *models.Manuscript) { m.Title = "Revised Title" }},
		{"stage change", func(m *models.Manuscript) { m.CurrentStatus = "All Referees Assigned" }},
		{"author added", func(m *models.Manuscript) {
			m.Authors = append(m.Authors, models.Author{FullName: "P. Rivera", Position: 2})
		}},
		{"referee status advanced", func(m *models.Manuscript) { m.Referees[0].Status = "report_submitted" }},
		{"due date set", func(m *models.Manuscript) {
			due := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
			m.Referees[0].DueAt = &due
		}},
		{"new alternate address", func(m *models.Manuscript) {
			m.Referees[0].AlternateAddresses = []byte(`["personal@gmail.com","old@y.edu"]`)
		}},
		{"tag confidence moved", func(m *models.Manuscript) {
			m.Referees[0].ExpertiseTags[0].Confidence = 0.55
			m.Referees[0].ExpertiseTags[0].EvidenceCount = 2
		}},
		{"new file", func(m *models.Manuscript) {
			m.Files = append(m.Files, models.File{Filename: "fig1.png", Checksum: "bbb"})
		}},
		{"new audit entry", func(m *models.Manuscript) {
			m.AuditTrail = append(m.AuditTrail, models.AuditEvent{
				Timestamp: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
				EventText: "Reviewer invited",
			})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			existing, snapshot := stableSnapshot(), stableSnapshot()
			tc.mutate(snapshot)
			if ManuscriptUnchanged(existing, snapshot) {
				t.Error("change not detected, version bump would be skipped")
			}
		})
	}
}
