package models

import (
	"time"

	"gorm.io/datatypes"
)

// EvidenceRecord ist die Roh-Inbox: ein unverarbeiteter Evidence-Datensatz, wie
// ihn ein Collaborator (Webmail-Abruf, Scraper, Audit-Log-Export) angeliefert hat.
// Fingerprint ist die Checksum des Payloads; Re-Ingestion desselben Datensatzes
// ist damit ein No-op.
type EvidenceRecord struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ReceivedAt time.Time `json:"received_at"`

	JournalID   string `json:"journal_id" gorm:"index:idx_evidence_fingerprint,unique;size:128;not null"`
	ExternalID  string `json:"external_id" gorm:"index:idx_evidence_fingerprint,unique;size:128;not null"`
	Fingerprint string `json:"fingerprint" gorm:"index:idx_evidence_fingerprint,unique;size:128;not null"`

	SourceKind string         `json:"source_kind" gorm:"index;size:32;not null"`
	Payload    datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (EvidenceRecord) TableName() string {
	return "evidence_records"
}
