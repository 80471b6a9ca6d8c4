package models

import (
	"time"
)

// StatusLabel-Werte für Audit-Einträge, die nicht direkt aus der Quelle stammen.
const (
	AuditLabelAnomaly = "anomaly"
)

// AuditEvent ist ein Eintrag der kanonischen Manuskript-Timeline.
// Dedup-Key ist (manuscript_id, timestamp, event_text); die Tabelle ist append-only.
type AuditEvent struct {
	ID uint `json:"id" gorm:"primaryKey"`

	ManuscriptID uint      `json:"manuscript_id" gorm:"index:idx_audit_events_key,unique;not null"`
	Timestamp    time.Time `json:"timestamp" gorm:"index:idx_audit_events_key,unique;not null"`
	EventText    string    `json:"event_text" gorm:"index:idx_audit_events_key,unique;size:1024;not null"`

	StatusLabel string `json:"status_label,omitempty" gorm:"index"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (AuditEvent) TableName() string {
	return "audit_events"
}
