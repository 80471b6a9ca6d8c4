package models

import (
	"time"
)

// SourceKind kennzeichnet die Herkunft eines Evidence-Events.
type SourceKind string

const (
	SourceEmail      SourceKind = "email"
	SourceScrapedRow SourceKind = "scraped_row"
	SourceAuditLog   SourceKind = "audit_log"
)

// Direction gibt an, in welche Richtung ein Event gelaufen ist.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionSystem   Direction = "system"
)

// Event ist die einheitliche, unveränderliche Evidence-Form, die alle
// Normalizer produzieren. Subject und Body dürfen leer sein; RawAddress und
// Timestamp sind Pflicht.
type Event struct {
	SourceKind     SourceKind `json:"source_kind"`
	Direction      Direction  `json:"direction"`
	RawAddress     string     `json:"raw_address"`
	RawDisplayName string     `json:"raw_display_name,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	Subject        string     `json:"subject,omitempty"`
	BodyText       string     `json:"body_text,omitempty"`
	ManuscriptHint string     `json:"manuscript_hint,omitempty"`

	// Topics sind optionale Fachgebiets-Angaben der Quelle (z.B. die
	// Expertise-Spalte einer gescrapten Gutachter-Tabelle).
	Topics []string `json:"topics,omitempty"`
}
