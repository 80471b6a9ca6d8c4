package models

import (
	"time"
)

// ExpertiseTag ist ein konfidenz-gewichtetes Themen-Tag eines Gutachters.
// Confidence wird per exponentieller Glättung aktualisiert, nie gelöscht.
type ExpertiseTag struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UpdatedAt time.Time `json:"updated_at"`

	RefereeID uint   `json:"referee_id" gorm:"index:idx_expertise_topic,unique;not null"`
	Topic     string `json:"topic" gorm:"index:idx_expertise_topic,unique;size:256;not null"`

	Confidence    float64 `json:"confidence"`
	EvidenceCount int     `json:"evidence_count"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (ExpertiseTag) TableName() string {
	return "expertise_tags"
}
