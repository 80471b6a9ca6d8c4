package models

import (
	"time"
)

// Manuscript repräsentiert den kanonischen, deduplizierten Zustand eines Manuskripts.
// Natural Key ist (journal_id, external_id); Version wächst bei jedem erfolgreichen Write.
type Manuscript struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	JournalID  string `json:"journal_id" gorm:"index:idx_manuscripts_natural_key,unique;size:128;not null"`
	ExternalID string `json:"external_id" gorm:"index:idx_manuscripts_natural_key,unique;size:128;not null"`

	Title         string `json:"title" gorm:"type:text"`
	CurrentStatus string `json:"current_status" gorm:"index"`

	// Optimistic Concurrency: wird bei jedem Upsert inkrementiert.
	Version int `json:"version" gorm:"not null;default:0"`

	Authors    []Author     `json:"authors,omitempty" gorm:"foreignKey:ManuscriptID"`
	Referees   []Referee    `json:"referees,omitempty" gorm:"foreignKey:ManuscriptID"`
	Files      []File       `json:"files,omitempty" gorm:"foreignKey:ManuscriptID"`
	AuditTrail []AuditEvent `json:"audit_trail,omitempty" gorm:"foreignKey:ManuscriptID"`
}

// TableName gibt explizit den Tabellennamen an.
func (Manuscript) TableName() string {
	return "manuscripts"
}

// ManuscriptKey ist der Natural Key eines Manuskripts.
type ManuscriptKey struct {
	JournalID  string `json:"journal_id"`
	ExternalID string `json:"external_id"`
}
