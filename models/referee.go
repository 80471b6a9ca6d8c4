package models

import (
	"time"

	"gorm.io/datatypes"
)

// Referee-Status in aufsteigender Ordnung; Declined und ReportSubmitted sind
// terminal für einen Review-Zyklus.
const (
	StatusUnknown         = "unknown"
	StatusContacted       = "contacted"
	StatusDeclined        = "declined"
	StatusAccepted        = "accepted"
	StatusReportSubmitted = "report_submitted"
)

// StatusRank ordnet die Status für den Monotonie-Vergleich. Declined und
// Accepted liegen auf derselben Stufe (alternative Ausgänge der Einladung).
func StatusRank(status string) int {
	switch status {
	case StatusContacted:
		return 1
	case StatusDeclined, StatusAccepted:
		return 2
	case StatusReportSubmitted:
		return 3
	default:
		return 0
	}
}

// Referee ist der kanonische Gutachter-Datensatz pro Manuskript. ClusterKey ist
// der normalisierte Mailbox-Username nach Alias-Substitution und bildet mit dem
// Manuskript den Natural Key.
type Referee struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ManuscriptID uint   `json:"manuscript_id" gorm:"index:idx_referees_cluster,unique;not null"`
	ClusterKey   string `json:"cluster_key" gorm:"index:idx_referees_cluster,unique;size:256;not null"`

	CanonicalName      string         `json:"canonical_name"`
	PrimaryAddress     string         `json:"primary_address" gorm:"size:320"`
	AlternateAddresses datatypes.JSON `json:"alternate_addresses,omitempty" gorm:"type:jsonb"`

	Status string `json:"status" gorm:"index;default:'unknown'"`
	// Append-only Historie als JSON-Liste von StatusChange-Einträgen.
	StatusHistory datatypes.JSON `json:"status_history,omitempty" gorm:"type:jsonb"`

	ContactedAt *time.Time `json:"contacted_date,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_date,omitempty"`
	DeclinedAt  *time.Time `json:"declined_date,omitempty"`
	CompletedAt *time.Time `json:"completed_date,omitempty"`
	DueAt       *time.Time `json:"due_date,omitempty"`

	ExpertiseTags []ExpertiseTag `json:"expertise_tags,omitempty" gorm:"foreignKey:RefereeID"`
}

// TableName gibt explizit den Tabellennamen an.
func (Referee) TableName() string {
	return "referees"
}

// StatusChange ist ein Eintrag der append-only Status-Historie.
type StatusChange struct {
	Status    string    `json:"status"`
	Evidence  string    `json:"evidence"`
	DecidedAt time.Time `json:"decided_at"`
}
