package models

// Author ist ein Autor eines Manuskripts, in Reihenfolge der Nennung.
type Author struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	ManuscriptID uint   `json:"manuscript_id" gorm:"index;not null"`
	FullName     string `json:"full_name" gorm:"size:512;not null"`
	Position     int    `json:"position"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Author) TableName() string {
	return "authors"
}
