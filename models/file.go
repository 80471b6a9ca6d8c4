package models

import (
	"time"
)

// File ist ein Datei-Artefakt eines Manuskripts. Checksum ist der Dedup-Key:
// zwei Dateien mit gleicher Checksum sind dasselbe Artefakt, egal wie sie heißen.
type File struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ManuscriptID uint   `json:"manuscript_id" gorm:"index:idx_files_checksum,unique;not null"`
	Checksum     string `json:"checksum" gorm:"index:idx_files_checksum,unique;size:128;not null"`

	DocumentType string `json:"document_type" gorm:"index"`
	Filename     string `json:"filename" gorm:"size:512"`
	StoragePath  string `json:"storage_path" gorm:"type:text"`
	SizeBytes    int64  `json:"size_bytes"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (File) TableName() string {
	return "manuscript_files"
}
