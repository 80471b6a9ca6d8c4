package storage

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"referee-hand/models"
)

// ErrNotFound wird auf dem Lesepfad geliefert, wenn kein Manuskript zum
// Natural Key existiert.
var ErrNotFound = errors.New("manuscript not found")

// Repository ist die idempotente Persistenzschicht. Upsert ist beliebig oft
// mit logisch gleichen Snapshots aufrufbar und hinterlässt genau eine Zeile
// pro Natural Key.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRepository(db *gorm.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// ManuscriptFilter sind die Filter des Query-Endpoints.
type ManuscriptFilter struct {
	JournalID     string `json:"journal_id"`
	CurrentStatus string `json:"current_status"`
	Limit         int    `json:"limit"`
}

// withChildren lädt alle Child-Collections eines Manuskripts mit.
func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Authors").
		Preload("Referees").
		Preload("Referees.ExpertiseTags").
		Preload("Files").
		Preload("AuditTrail")
}

// Get lädt ein Manuskript mit allen Child-Collections über den Natural Key.
func (r *Repository) Get(ctx context.Context, journalID, externalID string) (*models.Manuscript, error) {
	var m models.Manuscript
	err := withChildren(r.db.WithContext(ctx)).
		Where("journal_id = ? AND external_id = ?", journalID, externalID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Query listet Manuskripte nach Filter, neueste zuerst.
func (r *Repository) Query(ctx context.Context, filter ManuscriptFilter) ([]models.Manuscript, error) {
	query := r.db.WithContext(ctx).Model(&models.Manuscript{})
	if filter.JournalID != "" {
		query = query.Where("journal_id = ?", filter.JournalID)
	}
	if filter.CurrentStatus != "" {
		query = query.Where("current_status = ?", filter.CurrentStatus)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var manuscripts []models.Manuscript
	err := query.Order("updated_at desc").Find(&manuscripts).Error
	return manuscripts, err
}

// Upsert persistiert einen Snapshot als eine Transaktion: Manuskript-Zeile per
// Natural Key (Insert mit Version 1 oder Update mit Version+1), Authors /
// Referees / Files wholesale ersetzt (Files vorher per Checksum dedupliziert),
// Audit-Einträge inkrementell eingefügt. Ein Natural-Key-Konflikt beim Insert
// wird auf den Update-Pfad geroutet, nie als Fehler gemeldet. Ein logisch
// unveränderter Snapshot ist ein No-op: zwei Läufe über identische Evidence
// erhöhen die Version genau einmal.
func (r *Repository) Upsert(ctx context.Context, snapshot *models.Manuscript) (*models.Manuscript, error) {
	if snapshot.JournalID == "" || snapshot.ExternalID == "" {
		return nil, errors.New("manuscript natural key incomplete")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Manuscript
		err := withChildren(tx).
			Where("journal_id = ? AND external_id = ?", snapshot.JournalID, snapshot.ExternalID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := models.Manuscript{
				JournalID:     snapshot.JournalID,
				ExternalID:    snapshot.ExternalID,
				Title:         snapshot.Title,
				CurrentStatus: snapshot.CurrentStatus,
				Version:       1,
			}
			// Konflikt mit parallelem Insert → Update-Pfad, kein Fehler.
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "journal_id"}, {Name: "external_id"}},
				DoUpdates: clause.Assignments(map[string]any{
					"title":          row.Title,
					"current_status": row.CurrentStatus,
					"version":        gorm.Expr("manuscripts.version + 1"),
					"updated_at":     gorm.Expr("NOW()"),
				}),
			}).Create(&row).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if ManuscriptUnchanged(&existing, snapshot) {
				// Kein Write, keine Versionserhöhung.
				return nil
			}
			updates := map[string]any{
				"current_status": snapshot.CurrentStatus,
				"version":        existing.Version + 1,
			}
			// Ein leerer Titel überschreibt keinen bekannten.
			if snapshot.Title != "" {
				updates["title"] = snapshot.Title
			}
			if err := tx.Model(&models.Manuscript{}).
				Where("id = ?", existing.ID).
				Updates(updates).Error; err != nil {
				return err
			}
		}

		// ID der (jetzt sicher vorhandenen) Zeile nachladen.
		var parent models.Manuscript
		if err := tx.Where("journal_id = ? AND external_id = ?", snapshot.JournalID, snapshot.ExternalID).
			First(&parent).Error; err != nil {
			return err
		}

		if err := r.replaceChildren(tx, parent.ID, snapshot); err != nil {
			return err
		}
		return r.insertAuditEvents(tx, parent.ID, snapshot.AuditTrail)
	})
	if err != nil {
		return nil, err
	}

	return r.Get(ctx, snapshot.JournalID, snapshot.ExternalID)
}

// replaceChildren ersetzt Authors, Referees und Files wholesale durch den
// Snapshot. Audit-Einträge laufen bewusst NICHT über diesen Pfad: die Timeline
// ist append-only und würde sonst Geschichte verlieren.
func (r *Repository) replaceChildren(tx *gorm.DB, manuscriptID uint, snapshot *models.Manuscript) error {
	// Expertise-Tags hängen an Referees; erst die Tags, dann die Referees weg.
	if err := tx.Where("referee_id IN (?)",
		tx.Model(&models.Referee{}).Select("id").Where("manuscript_id = ?", manuscriptID),
	).Delete(&models.ExpertiseTag{}).Error; err != nil {
		return err
	}
	for _, model := range []any{&models.Author{}, &models.Referee{}, &models.File{}} {
		if err := tx.Where("manuscript_id = ?", manuscriptID).Delete(model).Error; err != nil {
			return err
		}
	}

	for i := range snapshot.Authors {
		author := snapshot.Authors[i]
		author.ID = 0
		author.ManuscriptID = manuscriptID
		if err := tx.Create(&author).Error; err != nil {
			return err
		}
	}
	for i := range snapshot.Referees {
		referee := snapshot.Referees[i]
		referee.ID = 0
		referee.ManuscriptID = manuscriptID
		for j := range referee.ExpertiseTags {
			referee.ExpertiseTags[j].ID = 0
			referee.ExpertiseTags[j].RefereeID = 0
		}
		if err := tx.Create(&referee).Error; err != nil {
			return err
		}
	}
	for _, file := range DedupFilesByChecksum(snapshot.Files) {
		file.ID = 0
		file.ManuscriptID = manuscriptID
		if err := tx.Create(&file).Error; err != nil {
			return err
		}
	}
	return nil
}

// insertAuditEvents fügt neue Timeline-Einträge ein; bereits vorhandene
// (timestamp, event_text)-Keys werden still übersprungen.
func (r *Repository) insertAuditEvents(tx *gorm.DB, manuscriptID uint, entries []models.AuditEvent) error {
	for _, entry := range entries {
		entry.ID = 0
		entry.ManuscriptID = manuscriptID
		entry.Timestamp = entry.Timestamp.UTC()
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "manuscript_id"}, {Name: "timestamp"}, {Name: "event_text"}},
			DoNothing: true,
		}).Create(&entry).Error; err != nil {
			return err
		}
	}
	return nil
}

// ManuscriptUnchanged meldet, ob der Snapshot gegenüber der persistierten Zeile
// keine logische Änderung trägt: gleicher Titel (leer überschreibt nicht),
// gleicher Status, gleiche Authors/Referees/Files und keine neuen
// Timeline-Einträge. Nur dann darf der Upsert die Version unberührt lassen.
func ManuscriptUnchanged(existing, snapshot *models.Manuscript) bool {
	if snapshot.Title != "" && snapshot.Title != existing.Title {
		return false
	}
	if snapshot.CurrentStatus != existing.CurrentStatus {
		return false
	}
	if !authorsEqual(existing.Authors, snapshot.Authors) {
		return false
	}
	if !refereesEqual(existing.Referees, snapshot.Referees) {
		return false
	}
	if !filesEqual(existing.Files, DedupFilesByChecksum(snapshot.Files)) {
		return false
	}
	return auditCovered(existing.AuditTrail, snapshot.AuditTrail)
}

func authorsEqual(a, b []models.Author) bool {
	if len(a) != len(b) {
		return false
	}
	byPosition := func(list []models.Author) []models.Author {
		out := make([]models.Author, len(list))
		copy(out, list)
		sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
		return out
	}
	a, b = byPosition(a), byPosition(b)
	for i := range a {
		if a[i].FullName != b[i].FullName || a[i].Position != b[i].Position {
			return false
		}
	}
	return true
}

func refereesEqual(a, b []models.Referee) bool {
	if len(a) != len(b) {
		return false
	}
	byKey := make(map[string]models.Referee, len(a))
	for _, ref := range a {
		byKey[ref.ClusterKey] = ref
	}
	for _, ref := range b {
		have, ok := byKey[ref.ClusterKey]
		if !ok {
			return false
		}
		if have.CanonicalName != ref.CanonicalName ||
			have.PrimaryAddress != ref.PrimaryAddress ||
			have.Status != ref.Status {
			return false
		}
		// JSONB kommt aus Postgres anders formatiert zurück als aus
		// json.Marshal; Vergleich deshalb über die dekodierten Werte.
		if !stringListEqual(have.AlternateAddresses, ref.AlternateAddresses) ||
			!historyEqual(have.StatusHistory, ref.StatusHistory) {
			return false
		}
		if !timePtrEqual(have.ContactedAt, ref.ContactedAt) ||
			!timePtrEqual(have.AcceptedAt, ref.AcceptedAt) ||
			!timePtrEqual(have.DeclinedAt, ref.DeclinedAt) ||
			!timePtrEqual(have.CompletedAt, ref.CompletedAt) ||
			!timePtrEqual(have.DueAt, ref.DueAt) {
			return false
		}
		if !tagsEqual(have.ExpertiseTags, ref.ExpertiseTags) {
			return false
		}
	}
	return true
}

func filesEqual(a, b []models.File) bool {
	if len(a) != len(b) {
		return false
	}
	byChecksum := make(map[string]models.File, len(a))
	for _, f := range a {
		byChecksum[f.Checksum] = f
	}
	for _, f := range b {
		have, ok := byChecksum[f.Checksum]
		if !ok || have.DocumentType != f.DocumentType || have.Filename != f.Filename ||
			have.StoragePath != f.StoragePath || have.SizeBytes != f.SizeBytes {
			return false
		}
	}
	return true
}

func tagsEqual(a, b []models.ExpertiseTag) bool {
	if len(a) != len(b) {
		return false
	}
	byTopic := make(map[string]models.ExpertiseTag, len(a))
	for _, tag := range a {
		byTopic[tag.Topic] = tag
	}
	for _, tag := range b {
		have, ok := byTopic[tag.Topic]
		if !ok || have.EvidenceCount != tag.EvidenceCount || have.Confidence != tag.Confidence {
			return false
		}
	}
	return true
}

// auditCovered meldet, ob jeder Snapshot-Eintrag schon auf der persistierten
// Timeline liegt; der Key entspricht dem Unique Index (timestamp, event_text).
func auditCovered(existing, snapshot []models.AuditEvent) bool {
	seen := make(map[string]bool, len(existing))
	for _, entry := range existing {
		seen[auditEntryKey(entry)] = true
	}
	for _, entry := range snapshot {
		if !seen[auditEntryKey(entry)] {
			return false
		}
	}
	return true
}

func auditEntryKey(entry models.AuditEvent) string {
	return entry.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + entry.EventText
}

func stringListEqual(a, b []byte) bool {
	var av, bv []string
	_ = json.Unmarshal(a, &av)
	_ = json.Unmarshal(b, &bv)
	return reflect.DeepEqual(av, bv)
}

func historyEqual(a, b []byte) bool {
	var av, bv []models.StatusChange
	_ = json.Unmarshal(a, &av)
	_ = json.Unmarshal(b, &bv)
	if len(av) != len(bv) {
		return false
	}
	for i := range av {
		if av[i].Status != bv[i].Status || av[i].Evidence != bv[i].Evidence ||
			!av[i].DecidedAt.Equal(bv[i].DecidedAt) {
			return false
		}
	}
	return true
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// DedupFilesByChecksum behält pro Checksum genau eine Datei; die erste gewinnt.
func DedupFilesByChecksum(files []models.File) []models.File {
	seen := make(map[string]bool, len(files))
	var out []models.File
	for _, f := range files {
		if f.Checksum == "" || seen[f.Checksum] {
			continue
		}
		seen[f.Checksum] = true
		out = append(out, f)
	}
	return out
}

// AttachFile hängt ein Datei-Artefakt an ein Manuskript; gleiche Checksum ist
// ein No-op.
func (r *Repository) AttachFile(ctx context.Context, journalID, externalID string, file models.File) error {
	m, err := r.Get(ctx, journalID, externalID)
	if err != nil {
		return err
	}
	file.ID = 0
	file.ManuscriptID = m.ID
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "manuscript_id"}, {Name: "checksum"}},
		DoNothing: true,
	}).Create(&file).Error
}

// SaveEvidence legt einen Roh-Datensatz in der Evidence-Inbox ab. Liefert
// false, wenn der Fingerprint für dieses Manuskript schon bekannt war.
func (r *Repository) SaveEvidence(ctx context.Context, record *models.EvidenceRecord) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "journal_id"}, {Name: "external_id"}, {Name: "fingerprint"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// EvidenceFor lädt die komplette Evidence-Inbox eines Manuskripts.
func (r *Repository) EvidenceFor(ctx context.Context, key models.ManuscriptKey) ([]models.EvidenceRecord, error) {
	var records []models.EvidenceRecord
	err := r.db.WithContext(ctx).
		Where("journal_id = ? AND external_id = ?", key.JournalID, key.ExternalID).
		Order("received_at asc, id asc").
		Find(&records).Error
	return records, err
}

// DistinctKeys liefert alle Manuskript-Keys, für die Evidence vorliegt.
func (r *Repository) DistinctKeys(ctx context.Context) ([]models.ManuscriptKey, error) {
	var keys []models.ManuscriptKey
	err := r.db.WithContext(ctx).
		Model(&models.EvidenceRecord{}).
		Select("DISTINCT journal_id, external_id").
		Scan(&keys).Error
	return keys, err
}
