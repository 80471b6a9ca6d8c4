package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"referee-hand/config"
	"referee-hand/models"
	"referee-hand/providers"
	"referee-hand/providers/auditlog"
	"referee-hand/providers/scrape"
	"referee-hand/storage"
)

// ReconcileService faltet die Evidence-Inbox pro Manuskript in den kanonischen
// Snapshot und persistiert ihn. Manuskripte sind unabhängig und laufen in einem
// begrenzten Worker-Pool parallel; innerhalb eines Manuskripts wird strikt
// sequentiell in Timestamp-Reihenfolge gefaltet.
type ReconcileService struct {
	Config *config.Config
	Rules  *config.Rules
	Repo   *storage.Repository
	Logger *zap.Logger

	machine     *StatusMachine
	normalizers map[models.SourceKind]providers.Normalizer

	// Optionale Zähler; nil-sicher.
	DroppedCounter prometheus.Counter
	AnomalyCounter prometheus.Counter
}

// NewReconcileService erstellt eine neue Instanz des ReconcileService.
func NewReconcileService(cfg *config.Config, rules *config.Rules, repo *storage.Repository, logger *zap.Logger, normalizers []providers.Normalizer) *ReconcileService {
	byKind := make(map[models.SourceKind]providers.Normalizer, len(normalizers))
	for _, n := range normalizers {
		byKind[n.Kind()] = n
	}
	return &ReconcileService{
		Config:      cfg,
		Rules:       rules,
		Repo:        repo,
		Logger:      logger,
		machine:     NewStatusMachine(rules, cfg.ReviewWindowMonths, logger),
		normalizers: byKind,
	}
}

// Reconcile faltet einen Event-Batch in den kanonischen Manuskript-Snapshot.
// Schreibt nichts; die Persistenz wird nur gelesen, um bekannte Identitäten
// (frühere Alternates, kanonische Namen, Expertise-Tags) zu seeden.
func (s *ReconcileService) Reconcile(ctx context.Context, key models.ManuscriptKey, events []models.Event) (*models.Manuscript, error) {
	log := s.Logger.With(zap.String("journal_id", key.JournalID), zap.String("external_id", key.ExternalID))

	var existing *models.Manuscript
	if s.Repo != nil {
		m, err := s.Repo.Get(ctx, key.JournalID, key.ExternalID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		existing = m
	}

	resolver := NewIdentityResolver(s.Rules, s.Config.OwnAddressList(), log)
	existingTags := map[string][]models.ExpertiseTag{}
	if existing != nil {
		for _, ref := range existing.Referees {
			resolver.Seed(ref.PrimaryAddress, ref.CanonicalName, decodeStrings(ref.AlternateAddresses))
			existingTags[ref.ClusterKey] = stripTagIDs(ref.ExpertiseTags)
		}
	}

	// Out-of-order-Anlieferung ist normal; vor dem Fold sortieren.
	sorted := make([]models.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	clusterEvents := map[string][]models.Event{}
	clusterTopics := map[string][]string{}
	var timeline []models.AuditEvent
	for _, ev := range sorted {
		if ev.SourceKind == models.SourceAuditLog {
			timeline = append(timeline, auditlog.AsAuditEvent(&ev))
			continue
		}
		if ev.RawAddress == "" {
			continue
		}
		cluster, ok := resolver.Resolve(ev.RawAddress, ev.RawDisplayName)
		if !ok {
			// Ausgeschlossene Adresse (Editor, eigenes Postfach) oder unparsebar.
			continue
		}
		clusterEvents[cluster.Key] = append(clusterEvents[cluster.Key], ev)
		clusterTopics[cluster.Key] = append(clusterTopics[cluster.Key], ev.Topics...)
	}

	var referees []models.Referee
	var statuses []string
	for _, cluster := range resolver.Clusters() {
		evs := clusterEvents[cluster.Key]
		if len(evs) == 0 {
			// Nur geseedet, keine neue Evidence: bestehenden Datensatz erhalten.
			if existing != nil {
				if kept, ok := keptReferee(existing, cluster.Key); ok {
					referees = append(referees, kept)
					statuses = append(statuses, kept.Status)
				}
			}
			continue
		}

		state := s.machine.Fold(evs)

		name, synthesized := cluster.CanonicalName()
		if synthesized {
			// AmbiguousIdentityWarning: Cluster bleibt bestehen, Name ist geraten.
			log.Warn("No plausible display name observed, synthesized from mailbox username",
				zap.String("cluster_key", cluster.Key),
				zap.String("name", name))
		}

		// Tags entstehen deterministisch aus der vollständigen Topic-Evidence
		// dieses Laufs; derselbe Evidence-Stand ergibt so dieselben Tags. Nur
		// ein Lauf ganz ohne Topics behält die persistierten Tags.
		var tags []models.ExpertiseTag
		for _, topic := range clusterTopics[cluster.Key] {
			tags = ObserveTopic(tags, topic)
		}
		if len(tags) == 0 {
			tags = existingTags[cluster.Key]
		}

		referee := models.Referee{
			ClusterKey:         cluster.Key,
			CanonicalName:      name,
			PrimaryAddress:     cluster.PrimaryAddress(),
			AlternateAddresses: encodeStrings(cluster.AlternateAddresses()),
			Status:             state.Status,
			StatusHistory:      encodeHistory(state.History),
			ContactedAt:        state.ContactedAt,
			AcceptedAt:         state.AcceptedAt,
			DeclinedAt:         state.DeclinedAt,
			CompletedAt:        state.CompletedAt,
			DueAt:              state.DueAt,
			ExpertiseTags:      tags,
		}
		referees = append(referees, referee)
		statuses = append(statuses, state.Status)

		for _, anomaly := range state.Anomalies {
			if s.AnomalyCounter != nil {
				s.AnomalyCounter.Inc()
			}
			log.Warn("Status anomaly",
				zap.String("referee", name),
				zap.String("detail", anomaly.Text),
				zap.Time("at", anomaly.At))
			// Anomalien landen auf der Timeline, nicht nur im Log.
			timeline = append(timeline, models.AuditEvent{
				Timestamp:   anomaly.At,
				EventText:   fmt.Sprintf("status anomaly [%s]: %s", name, anomaly.Text),
				StatusLabel: models.AuditLabelAnomaly,
			})
		}
	}

	snapshot := &models.Manuscript{
		JournalID:     key.JournalID,
		ExternalID:    key.ExternalID,
		CurrentStatus: ManuscriptStage(statuses, s.Rules.TargetFor(key.JournalID, s.Config.AcceptedRefereeTarget)),
		Referees:      referees,
		AuditTrail:    MergeTimeline(timeline),
	}
	if existing != nil {
		snapshot.Title = existing.Title
	}
	return snapshot, nil
}

// RunOne normalisiert die Evidence-Inbox eines Manuskripts, faltet sie und
// persistiert den Snapshot.
func (s *ReconcileService) RunOne(ctx context.Context, key models.ManuscriptKey) (*models.Manuscript, error) {
	log := s.Logger.With(zap.String("journal_id", key.JournalID), zap.String("external_id", key.ExternalID))

	records, err := s.Repo.EvidenceFor(ctx, key)
	if err != nil {
		return nil, err
	}

	var events []models.Event
	var title string
	var authors []string
	var files []models.File
	for _, record := range records {
		normalizer, ok := s.normalizers[models.SourceKind(record.SourceKind)]
		if !ok {
			log.Warn("No normalizer for source kind", zap.String("source_kind", record.SourceKind))
			continue
		}
		ev, err := normalizer.Normalize(json.RawMessage(record.Payload))
		if err != nil {
			// Kaputte Evidence wird verworfen, der Lauf geht weiter.
			if s.DroppedCounter != nil {
				s.DroppedCounter.Inc()
			}
			log.Warn("Dropping malformed evidence record",
				zap.Uint("record_id", record.ID),
				zap.Error(err))
			continue
		}
		events = append(events, *ev)

		if ev.SourceKind == models.SourceScrapedRow {
			rowTitle, rowAuthors, rowFiles := scrape.ExtractDetails(json.RawMessage(record.Payload))
			if rowTitle != "" {
				title = rowTitle
			}
			if len(rowAuthors) > 0 {
				authors = rowAuthors
			}
			files = append(files, rowFiles...)
		}
	}

	snapshot, err := s.Reconcile(ctx, key, events)
	if err != nil {
		return nil, err
	}
	if title != "" {
		snapshot.Title = title
	}
	for i, name := range authors {
		snapshot.Authors = append(snapshot.Authors, models.Author{FullName: name, Position: i})
	}
	snapshot.Files = storage.DedupFilesByChecksum(files)

	return s.Repo.Upsert(ctx, snapshot)
}

// RunAll rekonsiliiert alle Manuskripte, für die Evidence vorliegt, mit einem
// begrenzten Worker-Pool. Work wird per Natural Key partitioniert; kein
// Manuskript läuft in zwei Workern gleichzeitig. Ein Fehler auf einem
// Manuskript stoppt die anderen nicht.
func (s *ReconcileService) RunAll(ctx context.Context) (int, error) {
	keys, err := s.Repo.DistinctKeys(ctx)
	if err != nil {
		return 0, err
	}

	runID := uuid.NewString()
	log := s.Logger.With(zap.String("run_id", runID))
	log.Info("Starting reconciliation run", zap.Int("manuscripts", len(keys)))

	workers := s.Config.ReconcileWorkers
	if workers <= 0 {
		workers = 4
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	reconciled := 0
	semaphore := make(chan struct{}, workers)

	for _, key := range keys {
		if ctx.Err() != nil {
			// Abbruch zwischen Manuskripten ist sicher; jede Transaktion ist atomar.
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}

		go func(key models.ManuscriptKey) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if _, err := s.RunOne(ctx, key); err != nil {
				log.Error("Reconciliation failed for manuscript",
					zap.String("journal_id", key.JournalID),
					zap.String("external_id", key.ExternalID),
					zap.Error(err))
				return
			}
			mu.Lock()
			reconciled++
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	log.Info("Reconciliation run completed", zap.Int("reconciled", reconciled))
	return reconciled, nil
}

// keptReferee kopiert einen bestehenden Referee-Datensatz (ohne IDs) in den
// neuen Snapshot, wenn der aktuelle Lauf keine Evidence für ihn hat.
func keptReferee(existing *models.Manuscript, clusterKey string) (models.Referee, bool) {
	for _, ref := range existing.Referees {
		if ref.ClusterKey == clusterKey {
			kept := ref
			kept.ID = 0
			kept.ManuscriptID = 0
			kept.ExpertiseTags = stripTagIDs(ref.ExpertiseTags)
			return kept, true
		}
	}
	return models.Referee{}, false
}

func stripTagIDs(tags []models.ExpertiseTag) []models.ExpertiseTag {
	out := make([]models.ExpertiseTag, len(tags))
	copy(out, tags)
	for i := range out {
		out[i].ID = 0
		out[i].RefereeID = 0
	}
	return out
}

func encodeStrings(values []string) []byte {
	if len(values) == 0 {
		return nil
	}
	data, _ := json.Marshal(values)
	return data
}

func decodeStrings(data []byte) []string {
	var out []string
	_ = json.Unmarshal(data, &out)
	return out
}

func encodeHistory(history []models.StatusChange) []byte {
	if len(history) == 0 {
		return nil
	}
	data, _ := json.Marshal(history)
	return data
}
