package services

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"referee-hand/config"
	"referee-hand/models"
)

// Manuskript-Stages, abgeleitet aus den Gutachter-Statusen.
const (
	StageAllReportsReceived     = "All Reports Received"
	StagePartialReportsReceived = "Partial Reports Received"
	StageAllRefereesAssigned    = "All Referees Assigned"
	StagePendingAssignments     = "Pending Referee Assignments"
)

// PhraseRule ist eine Regel der Status-Erkennung: matcht eine der Phrasen im
// Subject oder Body, wird der Status zum Ergebnis. Die Regeln werden in
// Listen-Reihenfolge ausgewertet; die erste treffende gewinnt (Completion vor
// Acceptance, damit ein Gutachter, der beim Abgeben seine Zusage zitiert, nicht
// wieder auf Accepted zurückfällt).
type PhraseRule struct {
	Result  string
	Phrases []string
}

// defaultCompletionPhrases: "das Review ist fertig".
var defaultCompletionPhrases = []string{
	"report submitted",
	"report received",
	"my report is attached",
	"please find my report",
	"completed my review",
	"review completed",
	"review is complete",
	"submitted my review",
	"here is my review",
	"attached my review",
}

// defaultAcceptancePhrases: "ich übernehme das Review".
var defaultAcceptancePhrases = []string{
	"happy to review",
	"glad to review",
	"agree to review",
	"agreed to review",
	"willing to review",
	"i will review",
	"accept the invitation",
	"accepted the invitation",
	"accept your invitation",
	"invitation accepted",
}

// defaultDeclinePhrases: Absagen.
var defaultDeclinePhrases = []string{
	"decline the invitation",
	"declined the invitation",
	"must decline",
	"have to decline",
	"unable to review",
	"cannot review",
	"can not take on the review",
	"not able to review",
	"invitation declined",
}

// Anomaly ist ein StatusAnomaly-Vermerk: eine Korrektur oder ein verdächtiger
// Übergang, der angewendet, aber nicht stillschweigend geschluckt wird.
type Anomaly struct {
	At   time.Time
	Text string
}

// RefereeState ist der gefaltete Status eines Gutachters nach Verarbeitung
// seines Event-Streams.
type RefereeState struct {
	Status      string
	ContactedAt *time.Time
	AcceptedAt  *time.Time
	DeclinedAt  *time.Time
	CompletedAt *time.Time
	DueAt       *time.Time
	History     []models.StatusChange
	Anomalies   []Anomaly
}

// StatusMachine faltet einen zeitlich sortierten Event-Stream in einen
// monotonen Gutachter-Status. Der Status regrediert nie; die einzige erlaubte
// Korrektur ist Declined → Accepted/ReportSubmitted, und die wird als Anomalie
// vermerkt.
type StatusMachine struct {
	rules        []PhraseRule
	reviewWindow int
	logger       *zap.Logger
}

// NewStatusMachine baut die State Machine. Leere Phrase-Listen in den Rules
// fallen auf die eingebauten Defaults zurück; reviewWindowMonths ist das
// Review-Fenster ab Annahme.
func NewStatusMachine(rules *config.Rules, reviewWindowMonths int, logger *zap.Logger) *StatusMachine {
	completion := rules.Phrases.Completion
	if len(completion) == 0 {
		completion = defaultCompletionPhrases
	}
	acceptance := rules.Phrases.Acceptance
	if len(acceptance) == 0 {
		acceptance = defaultAcceptancePhrases
	}
	decline := rules.Phrases.Decline
	if len(decline) == 0 {
		decline = defaultDeclinePhrases
	}
	if reviewWindowMonths <= 0 {
		reviewWindowMonths = 3
	}
	return &StatusMachine{
		rules: []PhraseRule{
			{Result: models.StatusReportSubmitted, Phrases: lowerAll(completion)},
			{Result: models.StatusAccepted, Phrases: lowerAll(acceptance)},
			{Result: models.StatusDeclined, Phrases: lowerAll(decline)},
		},
		reviewWindow: reviewWindowMonths,
		logger:       logger,
	}
}

// Classify wertet die Phrase-Regeln top-down über Subject und Body aus.
func (m *StatusMachine) Classify(ev models.Event) (string, bool) {
	text := strings.ToLower(ev.Subject + "\n" + ev.BodyText)
	for _, rule := range m.rules {
		for _, phrase := range rule.Phrases {
			if strings.Contains(text, phrase) {
				return rule.Result, true
			}
		}
	}
	return "", false
}

// Fold verarbeitet die Events eines Gutachters in Timestamp-Reihenfolge.
func (m *StatusMachine) Fold(events []models.Event) *RefereeState {
	state := &RefereeState{Status: models.StatusUnknown}
	for _, ev := range events {
		m.Apply(state, ev)
	}
	return state
}

// Apply wendet genau ein Event auf den Zustand an.
func (m *StatusMachine) Apply(state *RefereeState, ev models.Event) {
	if result, matched := m.Classify(ev); matched {
		switch result {
		case models.StatusReportSubmitted:
			m.applyCompletion(state, ev)
		case models.StatusAccepted:
			m.applyAcceptance(state, ev)
		case models.StatusDeclined:
			m.applyDecline(state, ev)
		}
		return
	}

	// Kein Phrase-Match: nur der Erstkontakt ist noch ableitbar.
	if state.Status == models.StatusUnknown && ev.Direction == models.DirectionOutbound {
		ts := ev.Timestamp
		state.Status = models.StatusContacted
		state.ContactedAt = &ts
		state.History = append(state.History, change(models.StatusContacted, ev))
	}
}

func (m *StatusMachine) applyCompletion(state *RefereeState, ev models.Event) {
	if state.Status == models.StatusReportSubmitted {
		return
	}
	if state.Status == models.StatusDeclined {
		state.Anomalies = append(state.Anomalies, Anomaly{
			At:   ev.Timestamp,
			Text: "report submitted after recorded decline",
		})
	}
	ts := ev.Timestamp
	state.Status = models.StatusReportSubmitted
	state.CompletedAt = &ts
	// Abgeschlossener Zyklus hat kein Fälligkeitsdatum mehr.
	state.DueAt = nil
	state.History = append(state.History, change(models.StatusReportSubmitted, ev))
}

func (m *StatusMachine) applyAcceptance(state *RefereeState, ev models.Event) {
	switch state.Status {
	case models.StatusReportSubmitted, models.StatusAccepted:
		return
	case models.StatusDeclined:
		state.Anomalies = append(state.Anomalies, Anomaly{
			At:   ev.Timestamp,
			Text: "acceptance after recorded decline",
		})
	}
	ts := ev.Timestamp
	due := ts.AddDate(0, m.reviewWindow, 0)
	state.Status = models.StatusAccepted
	state.AcceptedAt = &ts
	state.DueAt = &due
	state.History = append(state.History, change(models.StatusAccepted, ev))
}

func (m *StatusMachine) applyDecline(state *RefereeState, ev models.Event) {
	switch state.Status {
	case models.StatusReportSubmitted, models.StatusDeclined:
		return
	case models.StatusAccepted:
		// Zusage steht; eine spätere Absage-Formulierung regrediert nicht.
		state.Anomalies = append(state.Anomalies, Anomaly{
			At:   ev.Timestamp,
			Text: "decline evidence after recorded acceptance, ignored",
		})
		return
	}
	ts := ev.Timestamp
	state.Status = models.StatusDeclined
	state.DeclinedAt = &ts
	state.History = append(state.History, change(models.StatusDeclined, ev))
}

// ManuscriptStage leitet die Manuskript-Stage aus den Gutachter-Statusen ab.
// acceptedTarget ist die journal-spezifische Mindestzahl akzeptierter Gutachter.
func ManuscriptStage(statuses []string, acceptedTarget int) string {
	if acceptedTarget <= 0 {
		acceptedTarget = 2
	}
	submitted, accepted := 0, 0
	for _, s := range statuses {
		switch s {
		case models.StatusReportSubmitted:
			submitted++
		case models.StatusAccepted:
			accepted++
		}
	}
	switch {
	case len(statuses) > 0 && submitted == len(statuses):
		return StageAllReportsReceived
	case submitted > 0:
		return StagePartialReportsReceived
	case accepted >= acceptedTarget:
		return StageAllRefereesAssigned
	default:
		return StagePendingAssignments
	}
}

func change(status string, ev models.Event) models.StatusChange {
	evidence := string(ev.SourceKind)
	if ev.Subject != "" {
		evidence += ": " + ev.Subject
	} else if ev.BodyText != "" {
		evidence += ": " + snippet(ev.BodyText, 80)
	}
	return models.StatusChange{
		Status:    status,
		Evidence:  evidence,
		DecidedAt: ev.Timestamp,
	}
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}

func lowerAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
