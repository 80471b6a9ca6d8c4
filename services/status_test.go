package services

import (
	"testing"
	"time"

	"referee-hand/config"
	"referee-hand/models"

	"go.uber.org/zap"
)

func day(n int) time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func newTestMachine(t *testing.T) *StatusMachine {
	t.Helper()
	return NewStatusMachine(&config.Rules{}, 3, zap.NewNop())
}

func inbound(at time.Time, body string) models.Event {
	return models.Event{
		SourceKind: models.SourceEmail,
		Direction:  models.DirectionInbound,
		RawAddress: "a@x.edu",
		Timestamp:  at,
		BodyText:   body,
	}
}

func outbound(at time.Time) models.Event {
	return models.Event{
		SourceKind: models.SourceEmail,
		Direction:  models.DirectionOutbound,
		RawAddress: "a@x.edu",
		Timestamp:  at,
		Subject:    "Review invitation",
	}
}

func TestClassifyCompletionBeatsAcceptance(t *testing.T) {
	m := newTestMachine(t)
	ev := inbound(day(0), "I was happy to review this manuscript; please find my report attached.")
	status, matched := m.Classify(ev)
	if !matched {
		t.Fatal("expected a phrase match")
	}
	if status != models.StatusReportSubmitted {
		t.Errorf("completion must take precedence over acceptance, got %s", status)
	}
}

func TestFoldContactAcceptComplete(t *testing.T) {
	m := newTestMachine(t)
	state := m.Fold([]models.Event{
		outbound(day(0)),
		inbound(day(2), "I am happy to review this paper."),
		inbound(day(40), "Please find my report attached."),
	})

	if state.Status != models.StatusReportSubmitted {
		t.Fatalf("status = %s, want %s", state.Status, models.StatusReportSubmitted)
	}
	if state.ContactedAt == nil || !state.ContactedAt.Equal(day(0)) {
		t.Errorf("contacted_date = %v, want %v", state.ContactedAt, day(0))
	}
	if state.AcceptedAt == nil || !state.AcceptedAt.Equal(day(2)) {
		t.Errorf("accepted_date = %v, want %v", state.AcceptedAt, day(2))
	}
	if state.DueAt != nil {
		t.Errorf("due_date must be unset for a completed cycle, got %v", state.DueAt)
	}
	if state.CompletedAt == nil || !state.CompletedAt.Equal(day(40)) {
		t.Errorf("completed_date = %v, want %v", state.CompletedAt, day(40))
	}
	if len(state.Anomalies) != 0 {
		t.Errorf("unexpected anomalies: %v", state.Anomalies)
	}
}

func TestFoldDueDateAfterAcceptance(t *testing.T) {
	m := newTestMachine(t)
	state := m.Fold([]models.Event{
		outbound(day(0)),
		inbound(day(2), "I agree to review."),
	})
	if state.Status != models.StatusAccepted {
		t.Fatalf("status = %s, want %s", state.Status, models.StatusAccepted)
	}
	want := day(2).AddDate(0, 3, 0)
	if state.DueAt == nil || !state.DueAt.Equal(want) {
		t.Errorf("due_date = %v, want %v", state.DueAt, want)
	}
}

func TestFoldMonotonicity(t *testing.T) {
	m := newTestMachine(t)
	state := &RefereeState{Status: models.StatusUnknown}
	lastRank := models.StatusRank(state.Status)
	for _, ev := range []models.Event{
		outbound(day(0)),
		inbound(day(2), "I am willing to review."),
		outbound(day(5)),
		inbound(day(10), "no decision here, just a question"),
		inbound(day(40), "I have completed my review."),
		inbound(day(45), "happy to review"), // darf nicht mehr zurückstufen
	} {
		m.Apply(state, ev)
		rank := models.StatusRank(state.Status)
		if rank < lastRank {
			t.Fatalf("status regressed to %s after %q", state.Status, ev.BodyText)
		}
		lastRank = rank
	}
	if state.Status != models.StatusReportSubmitted {
		t.Errorf("final status = %s, want %s", state.Status, models.StatusReportSubmitted)
	}
}

func TestFoldReportAfterDeclineIsAnomaly(t *testing.T) {
	m := newTestMachine(t)
	state := m.Fold([]models.Event{
		outbound(day(0)),
		inbound(day(1), "Unfortunately I must decline the invitation."),
		inbound(day(30), "Report submitted via the online system."),
	})
	if state.Status != models.StatusReportSubmitted {
		t.Fatalf("status = %s, want %s (correction must apply)", state.Status, models.StatusReportSubmitted)
	}
	if len(state.Anomalies) != 1 {
		t.Fatalf("anomalies = %d, want 1", len(state.Anomalies))
	}
	if state.DeclinedAt == nil || !state.DeclinedAt.Equal(day(1)) {
		t.Errorf("declined_date = %v, want %v (history preserved)", state.DeclinedAt, day(1))
	}
}

func TestFoldDeclineAfterAcceptanceIgnored(t *testing.T) {
	m := newTestMachine(t)
	state := m.Fold([]models.Event{
		inbound(day(0), "I agree to review."),
		inbound(day(3), "My colleague is unable to review."),
	})
	if state.Status != models.StatusAccepted {
		t.Fatalf("status = %s, want %s", state.Status, models.StatusAccepted)
	}
	if len(state.Anomalies) != 1 {
		t.Errorf("anomalies = %d, want 1 (flagged, not applied)", len(state.Anomalies))
	}
}

func TestManuscriptStage(t *testing.T) {
	cases := []struct {
		name     string
		statuses []string
		target   int
		want     string
	}{
		{"no referees", nil, 2, StagePendingAssignments},
		{"one contacted", []string{models.StatusContacted}, 2, StagePendingAssignments},
		{"one accepted below target", []string{models.StatusAccepted, models.StatusContacted}, 2, StagePendingAssignments},
		{"two accepted", []string{models.StatusAccepted, models.StatusAccepted}, 2, StageAllRefereesAssigned},
		{"custom target", []string{models.StatusAccepted}, 1, StageAllRefereesAssigned},
		{"partial reports", []string{models.StatusReportSubmitted, models.StatusAccepted}, 2, StagePartialReportsReceived},
		{"all reports", []string{models.StatusReportSubmitted, models.StatusReportSubmitted}, 2, StageAllReportsReceived},
		{"declined counts as no report", []string{models.StatusReportSubmitted, models.StatusDeclined}, 2, StagePartialReportsReceived},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ManuscriptStage(tc.statuses, tc.target); got != tc.want {
				t.Errorf("ManuscriptStage(%v, %d) = %q, want %q", tc.statuses, tc.target, got, tc.want)
			}
		})
	}
}

func TestPhraseOverridesFromRules(t *testing.T) {
	rules := &config.Rules{
		Phrases: config.PhraseRules{
			Completion: []string{"gutachten liegt vor"},
		},
	}
	m := NewStatusMachine(rules, 3, zap.NewNop())

	status, matched := m.Classify(inbound(day(0), "Das Gutachten liegt vor."))
	if !matched || status != models.StatusReportSubmitted {
		t.Errorf("custom completion phrase not honored: %s %v", status, matched)
	}
	// Defaults für nicht überschriebene Sets bleiben aktiv.
	status, matched = m.Classify(inbound(day(0), "I am happy to review."))
	if !matched || status != models.StatusAccepted {
		t.Errorf("default acceptance phrases lost: %s %v", status, matched)
	}
}
