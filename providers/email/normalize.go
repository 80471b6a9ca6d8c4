// Package email normalisiert Korrespondenz-Datensätze (gesendete und
// empfangene Nachrichten) in kanonische Events.
package email

import (
	"encoding/json"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"referee-hand/models"
	"referee-hand/providers"
)

// RawMessage ist der Payload, den der Webmail-Collaborator anliefert. Header
// sind bereits extrahiert; Body ist Klartext.
type RawMessage struct {
	MessageID      string   `json:"message_id"`
	From           string   `json:"from"`
	To             []string `json:"to"`
	Date           string   `json:"date"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	Direction      string   `json:"direction"`
	ManuscriptHint string   `json:"manuscript_hint"`
}

// dateLayouts sind die in freier Wildbahn beobachteten Header-Formate.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type Normalizer struct {
	logger *zap.Logger
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Kind implementiert providers.Normalizer.
func (n *Normalizer) Kind() models.SourceKind {
	return models.SourceEmail
}

// Normalize wandelt eine Roh-Nachricht in genau ein Event um. Die Gegenstelle
// ist bei inbound der Absender, bei outbound der erste Empfänger; Subject und
// Body dürfen fehlen.
func (n *Normalizer) Normalize(payload json.RawMessage) (*models.Event, error) {
	var raw RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, providers.Reject(models.SourceEmail, "payload", "invalid JSON: "+err.Error())
	}

	direction := models.DirectionInbound
	switch strings.ToLower(strings.TrimSpace(raw.Direction)) {
	case "", "inbound":
	case "outbound":
		direction = models.DirectionOutbound
	default:
		return nil, providers.Reject(models.SourceEmail, "direction", "unknown value "+raw.Direction)
	}

	header := raw.From
	if direction == models.DirectionOutbound {
		if len(raw.To) == 0 {
			return nil, providers.Reject(models.SourceEmail, "to", "outbound message without recipient")
		}
		header = raw.To[0]
	}
	address, display, err := ParseAddressHeader(header)
	if err != nil {
		return nil, err
	}

	ts, err := parseDate(raw.Date)
	if err != nil {
		return nil, err
	}

	return &models.Event{
		SourceKind:     models.SourceEmail,
		Direction:      direction,
		RawAddress:     address,
		RawDisplayName: display,
		Timestamp:      ts,
		Subject:        strings.TrimSpace(raw.Subject),
		BodyText:       raw.Body,
		ManuscriptHint: strings.TrimSpace(raw.ManuscriptHint),
	}, nil
}

// ParseAddressHeader zerlegt einen Adress-Header in Adresse und Display-Name.
// Unterstützt `"Last, First" <addr>` genauso wie nackte Adressen.
func ParseAddressHeader(header string) (address, display string, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "", &providers.NormalizationError{Source: models.SourceEmail, Field: "address", Reason: "empty"}
	}

	if parsed, perr := mail.ParseAddress(header); perr == nil {
		return strings.ToLower(parsed.Address), strings.TrimSpace(parsed.Name), nil
	}

	// Fallback für Header, die net/mail nicht mag (unquoted Kommata etc.):
	// letztes <...> als Adresse nehmen, Rest als Name.
	if open := strings.LastIndex(header, "<"); open >= 0 {
		if end := strings.Index(header[open:], ">"); end > 1 {
			addr := strings.TrimSpace(header[open+1 : open+end])
			name := strings.Trim(strings.TrimSpace(header[:open]), `"`)
			if strings.Contains(addr, "@") {
				return strings.ToLower(addr), name, nil
			}
		}
	}

	if strings.Contains(header, "@") && !strings.ContainsAny(header, " \t") {
		return strings.ToLower(header), "", nil
	}
	return "", "", &providers.NormalizationError{Source: models.SourceEmail, Field: "address", Reason: "unparseable header " + header}
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &providers.NormalizationError{Source: models.SourceEmail, Field: "date", Reason: "empty"}
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, &providers.NormalizationError{Source: models.SourceEmail, Field: "date", Reason: "unparseable date " + value}
}
