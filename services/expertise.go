package services

import (
	"strings"
	"time"

	"referee-hand/models"
)

// UpdatedConfidence ist das Glättungs-Update für ein bereits bekanntes Tag:
// nähert sich 1.0 asymptotisch, erreicht sie nie.
func UpdatedConfidence(old float64) float64 {
	return old*0.9 + 0.1
}

// ObserveTopic verbucht eine Themen-Beobachtung auf der Tag-Liste eines
// Gutachters. Bestehende Tags werden geglättet hochgezogen, neue starten bei
// 0.5; gelöscht wird nie.
func ObserveTopic(tags []models.ExpertiseTag, topic string) []models.ExpertiseTag {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return tags
	}
	now := time.Now().UTC()
	for i := range tags {
		if tags[i].Topic == topic {
			tags[i].Confidence = UpdatedConfidence(tags[i].Confidence)
			tags[i].EvidenceCount++
			tags[i].UpdatedAt = now
			return tags
		}
	}
	return append(tags, models.ExpertiseTag{
		Topic:         topic,
		Confidence:    0.5,
		EvidenceCount: 1,
		UpdatedAt:     now,
	})
}
