// Package core contains the attention scoring logic for pulse: per-entity
// RAG scoring, queue building, and derivation of entity facts from
// repository records.
package core

import (
	"fmt"
	"math"
	"time"

	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

const day = 24 * time.Hour

// AttentionScorer classifies one entity into a RAG tier.
type AttentionScorer interface {
	// Score evaluates every signal for facts against settings as of now.
	// Reasons follow the fixed signal order: inactivity, engagement,
	// completeness, load.
	Score(facts models.EntityFacts, settings models.Settings, now time.Time) models.AttentionQueueItem
}

type attentionScorer struct{}

// NewAttentionScorer creates the default AttentionScorer.
func NewAttentionScorer() AttentionScorer {
	return attentionScorer{}
}

// signal is the outcome of one scoring rule.
type signal struct {
	weight int
	reason string
}

func (attentionScorer) Score(facts models.EntityFacts, settings models.Settings, now time.Time) models.AttentionQueueItem {
	s := settings.Clamp()

	item := models.AttentionQueueItem{
		EntityID:    facts.EntityID,
		EntityType:  facts.EntityType,
		EntityName:  facts.EntityName,
		EntityEmail: facts.EntityEmail,
		Reasons:     []string{},
	}

	for _, eval := range []func(models.EntityFacts, models.Settings, time.Time) (signal, bool){
		inactivitySignal,
		engagementSignal,
		completenessSignal,
		loadSignal,
	} {
		sig, ok := eval(facts, s, now)
		if !ok {
			continue
		}
		item.Score += sig.weight
		item.Reasons = append(item.Reasons, sig.reason)
	}

	item.Priority = TierFor(item.Score, s)
	return item
}

// TierFor maps a summed score onto the RAG partition defined by settings.
func TierFor(score int, settings models.Settings) models.Priority {
	switch {
	case score >= settings.RedThreshold:
		return models.PriorityRed
	case score >= settings.AmberThreshold:
		return models.PriorityAmber
	default:
		return models.PriorityGreen
	}
}

func inactivitySignal(f models.EntityFacts, s models.Settings, now time.Time) (signal, bool) {
	if f.LastActivityAt == nil {
		return signal{weight: s.CriticalInactivityWeight, reason: "No recorded activity"}, true
	}

	idle := now.Sub(*f.LastActivityAt)
	if idle < 0 {
		return signal{}, false
	}
	days := int(idle / day)

	if idle > time.Duration(s.CriticalNoActivityDays)*day {
		return signal{
			weight: s.CriticalInactivityWeight,
			reason: fmt.Sprintf("No activity in %d days", days),
		}, true
	}
	if idle > time.Duration(s.NoActivityDays)*day {
		return signal{
			weight: s.InactivityWeight,
			reason: fmt.Sprintf("No activity in %d days", days),
		}, true
	}
	return signal{}, false
}

// measurable reports whether engagement and completeness apply. Coaches
// and cohorts without members have nothing to measure.
func measurable(f models.EntityFacts) bool {
	return !(f.EntityType.IsAggregate() && f.LoadCount <= 0)
}

func engagementSignal(f models.EntityFacts, s models.Settings, _ time.Time) (signal, bool) {
	if !measurable(f) || f.RecentEntryCount >= s.LowEngagementEntries {
		return signal{}, false
	}

	reason := fmt.Sprintf("Only %d check-ins in the last %d days", f.RecentEntryCount, s.RecentActivityDays)
	if f.EntityType.IsAggregate() {
		reason = fmt.Sprintf("Only %d check-ins per member in the last %d days", f.RecentEntryCount, s.RecentActivityDays)
	}
	return signal{weight: s.LowEngagementWeight, reason: reason}, true
}

func completenessSignal(f models.EntityFacts, s models.Settings, _ time.Time) (signal, bool) {
	if !measurable(f) || f.RecentEntryCount <= 0 {
		return signal{}, false
	}

	ratio := f.CompletenessRatio
	if ratio != ratio || ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	// Adherence is expressed in check-in days so it shares a scale with the
	// adherence minimums.
	adherence := ratio * float64(s.RecentActivityDays)
	green := float64(s.AdherenceGreenMinimum)
	if adherence >= green {
		return signal{}, false
	}

	weight := int(math.Ceil(float64(s.CompletenessWeight) * (green - adherence) / green))
	if weight < 1 && s.CompletenessWeight > 0 {
		weight = 1
	}

	if adherence < float64(s.AdherenceAmberMinimum) {
		return signal{
			weight: weight,
			reason: fmt.Sprintf("Adherence %.1f/%d below minimum %d", adherence, s.RecentActivityDays, s.AdherenceAmberMinimum),
		}, true
	}
	return signal{
		weight: weight,
		reason: fmt.Sprintf("Adherence %.1f/%d below target %d", adherence, s.RecentActivityDays, s.AdherenceGreenMinimum),
	}, true
}

func loadSignal(f models.EntityFacts, s models.Settings, _ time.Time) (signal, bool) {
	var lo, hi int
	var unit string
	switch f.EntityType {
	case models.EntityCoach:
		lo, hi, unit = s.MinClientsPerCoach, s.MaxClientsPerCoach, "clients"
	case models.EntityCohort:
		lo, hi, unit = s.MinMembersPerCohort, s.MaxMembersPerCohort, "members"
	default:
		return signal{}, false
	}

	switch {
	case f.LoadCount > hi:
		return signal{
			weight: s.LoadImbalanceWeight,
			reason: fmt.Sprintf("Overloaded: %d %s (max %d)", f.LoadCount, unit, hi),
		}, true
	case f.LoadCount > 0 && f.LoadCount < lo:
		return signal{
			weight: s.LoadImbalanceWeight,
			reason: fmt.Sprintf("Underutilized: %d %s (min %d)", f.LoadCount, unit, lo),
		}, true
	}
	return signal{}, false
}
