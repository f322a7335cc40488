package core

import (
	"sort"
	"time"

	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// AttentionQueueBuilder scores a batch of entities and buckets them by tier.
type AttentionQueueBuilder interface {
	// BuildQueue is a pure function of its inputs and the builder clock:
	// identical entities and settings always yield identical ordering.
	BuildQueue(entities []models.EntityFacts, settings models.Settings) models.AttentionQueue
}

type attentionQueueBuilder struct {
	scorer AttentionScorer
	now    func() time.Time
}

// NewAttentionQueueBuilder creates an AttentionQueueBuilder. A nil scorer
// uses the default scorer; a nil clock uses time.Now in UTC.
func NewAttentionQueueBuilder(scorer AttentionScorer, clock func() time.Time) AttentionQueueBuilder {
	if scorer == nil {
		scorer = NewAttentionScorer()
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &attentionQueueBuilder{scorer: scorer, now: clock}
}

func (b *attentionQueueBuilder) BuildQueue(entities []models.EntityFacts, settings models.Settings) models.AttentionQueue {
	// One snapshot of settings and time for the whole pass.
	s := settings.Clamp()
	now := b.now()

	q := models.EmptyAttentionQueue()
	for _, facts := range entities {
		item := b.scorer.Score(facts, s, now)
		switch item.Priority {
		case models.PriorityRed:
			q.Red = append(q.Red, item)
		case models.PriorityAmber:
			q.Amber = append(q.Amber, item)
		default:
			q.Green = append(q.Green, item)
		}
	}

	sortTier(q.Red)
	sortTier(q.Amber)
	sortTier(q.Green)

	q.Summary = models.QueueSummary{
		Red:   len(q.Red),
		Amber: len(q.Amber),
		Green: len(q.Green),
		Total: len(q.Red) + len(q.Amber) + len(q.Green),
	}
	return q
}

// sortTier orders by descending score, then name, then id so that input
// order never leaks into the output.
func sortTier(items []models.AttentionQueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].EntityName != items[j].EntityName {
			return items[i].EntityName < items[j].EntityName
		}
		if items[i].EntityID != items[j].EntityID {
			return items[i].EntityID < items[j].EntityID
		}
		return items[i].EntityType < items[j].EntityType
	})
}
