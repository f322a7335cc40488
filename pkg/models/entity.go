package models

import "time"

// EntityType identifies what kind of coaching entity is being scored.
type EntityType string

const (
	EntityCoach  EntityType = "COACH"
	EntityClient EntityType = "CLIENT"
	EntityCohort EntityType = "COHORT"
)

// IsAggregate reports whether the entity's facts are aggregated over members
// (coaches over their clients, cohorts over their members).
func (t EntityType) IsAggregate() bool {
	return t == EntityCoach || t == EntityCohort
}

// Priority is the RAG tier assigned to a scored entity.
type Priority string

const (
	PriorityRed   Priority = "RED"
	PriorityAmber Priority = "AMBER"
	PriorityGreen Priority = "GREEN"
)

// Rank orders priorities from most to least urgent (RED = 0).
func (p Priority) Rank() int {
	switch p {
	case PriorityRed:
		return 0
	case PriorityAmber:
		return 1
	case PriorityGreen:
		return 2
	default:
		return 3
	}
}

// EntityFacts is the immutable snapshot an entity is scored from. It is
// derived fresh on every queue build and never cached.
type EntityFacts struct {
	EntityID    string     `json:"entityId"`
	EntityType  EntityType `json:"entityType"`
	EntityName  string     `json:"entityName"`
	EntityEmail string     `json:"entityEmail,omitempty"`

	// LastActivityAt is nil when the entity has never been active.
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`

	// RecentEntryCount counts check-ins inside the recent activity window.
	// For aggregates it is the per-member average, rounded down.
	RecentEntryCount int `json:"recentEntryCount"`

	// CompletenessRatio is the fraction (0..1) of optional fields populated
	// across recent entries. Meaningless when RecentEntryCount is zero.
	CompletenessRatio float64 `json:"completenessRatio"`

	// LoadCount is clients-per-coach or members-per-cohort; zero for clients.
	LoadCount int `json:"loadCount"`

	// CompletedEntryCount counts completed check-ins inside the window.
	CompletedEntryCount int `json:"completedEntryCount"`
}

// AttentionQueueItem is the scored output for one entity.
type AttentionQueueItem struct {
	EntityID    string     `json:"entityId"`
	EntityType  EntityType `json:"entityType"`
	EntityName  string     `json:"entityName"`
	EntityEmail string     `json:"entityEmail,omitempty"`
	Priority    Priority   `json:"priority"`
	Score       int        `json:"score"`
	Reasons     []string   `json:"reasons"`
}

// QueueSummary counts items per tier.
type QueueSummary struct {
	Red   int `json:"red"`
	Amber int `json:"amber"`
	Green int `json:"green"`
	Total int `json:"total"`
}

// AttentionQueue is the dashboard payload: three ordered tiers plus counts.
type AttentionQueue struct {
	Red     []AttentionQueueItem `json:"red"`
	Amber   []AttentionQueueItem `json:"amber"`
	Green   []AttentionQueueItem `json:"green"`
	Summary QueueSummary         `json:"summary"`
}

// EmptyAttentionQueue returns a queue whose tiers marshal as empty arrays.
func EmptyAttentionQueue() AttentionQueue {
	return AttentionQueue{
		Red:   []AttentionQueueItem{},
		Amber: []AttentionQueueItem{},
		Green: []AttentionQueueItem{},
	}
}
