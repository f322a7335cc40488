package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnomalyKind identifies which platform check produced an anomaly.
type AnomalyKind string

const (
	AnomalyGrowthCollapse AnomalyKind = "growth_collapse"
	AnomalyCompletionDrop AnomalyKind = "completion_drop"
	AnomalyLoadImbalance  AnomalyKind = "load_imbalance"
	AnomalyInactiveSurge  AnomalyKind = "inactive_surge"
)

// AnomalyDetails is the kind-specific payload of an Anomaly. The set of
// implementations is closed: consumers can switch exhaustively on the
// concrete type.
type AnomalyDetails interface {
	AnomalyKind() AnomalyKind
}

// GrowthCollapseDetails compares new sign-ups week over week.
type GrowthCollapseDetails struct {
	ThisWeek    int     `json:"thisWeek"`
	LastWeek    int     `json:"lastWeek"`
	DropPercent float64 `json:"dropPercent"`
}

func (GrowthCollapseDetails) AnomalyKind() AnomalyKind { return AnomalyGrowthCollapse }

// CompletionDropDetails describes the recent entry completion rate.
type CompletionDropDetails struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Rate      float64 `json:"rate"`
	Floor     float64 `json:"floor"`
}

func (CompletionDropDetails) AnomalyKind() AnomalyKind { return AnomalyCompletionDrop }

// LoadImbalanceDetails describes the platform-wide client to coach ratio.
type LoadImbalanceDetails struct {
	Clients int     `json:"clients"`
	Coaches int     `json:"coaches"`
	Ratio   float64 `json:"ratio"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
}

func (LoadImbalanceDetails) AnomalyKind() AnomalyKind { return AnomalyLoadImbalance }

// InactiveSurgeDetails describes the share of clients with no recent activity.
type InactiveSurgeDetails struct {
	Inactive int     `json:"inactive"`
	Clients  int     `json:"clients"`
	Share    float64 `json:"share"`
}

func (InactiveSurgeDetails) AnomalyKind() AnomalyKind { return AnomalyInactiveSurge }

// Anomaly is a single platform deviation worth flagging. Priority is
// always RED or AMBER.
type Anomaly struct {
	ID          string         `json:"id"`
	Kind        AnomalyKind    `json:"kind"`
	Priority    Priority       `json:"priority"`
	Metric      string         `json:"metric"`
	Description string         `json:"description"`
	DetectedAt  time.Time      `json:"detectedAt"`
	Details     AnomalyDetails `json:"details,omitempty"`
}

// UnmarshalJSON decodes details into the concrete payload type for Kind.
func (a *Anomaly) UnmarshalJSON(data []byte) error {
	type plain Anomaly
	var raw struct {
		plain
		Details json.RawMessage `json:"details,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Anomaly(raw.plain)
	a.Details = nil

	var details AnomalyDetails
	switch a.Kind {
	case AnomalyGrowthCollapse:
		details = &GrowthCollapseDetails{}
	case AnomalyCompletionDrop:
		details = &CompletionDropDetails{}
	case AnomalyLoadImbalance:
		details = &LoadImbalanceDetails{}
	case AnomalyInactiveSurge:
		details = &InactiveSurgeDetails{}
	default:
		return fmt.Errorf("unknown anomaly kind %q", a.Kind)
	}
	if !hasPayload(raw.Details) {
		return nil
	}
	if err := json.Unmarshal(raw.Details, details); err != nil {
		return fmt.Errorf("decoding %s details: %w", a.Kind, err)
	}
	switch v := details.(type) {
	case *GrowthCollapseDetails:
		a.Details = *v
	case *CompletionDropDetails:
		a.Details = *v
	case *LoadImbalanceDetails:
		a.Details = *v
	case *InactiveSurgeDetails:
		a.Details = *v
	}
	return nil
}

func hasPayload(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// OpportunityKind identifies which finder check produced an opportunity.
type OpportunityKind string

const (
	OpportunityCoachCapacity      OpportunityKind = "coach_capacity"
	OpportunityArchiveEmptyCohort OpportunityKind = "archive_empty_cohort"
	OpportunityRebalanceLoad      OpportunityKind = "rebalance_load"
	OpportunityReengageClients    OpportunityKind = "reengage_clients"
)

// OpportunityDetails is the kind-specific payload of an Opportunity.
type OpportunityDetails interface {
	OpportunityKind() OpportunityKind
}

// CoachCapacityDetails lists spare client slots across coaches.
type CoachCapacityDetails struct {
	Coaches    int `json:"coaches"`
	SpareSlots int `json:"spareSlots"`
}

func (CoachCapacityDetails) OpportunityKind() OpportunityKind { return OpportunityCoachCapacity }

// ArchiveEmptyCohortDetails describes one empty cohort.
type ArchiveEmptyCohortDetails struct {
	CohortName string    `json:"cohortName"`
	EmptySince time.Time `json:"emptySince"`
	EmptyDays  int       `json:"emptyDays"`
}

func (ArchiveEmptyCohortDetails) OpportunityKind() OpportunityKind {
	return OpportunityArchiveEmptyCohort
}

// RebalanceLoadDetails pairs overloaded coaches with coaches that have room.
type RebalanceLoadDetails struct {
	Overloaded  []string `json:"overloaded"`
	HasCapacity []string `json:"hasCapacity"`
	ExcessLoad  int      `json:"excessLoad"`
}

func (RebalanceLoadDetails) OpportunityKind() OpportunityKind { return OpportunityRebalanceLoad }

// ReengageClientsDetails counts clients drifting toward critical inactivity.
type ReengageClientsDetails struct {
	Clients int `json:"clients"`
	MinDays int `json:"minDays"`
	MaxDays int `json:"maxDays"`
}

func (ReengageClientsDetails) OpportunityKind() OpportunityKind { return OpportunityReengageClients }

// Opportunity is an actionable, non-urgent suggestion.
type Opportunity struct {
	ID                string             `json:"id"`
	Kind              OpportunityKind    `json:"kind"`
	Description       string             `json:"description"`
	AffectedEntityIDs []string           `json:"affectedEntityIds"`
	Details           OpportunityDetails `json:"details,omitempty"`
}

// UnmarshalJSON decodes details into the concrete payload type for Kind.
func (o *Opportunity) UnmarshalJSON(data []byte) error {
	type plain Opportunity
	var raw struct {
		plain
		Details json.RawMessage `json:"details,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Opportunity(raw.plain)
	o.Details = nil

	var details OpportunityDetails
	switch o.Kind {
	case OpportunityCoachCapacity:
		details = &CoachCapacityDetails{}
	case OpportunityArchiveEmptyCohort:
		details = &ArchiveEmptyCohortDetails{}
	case OpportunityRebalanceLoad:
		details = &RebalanceLoadDetails{}
	case OpportunityReengageClients:
		details = &ReengageClientsDetails{}
	default:
		return fmt.Errorf("unknown opportunity kind %q", o.Kind)
	}
	if !hasPayload(raw.Details) {
		return nil
	}
	if err := json.Unmarshal(raw.Details, details); err != nil {
		return fmt.Errorf("decoding %s details: %w", o.Kind, err)
	}
	switch v := details.(type) {
	case *CoachCapacityDetails:
		o.Details = *v
	case *ArchiveEmptyCohortDetails:
		o.Details = *v
	case *RebalanceLoadDetails:
		o.Details = *v
	case *ReengageClientsDetails:
		o.Details = *v
	}
	return nil
}

// Direction is the movement of a trend series or point.
type Direction string

const (
	DirectionUp     Direction = "UP"
	DirectionDown   Direction = "DOWN"
	DirectionStable Direction = "STABLE"
)

// TrendPoint is one bucket of a generated series. The first point of a
// series carries the direction of the series as a whole; later points carry
// the direction relative to the previous bucket.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Direction Direction `json:"direction"`
}

// InsightBundle is the unit held by the insight cache.
type InsightBundle struct {
	Anomalies            []Anomaly     `json:"anomalies"`
	Opportunities        []Opportunity `json:"opportunities"`
	UserGrowthTrend      []TrendPoint  `json:"userGrowthTrend"`
	EntryCompletionTrend []TrendPoint  `json:"entryCompletionTrend"`
	ComputedAt           time.Time     `json:"computedAt"`
}

// EmptyInsightBundle returns a bundle whose collections are empty, not nil.
func EmptyInsightBundle() InsightBundle {
	return InsightBundle{
		Anomalies:            []Anomaly{},
		Opportunities:        []Opportunity{},
		UserGrowthTrend:      []TrendPoint{},
		EntryCompletionTrend: []TrendPoint{},
	}
}

// HighPriority returns only the RED anomalies, preserving order.
func (b InsightBundle) HighPriority() []Anomaly {
	out := []Anomaly{}
	for _, a := range b.Anomalies {
		if a.Priority == PriorityRed {
			out = append(out, a)
		}
	}
	return out
}
