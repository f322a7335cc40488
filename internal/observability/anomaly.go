package observability

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// Metric labels carried by anomalies that have no trend series.
const (
	MetricClientsPerCoach = "clients_per_coach"
	MetricInactiveClients = "inactive_clients"
)

// insightNamespace seeds deterministic anomaly and opportunity IDs so the
// same finding on the same day always carries the same ID.
var insightNamespace = uuid.MustParse("5b0e3c52-8f0a-4d8e-9b7e-3f1c2a6d9e41")

func insightID(parts ...string) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += "|"
		}
		key += p
	}
	return uuid.NewSHA1(insightNamespace, []byte(key)).String()
}

// anomalyCheck evaluates one platform-wide condition. It returns nil when
// the condition does not fire and an error wrapping ErrDataUnavailable when
// the check cannot be evaluated.
type anomalyCheck struct {
	kind models.AnomalyKind
	eval func(snap *PlatformSnapshot, s models.Settings) (*models.Anomaly, error)
}

// AnomalyDetector evaluates the fixed catalogue of platform checks.
type AnomalyDetector interface {
	// Detect returns the anomalies found in snap. The error, when non-nil,
	// lists the checks that were skipped; the anomalies are valid either way.
	Detect(snap *PlatformSnapshot, settings models.Settings) ([]models.Anomaly, error)
}

type anomalyDetector struct {
	checks []anomalyCheck
}

// NewAnomalyDetector creates the default AnomalyDetector.
func NewAnomalyDetector() AnomalyDetector {
	return &anomalyDetector{checks: []anomalyCheck{
		{models.AnomalyGrowthCollapse, checkGrowthCollapse},
		{models.AnomalyCompletionDrop, checkCompletionDrop},
		{models.AnomalyLoadImbalance, checkLoadImbalance},
		{models.AnomalyInactiveSurge, checkInactiveSurge},
	}}
}

func (d *anomalyDetector) Detect(snap *PlatformSnapshot, settings models.Settings) ([]models.Anomaly, error) {
	s := settings.Clamp()
	anomalies := []models.Anomaly{}
	var skipped *multierror.Error

	for _, c := range d.checks {
		a, err := runAnomalyCheck(c, snap, s)
		if err != nil {
			skipped = multierror.Append(skipped, fmt.Errorf("%s: %w", c.kind, err))
			continue
		}
		if a != nil {
			anomalies = append(anomalies, *a)
		}
	}
	return anomalies, skipped.ErrorOrNil()
}

// runAnomalyCheck isolates one check so a panic on malformed data only
// skips that check.
func runAnomalyCheck(c anomalyCheck, snap *PlatformSnapshot, s models.Settings) (a *models.Anomaly, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, fmt.Errorf("%w: check panicked: %v", ErrDataUnavailable, r)
		}
	}()
	return c.eval(snap, s)
}

func newAnomaly(snap *PlatformSnapshot, kind models.AnomalyKind, p models.Priority, metric, desc string, details models.AnomalyDetails) *models.Anomaly {
	return &models.Anomaly{
		ID:          insightID(string(kind), metric, snap.TakenAt.UTC().Format(time.DateOnly)),
		Kind:        kind,
		Priority:    p,
		Metric:      metric,
		Description: desc,
		DetectedAt:  snap.TakenAt,
		Details:     details,
	}
}

// checkGrowthCollapse compares new sign-ups this week against last week.
func checkGrowthCollapse(snap *PlatformSnapshot, s models.Settings) (*models.Anomaly, error) {
	if err := snap.Require(SourceUsers); err != nil {
		return nil, err
	}

	now := snap.TakenAt
	weekAgo := now.Add(-7 * 24 * time.Hour)
	twoWeeksAgo := now.Add(-14 * 24 * time.Hour)

	var thisWeek, lastWeek int
	for _, u := range snap.Data.Users {
		switch {
		case u.CreatedAt.After(weekAgo) && !u.CreatedAt.After(now):
			thisWeek++
		case u.CreatedAt.After(twoWeeksAgo) && !u.CreatedAt.After(weekAgo):
			lastWeek++
		}
	}
	if lastWeek == 0 {
		return nil, fmt.Errorf("%w: no sign-ups in the previous week to compare against", ErrDataUnavailable)
	}

	drop := float64(lastWeek-thisWeek) / float64(lastWeek) * 100
	var p models.Priority
	switch {
	case drop >= s.GrowthDropRedPercent:
		p = models.PriorityRed
	case drop >= s.GrowthDropAmberPercent:
		p = models.PriorityAmber
	default:
		return nil, nil
	}

	return newAnomaly(snap, models.AnomalyGrowthCollapse, p, MetricUserGrowth,
		fmt.Sprintf("New sign-ups fell %.0f%% week over week (%d vs %d)", drop, thisWeek, lastWeek),
		models.GrowthCollapseDetails{ThisWeek: thisWeek, LastWeek: lastWeek, DropPercent: drop},
	), nil
}

// checkCompletionDrop compares the entry completion rate over the recent
// window against the configured floors.
func checkCompletionDrop(snap *PlatformSnapshot, s models.Settings) (*models.Anomaly, error) {
	if err := snap.Require(SourceEntries); err != nil {
		return nil, err
	}

	windowStart := snap.TakenAt.Add(-time.Duration(s.RecentActivityDays) * 24 * time.Hour)
	var total, completed int
	for _, e := range snap.Data.Entries {
		if e.CreatedAt.Before(windowStart) || e.CreatedAt.After(snap.TakenAt) {
			continue
		}
		total++
		if e.Completed {
			completed++
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no entries in the last %d days", ErrDataUnavailable, s.RecentActivityDays)
	}

	rate := float64(completed) / float64(total)
	var p models.Priority
	var floor float64
	switch {
	case rate < s.CompletionRedFloor:
		p, floor = models.PriorityRed, s.CompletionRedFloor
	case rate < s.CompletionAmberFloor:
		p, floor = models.PriorityAmber, s.CompletionAmberFloor
	default:
		return nil, nil
	}

	return newAnomaly(snap, models.AnomalyCompletionDrop, p, MetricEntryCompletion,
		fmt.Sprintf("Entry completion at %.0f%% over %d days, below the %.0f%% floor", rate*100, s.RecentActivityDays, floor*100),
		models.CompletionDropDetails{Completed: completed, Total: total, Rate: rate, Floor: floor},
	), nil
}

// checkLoadImbalance compares the platform-wide client to coach ratio with
// the per-coach load bounds.
func checkLoadImbalance(snap *PlatformSnapshot, s models.Settings) (*models.Anomaly, error) {
	if err := snap.Require(SourceUsers); err != nil {
		return nil, err
	}

	clients := len(activeUsers(snap.Data, models.RoleClient))
	coaches := len(activeUsers(snap.Data, models.RoleCoach))
	if coaches == 0 || clients == 0 {
		return nil, fmt.Errorf("%w: %d clients across %d coaches", ErrDataUnavailable, clients, coaches)
	}

	ratio := float64(clients) / float64(coaches)
	lo, hi := float64(s.MinClientsPerCoach), float64(s.MaxClientsPerCoach)
	var p models.Priority
	switch {
	case ratio > hi*s.LoadRatioSevereFactor || ratio < lo/s.LoadRatioSevereFactor:
		p = models.PriorityRed
	case ratio > hi || ratio < lo:
		p = models.PriorityAmber
	default:
		return nil, nil
	}

	return newAnomaly(snap, models.AnomalyLoadImbalance, p, MetricClientsPerCoach,
		fmt.Sprintf("%.1f clients per coach is outside the %d-%d range", ratio, s.MinClientsPerCoach, s.MaxClientsPerCoach),
		models.LoadImbalanceDetails{Clients: clients, Coaches: coaches, Ratio: ratio, Min: s.MinClientsPerCoach, Max: s.MaxClientsPerCoach},
	), nil
}

// checkInactiveSurge measures the share of active clients with no activity
// inside the no-activity window.
func checkInactiveSurge(snap *PlatformSnapshot, s models.Settings) (*models.Anomaly, error) {
	if err := snap.Require(SourceUsers, SourceEntries); err != nil {
		return nil, err
	}

	clients := activeUsers(snap.Data, models.RoleClient)
	if len(clients) == 0 {
		return nil, fmt.Errorf("%w: no active clients", ErrDataUnavailable)
	}

	last := lastActivity(snap.Data)
	cutoff := snap.TakenAt.Add(-time.Duration(s.NoActivityDays) * 24 * time.Hour)
	inactive := 0
	for _, c := range clients {
		t, ok := last[c.ID]
		if !ok || t.Before(cutoff) {
			inactive++
		}
	}

	share := float64(inactive) / float64(len(clients))
	var p models.Priority
	switch {
	case share >= s.InactiveShareRed:
		p = models.PriorityRed
	case share >= s.InactiveShareAmber:
		p = models.PriorityAmber
	default:
		return nil, nil
	}

	return newAnomaly(snap, models.AnomalyInactiveSurge, p, MetricInactiveClients,
		fmt.Sprintf("%d of %d clients (%.0f%%) inactive for %d+ days", inactive, len(clients), share*100, s.NoActivityDays),
		models.InactiveSurgeDetails{Inactive: inactive, Clients: len(clients), Share: share},
	), nil
}

// IsSkipped reports whether err came from a check skipped for missing data.
func IsSkipped(err error) bool {
	return errors.Is(err, ErrDataUnavailable)
}
