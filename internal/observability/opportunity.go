package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/valter-silva-au/coach-pulse/internal/core"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// OpportunityFinder surfaces non-urgent, actionable suggestions.
type OpportunityFinder interface {
	// Find returns the opportunities in snap. As with AnomalyDetector, the
	// error only lists skipped checks.
	Find(snap *PlatformSnapshot, settings models.Settings) ([]models.Opportunity, error)
}

type opportunityCheck struct {
	kind models.OpportunityKind
	eval func(snap *PlatformSnapshot, s models.Settings) ([]models.Opportunity, error)
}

type opportunityFinder struct {
	checks []opportunityCheck
}

// NewOpportunityFinder creates the default OpportunityFinder.
func NewOpportunityFinder() OpportunityFinder {
	return &opportunityFinder{checks: []opportunityCheck{
		{models.OpportunityCoachCapacity, findCoachCapacity},
		{models.OpportunityRebalanceLoad, findRebalanceLoad},
		{models.OpportunityArchiveEmptyCohort, findEmptyCohorts},
		{models.OpportunityReengageClients, findReengageClients},
	}}
}

func (f *opportunityFinder) Find(snap *PlatformSnapshot, settings models.Settings) ([]models.Opportunity, error) {
	s := settings.Clamp()
	out := []models.Opportunity{}
	var skipped *multierror.Error

	for _, c := range f.checks {
		found, err := runOpportunityCheck(c, snap, s)
		if err != nil {
			skipped = multierror.Append(skipped, fmt.Errorf("%s: %w", c.kind, err))
			continue
		}
		out = append(out, found...)
	}
	return out, skipped.ErrorOrNil()
}

func runOpportunityCheck(c opportunityCheck, snap *PlatformSnapshot, s models.Settings) (found []models.Opportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			found, err = nil, fmt.Errorf("%w: check panicked: %v", ErrDataUnavailable, r)
		}
	}()
	return c.eval(snap, s)
}

// coachLoads returns the current client count of every active coach,
// derived the same way the attention queue derives it.
func coachLoads(snap *PlatformSnapshot, s models.Settings) map[string]int {
	data := snap.Data
	data.Entries = nil
	loads := make(map[string]int)
	for _, f := range core.BuildFacts(data, s, snap.TakenAt) {
		if f.EntityType == models.EntityCoach {
			loads[f.EntityID] = f.LoadCount
		}
	}
	return loads
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// findCoachCapacity reports coaches below the per-coach maximum.
func findCoachCapacity(snap *PlatformSnapshot, s models.Settings) ([]models.Opportunity, error) {
	if err := snap.Require(SourceUsers, SourceCohorts, SourceMemberships); err != nil {
		return nil, err
	}

	loads := coachLoads(snap, s)
	var ids []string
	spare := 0
	for _, id := range sortedKeys(loads) {
		if load := loads[id]; load < s.MaxClientsPerCoach {
			ids = append(ids, id)
			spare += s.MaxClientsPerCoach - load
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return []models.Opportunity{{
		ID:                insightID(string(models.OpportunityCoachCapacity), snap.TakenAt.UTC().Format(time.DateOnly)),
		Kind:              models.OpportunityCoachCapacity,
		Description:       fmt.Sprintf("%d coaches have capacity for %d more clients", len(ids), spare),
		AffectedEntityIDs: ids,
		Details:           models.CoachCapacityDetails{Coaches: len(ids), SpareSlots: spare},
	}}, nil
}

// findRebalanceLoad pairs overloaded coaches with coaches that have room.
func findRebalanceLoad(snap *PlatformSnapshot, s models.Settings) ([]models.Opportunity, error) {
	if err := snap.Require(SourceUsers, SourceCohorts, SourceMemberships); err != nil {
		return nil, err
	}

	loads := coachLoads(snap, s)
	var over, room []string
	excess := 0
	for _, id := range sortedKeys(loads) {
		switch load := loads[id]; {
		case load > s.MaxClientsPerCoach:
			over = append(over, id)
			excess += load - s.MaxClientsPerCoach
		case load < s.MaxClientsPerCoach:
			room = append(room, id)
		}
	}
	if len(over) == 0 || len(room) == 0 {
		return nil, nil
	}

	affected := append(append([]string{}, over...), room...)
	return []models.Opportunity{{
		ID:                insightID(string(models.OpportunityRebalanceLoad), snap.TakenAt.UTC().Format(time.DateOnly)),
		Kind:              models.OpportunityRebalanceLoad,
		Description:       fmt.Sprintf("Move %d clients from %d overloaded coaches to %d coaches with room", excess, len(over), len(room)),
		AffectedEntityIDs: affected,
		Details:           models.RebalanceLoadDetails{Overloaded: over, HasCapacity: room, ExcessLoad: excess},
	}}, nil
}

// findEmptyCohorts suggests archiving cohorts that have had no members for
// at least the archive window.
func findEmptyCohorts(snap *PlatformSnapshot, s models.Settings) ([]models.Opportunity, error) {
	if err := snap.Require(SourceCohorts, SourceMemberships); err != nil {
		return nil, err
	}

	now := snap.TakenAt
	current := make(map[string]bool)
	emptySince := make(map[string]time.Time)
	for _, m := range snap.Data.Memberships {
		if m.Current(now) {
			current[m.CohortID] = true
			continue
		}
		if m.LeftAt != nil && m.LeftAt.After(emptySince[m.CohortID]) {
			emptySince[m.CohortID] = *m.LeftAt
		}
	}

	cohorts := append([]models.Cohort{}, snap.Data.Cohorts...)
	sort.Slice(cohorts, func(i, j int) bool { return cohorts[i].ID < cohorts[j].ID })

	threshold := time.Duration(s.EmptyCohortArchiveDays) * 24 * time.Hour
	var out []models.Opportunity
	for _, c := range cohorts {
		if c.Archived || current[c.ID] {
			continue
		}
		since, ok := emptySince[c.ID]
		if !ok || since.Before(c.CreatedAt) {
			since = c.CreatedAt
		}
		idle := now.Sub(since)
		if idle < threshold {
			continue
		}
		days := int(idle / (24 * time.Hour))
		out = append(out, models.Opportunity{
			ID:                insightID(string(models.OpportunityArchiveEmptyCohort), c.ID, now.UTC().Format(time.DateOnly)),
			Kind:              models.OpportunityArchiveEmptyCohort,
			Description:       fmt.Sprintf("Cohort %s has been empty for %d days and could be archived", c.Name, days),
			AffectedEntityIDs: []string{c.ID},
			Details:           models.ArchiveEmptyCohortDetails{CohortName: c.Name, EmptySince: since, EmptyDays: days},
		})
	}
	return out, nil
}

// findReengageClients lists clients past the no-activity window who have
// not yet reached critical inactivity.
func findReengageClients(snap *PlatformSnapshot, s models.Settings) ([]models.Opportunity, error) {
	if err := snap.Require(SourceUsers, SourceEntries); err != nil {
		return nil, err
	}

	now := snap.TakenAt
	last := lastActivity(snap.Data)
	lo := time.Duration(s.NoActivityDays) * 24 * time.Hour
	hi := time.Duration(s.CriticalNoActivityDays) * 24 * time.Hour

	var ids []string
	for _, c := range activeUsers(snap.Data, models.RoleClient) {
		t, ok := last[c.ID]
		if !ok {
			continue
		}
		if idle := now.Sub(t); idle > lo && idle <= hi {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return []models.Opportunity{{
		ID:                insightID(string(models.OpportunityReengageClients), now.UTC().Format(time.DateOnly)),
		Kind:              models.OpportunityReengageClients,
		Description:       fmt.Sprintf("%d clients have been quiet for %d-%d days and could be re-engaged", len(ids), s.NoActivityDays, s.CriticalNoActivityDays),
		AffectedEntityIDs: ids,
		Details:           models.ReengageClientsDetails{Clients: len(ids), MinDays: s.NoActivityDays, MaxDays: s.CriticalNoActivityDays},
	}}, nil
}
