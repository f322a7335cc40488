package core

import (
	"sort"
	"time"

	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// Dataset is the raw record set facts are derived from.
type Dataset struct {
	Users       []models.User
	Cohorts     []models.Cohort
	Memberships []models.Membership
	// Entries must cover at least the critical inactivity window.
	Entries []models.Entry
}

// EntriesLookback is how far back entries must reach for BuildFacts to see
// every activity that can still change a tier.
func EntriesLookback(s models.Settings) time.Duration {
	s = s.Clamp()
	days := s.CriticalNoActivityDays
	if s.RecentActivityDays > days {
		days = s.RecentActivityDays
	}
	return time.Duration(days+1) * day
}

// entryStats accumulates per-user entry facts.
type entryStats struct {
	last         *time.Time
	recent       int
	completed    int
	completeness float64
}

// BuildFacts derives EntityFacts for every eligible entity: active clients,
// active coaches, and cohorts that are not archived. Output is ordered by
// entity type then id.
func BuildFacts(data Dataset, settings models.Settings, now time.Time) []models.EntityFacts {
	s := settings.Clamp()
	windowStart := now.Add(-time.Duration(s.RecentActivityDays) * day)

	stats := make(map[string]*entryStats)
	for _, e := range data.Entries {
		if e.CreatedAt.After(now) {
			continue
		}
		st := stats[e.UserID]
		if st == nil {
			st = &entryStats{}
			stats[e.UserID] = st
		}
		created := e.CreatedAt
		if st.last == nil || created.After(*st.last) {
			st.last = &created
		}
		if !created.Before(windowStart) {
			st.recent++
			st.completeness += e.Completeness()
			if e.Completed {
				st.completed++
			}
		}
	}

	users := make(map[string]models.User, len(data.Users))
	for _, u := range data.Users {
		users[u.ID] = u
	}
	isClient := func(id string) bool {
		u, ok := users[id]
		return ok && u.Active && u.Role == models.RoleClient
	}

	// Current members per cohort, restricted to active clients.
	members := make(map[string]map[string]struct{})
	for _, m := range data.Memberships {
		if !m.Current(now) || !isClient(m.UserID) {
			continue
		}
		set := members[m.CohortID]
		if set == nil {
			set = make(map[string]struct{})
			members[m.CohortID] = set
		}
		set[m.UserID] = struct{}{}
	}

	coachClients := make(map[string]map[string]struct{})
	for _, c := range data.Cohorts {
		if c.Archived || c.CoachID == "" {
			continue
		}
		set := coachClients[c.CoachID]
		if set == nil {
			set = make(map[string]struct{})
			coachClients[c.CoachID] = set
		}
		for id := range members[c.ID] {
			set[id] = struct{}{}
		}
	}

	var out []models.EntityFacts

	for _, u := range data.Users {
		if !u.Active {
			continue
		}
		switch u.Role {
		case models.RoleClient:
			out = append(out, clientFacts(u, stats[u.ID]))
		case models.RoleCoach:
			f := aggregateFacts(coachClients[u.ID], stats)
			f.EntityID, f.EntityType, f.EntityName, f.EntityEmail = u.ID, models.EntityCoach, u.Name, u.Email
			f.LastActivityAt = latest(f.LastActivityAt, u.LastActiveAt)
			out = append(out, f)
		}
	}

	for _, c := range data.Cohorts {
		if c.Archived {
			continue
		}
		f := aggregateFacts(members[c.ID], stats)
		f.EntityID, f.EntityType, f.EntityName = c.ID, models.EntityCohort, c.Name
		if f.LastActivityAt == nil {
			// A cohort nobody has checked into yet dates from its creation.
			created := c.CreatedAt
			f.LastActivityAt = &created
		}
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

func clientFacts(u models.User, st *entryStats) models.EntityFacts {
	f := models.EntityFacts{
		EntityID:       u.ID,
		EntityType:     models.EntityClient,
		EntityName:     u.Name,
		EntityEmail:    u.Email,
		LastActivityAt: copyTime(u.LastActiveAt),
	}
	if st == nil {
		return f
	}
	f.LastActivityAt = latest(f.LastActivityAt, st.last)
	f.RecentEntryCount = st.recent
	f.CompletedEntryCount = st.completed
	if st.recent > 0 {
		f.CompletenessRatio = st.completeness / float64(st.recent)
	}
	return f
}

// aggregateFacts folds member entry stats into one set of facts.
// RecentEntryCount becomes the per-member average, rounded down.
func aggregateFacts(memberIDs map[string]struct{}, stats map[string]*entryStats) models.EntityFacts {
	f := models.EntityFacts{LoadCount: len(memberIDs)}
	var recent, completed int
	var completeness float64
	for id := range memberIDs {
		st := stats[id]
		if st == nil {
			continue
		}
		f.LastActivityAt = latest(f.LastActivityAt, st.last)
		recent += st.recent
		completed += st.completed
		completeness += st.completeness
	}
	if f.LoadCount > 0 {
		f.RecentEntryCount = recent / f.LoadCount
	}
	f.CompletedEntryCount = completed
	if recent > 0 {
		f.CompletenessRatio = completeness / float64(recent)
	}
	return f
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return copyTime(b)
	case b == nil:
		return a
	case b.After(*a):
		return copyTime(b)
	default:
		return a
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
