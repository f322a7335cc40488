package models

import "time"

// Role is a platform user's role.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleCoach  Role = "COACH"
	RoleClient Role = "CLIENT"
)

// User is a platform account as read from the repository.
type User struct {
	ID           string     `yaml:"id" json:"id"`
	Name         string     `yaml:"name" json:"name"`
	Email        string     `yaml:"email,omitempty" json:"email,omitempty"`
	Role         Role       `yaml:"role" json:"role"`
	Active       bool       `yaml:"active" json:"active"`
	CreatedAt    time.Time  `yaml:"created_at" json:"createdAt"`
	LastActiveAt *time.Time `yaml:"last_active_at,omitempty" json:"lastActiveAt,omitempty"`
}

// Cohort is a coached group of clients.
type Cohort struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	CoachID   string    `yaml:"coach_id" json:"coachId"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
	Archived  bool      `yaml:"archived,omitempty" json:"archived,omitempty"`
}

// Membership links a client to a cohort. LeftAt is nil while the membership
// is current.
type Membership struct {
	CohortID string     `yaml:"cohort_id" json:"cohortId"`
	UserID   string     `yaml:"user_id" json:"userId"`
	JoinedAt time.Time  `yaml:"joined_at" json:"joinedAt"`
	LeftAt   *time.Time `yaml:"left_at,omitempty" json:"leftAt,omitempty"`
}

// Current reports whether the membership is active at t.
func (m Membership) Current(t time.Time) bool {
	if m.JoinedAt.After(t) {
		return false
	}
	return m.LeftAt == nil || m.LeftAt.After(t)
}

// Entry is a single client check-in.
type Entry struct {
	ID           string    `yaml:"id" json:"id"`
	UserID       string    `yaml:"user_id" json:"userId"`
	CreatedAt    time.Time `yaml:"created_at" json:"createdAt"`
	Completed    bool      `yaml:"completed" json:"completed"`
	FieldsTotal  int       `yaml:"fields_total" json:"fieldsTotal"`
	FieldsFilled int       `yaml:"fields_filled" json:"fieldsFilled"`
}

// Completeness returns the fraction of optional fields populated. An entry
// with no optional fields counts as complete.
func (e Entry) Completeness() float64 {
	if e.FieldsTotal <= 0 {
		return 1
	}
	filled := e.FieldsFilled
	if filled < 0 {
		filled = 0
	}
	if filled > e.FieldsTotal {
		filled = e.FieldsTotal
	}
	return float64(filled) / float64(e.FieldsTotal)
}

// PlatformCounters are the plain counters shown next to insights on the
// admin overview.
type PlatformCounters struct {
	TotalUsers          int     `json:"totalUsers"`
	Coaches             int     `json:"coaches"`
	Clients             int     `json:"clients"`
	ActiveCohorts       int     `json:"activeCohorts"`
	EntriesLast7Days    int     `json:"entriesLast7Days"`
	CompletionRate7Days float64 `json:"completionRate7Days"`
}
