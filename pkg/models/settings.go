package models

// Settings holds the operator-tunable thresholds and weights read by every
// scoring and detection pass. The engine never mutates Settings; it takes one
// snapshot per pass and passes it explicitly.
type Settings struct {
	// Activity windows, in days.
	RecentActivityDays     int `json:"recentActivityDays" yaml:"recentActivityDays" mapstructure:"recentActivityDays"`
	NoActivityDays         int `json:"noActivityDays" yaml:"noActivityDays" mapstructure:"noActivityDays"`
	CriticalNoActivityDays int `json:"criticalNoActivityDays" yaml:"criticalNoActivityDays" mapstructure:"criticalNoActivityDays"`

	// Engagement and adherence, on the same scale as entry counts.
	LowEngagementEntries  int `json:"lowEngagementEntries" yaml:"lowEngagementEntries" mapstructure:"lowEngagementEntries"`
	AdherenceGreenMinimum int `json:"adherenceGreenMinimum" yaml:"adherenceGreenMinimum" mapstructure:"adherenceGreenMinimum"`
	AdherenceAmberMinimum int `json:"adherenceAmberMinimum" yaml:"adherenceAmberMinimum" mapstructure:"adherenceAmberMinimum"`

	// Load bounds.
	MaxClientsPerCoach  int `json:"maxClientsPerCoach" yaml:"maxClientsPerCoach" mapstructure:"maxClientsPerCoach"`
	MinClientsPerCoach  int `json:"minClientsPerCoach" yaml:"minClientsPerCoach" mapstructure:"minClientsPerCoach"`
	MaxMembersPerCohort int `json:"maxMembersPerCohort" yaml:"maxMembersPerCohort" mapstructure:"maxMembersPerCohort"`
	MinMembersPerCohort int `json:"minMembersPerCohort" yaml:"minMembersPerCohort" mapstructure:"minMembersPerCohort"`

	// Signal weights.
	CriticalInactivityWeight int `json:"criticalInactivityWeight" yaml:"criticalInactivityWeight" mapstructure:"criticalInactivityWeight"`
	InactivityWeight         int `json:"inactivityWeight" yaml:"inactivityWeight" mapstructure:"inactivityWeight"`
	LowEngagementWeight      int `json:"lowEngagementWeight" yaml:"lowEngagementWeight" mapstructure:"lowEngagementWeight"`
	CompletenessWeight       int `json:"completenessWeight" yaml:"completenessWeight" mapstructure:"completenessWeight"`
	LoadImbalanceWeight      int `json:"loadImbalanceWeight" yaml:"loadImbalanceWeight" mapstructure:"loadImbalanceWeight"`

	// Tier boundaries on the summed score.
	RedThreshold   int `json:"redThreshold" yaml:"redThreshold" mapstructure:"redThreshold"`
	AmberThreshold int `json:"amberThreshold" yaml:"amberThreshold" mapstructure:"amberThreshold"`

	// Anomaly checks.
	GrowthDropAmberPercent float64 `json:"growthDropAmberPercent" yaml:"growthDropAmberPercent" mapstructure:"growthDropAmberPercent"`
	GrowthDropRedPercent   float64 `json:"growthDropRedPercent" yaml:"growthDropRedPercent" mapstructure:"growthDropRedPercent"`
	CompletionAmberFloor   float64 `json:"completionAmberFloor" yaml:"completionAmberFloor" mapstructure:"completionAmberFloor"`
	CompletionRedFloor     float64 `json:"completionRedFloor" yaml:"completionRedFloor" mapstructure:"completionRedFloor"`
	InactiveShareAmber     float64 `json:"inactiveShareAmber" yaml:"inactiveShareAmber" mapstructure:"inactiveShareAmber"`
	InactiveShareRed       float64 `json:"inactiveShareRed" yaml:"inactiveShareRed" mapstructure:"inactiveShareRed"`
	LoadRatioSevereFactor  float64 `json:"loadRatioSevereFactor" yaml:"loadRatioSevereFactor" mapstructure:"loadRatioSevereFactor"`

	// Opportunity checks.
	EmptyCohortArchiveDays int `json:"emptyCohortArchiveDays" yaml:"emptyCohortArchiveDays" mapstructure:"emptyCohortArchiveDays"`

	// Trends.
	TrendDeadbandPercent float64 `json:"trendDeadbandPercent" yaml:"trendDeadbandPercent" mapstructure:"trendDeadbandPercent"`
}

// DefaultSettings returns the built-in thresholds used when neither the
// config file nor the settings store override a key.
func DefaultSettings() Settings {
	return Settings{
		RecentActivityDays:     7,
		NoActivityDays:         14,
		CriticalNoActivityDays: 30,

		LowEngagementEntries:  3,
		AdherenceGreenMinimum: 6,
		AdherenceAmberMinimum: 4,

		MaxClientsPerCoach:  25,
		MinClientsPerCoach:  5,
		MaxMembersPerCohort: 30,
		MinMembersPerCohort: 3,

		CriticalInactivityWeight: 50,
		InactivityWeight:         25,
		LowEngagementWeight:      20,
		CompletenessWeight:       20,
		LoadImbalanceWeight:      10,

		RedThreshold:   50,
		AmberThreshold: 10,

		GrowthDropAmberPercent: 25,
		GrowthDropRedPercent:   50,
		CompletionAmberFloor:   0.6,
		CompletionRedFloor:     0.4,
		InactiveShareAmber:     0.25,
		InactiveShareRed:       0.5,
		LoadRatioSevereFactor:  1.5,

		EmptyCohortArchiveDays: 30,

		TrendDeadbandPercent: 5,
	}
}

// Clamp returns a copy of s repaired into a safe range. It never fails:
// out-of-range values fall back to defaults and contradictory pairs are
// nudged apart so a bad configuration degrades instead of crashing a pass.
func (s Settings) Clamp() Settings {
	d := DefaultSettings()
	c := s

	positive := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	nonNegative := func(v *int, def int) {
		if *v < 0 {
			*v = def
		}
	}

	positive(&c.RecentActivityDays, d.RecentActivityDays)
	positive(&c.NoActivityDays, d.NoActivityDays)
	positive(&c.CriticalNoActivityDays, d.CriticalNoActivityDays)
	if c.CriticalNoActivityDays <= c.NoActivityDays {
		c.CriticalNoActivityDays = c.NoActivityDays + 1
	}

	nonNegative(&c.LowEngagementEntries, d.LowEngagementEntries)
	positive(&c.AdherenceGreenMinimum, d.AdherenceGreenMinimum)
	nonNegative(&c.AdherenceAmberMinimum, d.AdherenceAmberMinimum)
	if c.AdherenceAmberMinimum >= c.AdherenceGreenMinimum {
		c.AdherenceAmberMinimum = c.AdherenceGreenMinimum - 1
	}

	positive(&c.MaxClientsPerCoach, d.MaxClientsPerCoach)
	nonNegative(&c.MinClientsPerCoach, d.MinClientsPerCoach)
	if c.MinClientsPerCoach >= c.MaxClientsPerCoach {
		c.MinClientsPerCoach, c.MaxClientsPerCoach = d.MinClientsPerCoach, d.MaxClientsPerCoach
	}
	positive(&c.MaxMembersPerCohort, d.MaxMembersPerCohort)
	nonNegative(&c.MinMembersPerCohort, d.MinMembersPerCohort)
	if c.MinMembersPerCohort >= c.MaxMembersPerCohort {
		c.MinMembersPerCohort, c.MaxMembersPerCohort = d.MinMembersPerCohort, d.MaxMembersPerCohort
	}

	nonNegative(&c.CriticalInactivityWeight, d.CriticalInactivityWeight)
	nonNegative(&c.InactivityWeight, d.InactivityWeight)
	nonNegative(&c.LowEngagementWeight, d.LowEngagementWeight)
	nonNegative(&c.CompletenessWeight, d.CompletenessWeight)
	nonNegative(&c.LoadImbalanceWeight, d.LoadImbalanceWeight)
	// No recorded activity is never weighed below ordinary inactivity.
	if c.CriticalInactivityWeight < c.InactivityWeight {
		c.CriticalInactivityWeight = c.InactivityWeight
	}

	positive(&c.RedThreshold, d.RedThreshold)
	positive(&c.AmberThreshold, d.AmberThreshold)
	if c.AmberThreshold >= c.RedThreshold {
		c.AmberThreshold, c.RedThreshold = d.AmberThreshold, d.RedThreshold
	}
	// Load imbalance alone is never urgent.
	if c.LoadImbalanceWeight >= c.RedThreshold {
		c.LoadImbalanceWeight = c.RedThreshold - 1
	}

	c.GrowthDropAmberPercent = clampFloat(c.GrowthDropAmberPercent, 0, 100, d.GrowthDropAmberPercent)
	c.GrowthDropRedPercent = clampFloat(c.GrowthDropRedPercent, 0, 100, d.GrowthDropRedPercent)
	if c.GrowthDropRedPercent < c.GrowthDropAmberPercent {
		c.GrowthDropAmberPercent, c.GrowthDropRedPercent = d.GrowthDropAmberPercent, d.GrowthDropRedPercent
	}
	c.CompletionAmberFloor = clampFloat(c.CompletionAmberFloor, 0, 1, d.CompletionAmberFloor)
	c.CompletionRedFloor = clampFloat(c.CompletionRedFloor, 0, 1, d.CompletionRedFloor)
	if c.CompletionRedFloor > c.CompletionAmberFloor {
		c.CompletionAmberFloor, c.CompletionRedFloor = d.CompletionAmberFloor, d.CompletionRedFloor
	}
	c.InactiveShareAmber = clampFloat(c.InactiveShareAmber, 0, 1, d.InactiveShareAmber)
	c.InactiveShareRed = clampFloat(c.InactiveShareRed, 0, 1, d.InactiveShareRed)
	if c.InactiveShareRed < c.InactiveShareAmber {
		c.InactiveShareAmber, c.InactiveShareRed = d.InactiveShareAmber, d.InactiveShareRed
	}
	if c.LoadRatioSevereFactor < 1 {
		c.LoadRatioSevereFactor = d.LoadRatioSevereFactor
	}

	positive(&c.EmptyCohortArchiveDays, d.EmptyCohortArchiveDays)
	c.TrendDeadbandPercent = clampFloat(c.TrendDeadbandPercent, 0, 100, d.TrendDeadbandPercent)

	return c
}

// clampFloat returns def for NaN or out-of-range values.
func clampFloat(v, lo, hi, def float64) float64 {
	if v != v || v < lo || v > hi {
		return def
	}
	return v
}
