package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// settingField points at one addressable Settings field.
type settingField struct {
	intPtr   *int
	floatPtr *float64
}

// settingFields maps the public key of every tunable setting to its field
// in s. Keys match the JSON names used by the admin API.
func settingFields(s *models.Settings) map[string]settingField {
	i := func(p *int) settingField { return settingField{intPtr: p} }
	f := func(p *float64) settingField { return settingField{floatPtr: p} }
	return map[string]settingField{
		"recentActivityDays":       i(&s.RecentActivityDays),
		"noActivityDays":           i(&s.NoActivityDays),
		"criticalNoActivityDays":   i(&s.CriticalNoActivityDays),
		"lowEngagementEntries":     i(&s.LowEngagementEntries),
		"adherenceGreenMinimum":    i(&s.AdherenceGreenMinimum),
		"adherenceAmberMinimum":    i(&s.AdherenceAmberMinimum),
		"maxClientsPerCoach":       i(&s.MaxClientsPerCoach),
		"minClientsPerCoach":       i(&s.MinClientsPerCoach),
		"maxMembersPerCohort":      i(&s.MaxMembersPerCohort),
		"minMembersPerCohort":      i(&s.MinMembersPerCohort),
		"criticalInactivityWeight": i(&s.CriticalInactivityWeight),
		"inactivityWeight":         i(&s.InactivityWeight),
		"lowEngagementWeight":      i(&s.LowEngagementWeight),
		"completenessWeight":       i(&s.CompletenessWeight),
		"loadImbalanceWeight":      i(&s.LoadImbalanceWeight),
		"redThreshold":             i(&s.RedThreshold),
		"amberThreshold":           i(&s.AmberThreshold),
		"growthDropAmberPercent":   f(&s.GrowthDropAmberPercent),
		"growthDropRedPercent":     f(&s.GrowthDropRedPercent),
		"completionAmberFloor":     f(&s.CompletionAmberFloor),
		"completionRedFloor":       f(&s.CompletionRedFloor),
		"inactiveShareAmber":       f(&s.InactiveShareAmber),
		"inactiveShareRed":         f(&s.InactiveShareRed),
		"loadRatioSevereFactor":    f(&s.LoadRatioSevereFactor),
		"emptyCohortArchiveDays":   i(&s.EmptyCohortArchiveDays),
		"trendDeadbandPercent":     f(&s.TrendDeadbandPercent),
	}
}

// SettingKeys returns every tunable key in sorted order.
func SettingKeys() []string {
	var s models.Settings
	fields := settingFields(&s)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lookupKey matches key case-insensitively against the known setting keys.
func lookupKey(fields map[string]settingField, key string) (string, bool) {
	if _, ok := fields[key]; ok {
		return key, true
	}
	for k := range fields {
		if strings.EqualFold(k, key) {
			return k, true
		}
	}
	return "", false
}

// ApplySettingOverrides overlays overrides onto base. Values may be strings
// (settings table rows) or YAML scalars. Unknown keys and values that cannot
// be coerced are skipped and reported; the result is not clamped.
func ApplySettingOverrides(base models.Settings, overrides map[string]any) (models.Settings, []string) {
	out := base
	fields := settingFields(&out)

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var problems []string
	for _, raw := range keys {
		key, ok := lookupKey(fields, raw)
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown setting %q", raw))
			continue
		}
		field := fields[key]
		val := overrides[raw]
		if field.intPtr != nil {
			n, err := toWholeInt(val)
			if err != nil {
				problems = append(problems, fmt.Sprintf("setting %s: %v", key, err))
				continue
			}
			*field.intPtr = n
			continue
		}
		f, err := cast.ToFloat64E(val)
		if err != nil {
			problems = append(problems, fmt.Sprintf("setting %s: %v", key, err))
			continue
		}
		*field.floatPtr = f
	}
	return out, problems
}

// toWholeInt coerces v to an int, rejecting fractional values that
// cast.ToIntE would truncate.
func toWholeInt(v any) (int, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a whole number", v)
	}
	return int(f), nil
}

// SettingsMap renders s as key/value pairs for display.
func SettingsMap(s models.Settings) map[string]string {
	fields := settingFields(&s)
	out := make(map[string]string, len(fields))
	for k, f := range fields {
		if f.intPtr != nil {
			out[k] = cast.ToString(*f.intPtr)
			continue
		}
		out[k] = cast.ToString(*f.floatPtr)
	}
	return out
}

// ValidateSetting checks that key is known and value coerces to its type.
// It returns the canonical key.
func ValidateSetting(key, value string) (string, error) {
	var s models.Settings
	fields := settingFields(&s)
	canonical, ok := lookupKey(fields, key)
	if !ok {
		return "", fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(SettingKeys(), ", "))
	}
	if fields[canonical].intPtr != nil {
		if _, err := toWholeInt(value); err != nil {
			return "", fmt.Errorf("setting %s expects an integer: %w", canonical, err)
		}
		return canonical, nil
	}
	if _, err := cast.ToFloat64E(value); err != nil {
		return "", fmt.Errorf("setting %s expects a number: %w", canonical, err)
	}
	return canonical, nil
}

// SettingsLoader resolves the Settings snapshot for one pass.
// Precedence: settings table > config overrides > built-in defaults, then
// Clamp.
type SettingsLoader interface {
	Load(ctx context.Context) (models.Settings, error)
}

type settingsLoader struct {
	store     SettingsStore
	overrides map[string]any
}

// NewSettingsLoader creates a SettingsLoader. store may be nil, in which
// case only config overrides apply.
func NewSettingsLoader(store SettingsStore, configOverrides map[string]any) SettingsLoader {
	return &settingsLoader{store: store, overrides: configOverrides}
}

// Load always returns a usable, clamped snapshot. The error reports a
// failed store read; the snapshot then reflects config and defaults only.
func (l *settingsLoader) Load(ctx context.Context) (models.Settings, error) {
	s, _ := ApplySettingOverrides(models.DefaultSettings(), l.overrides)
	if l.store == nil {
		return s.Clamp(), nil
	}

	rows, err := l.store.SettingOverrides(ctx)
	if err != nil {
		return s.Clamp(), fmt.Errorf("loading settings overrides: %w", err)
	}
	dbOverrides := make(map[string]any, len(rows))
	for k, v := range rows {
		dbOverrides[k] = v
	}
	s, _ = ApplySettingOverrides(s, dbOverrides)
	return s.Clamp(), nil
}
