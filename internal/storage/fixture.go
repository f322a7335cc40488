package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/valter-silva-au/coach-pulse/pkg/models"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML document accepted by `pulse import`.
type Fixture struct {
	Users       []models.User       `yaml:"users"`
	Cohorts     []models.Cohort     `yaml:"cohorts"`
	Memberships []models.Membership `yaml:"memberships"`
	Entries     []models.Entry      `yaml:"entries"`
	Settings    map[string]string   `yaml:"settings,omitempty"`
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Users       int
	Cohorts     int
	Memberships int
	Entries     int
	Settings    int
}

// LoadFixture parses a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	for i, u := range fx.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("fixture user %d has no id", i)
		}
		switch u.Role {
		case models.RoleAdmin, models.RoleCoach, models.RoleClient:
		default:
			return nil, fmt.Errorf("fixture user %s has invalid role %q", u.ID, u.Role)
		}
	}
	for i, e := range fx.Entries {
		if e.ID == "" || e.UserID == "" {
			return nil, fmt.Errorf("fixture entry %d needs id and user_id", i)
		}
	}
	return &fx, nil
}

// ImportFixture writes every record of fx. Settings rows are validated
// before anything is written.
func ImportFixture(ctx context.Context, w RecordWriter, settings SettingsStore, fx *Fixture) (ImportResult, error) {
	var res ImportResult
	canonical := make(map[string]string, len(fx.Settings))
	for k, v := range fx.Settings {
		key, err := ValidateSetting(k, v)
		if err != nil {
			return res, err
		}
		canonical[key] = v
	}

	if err := w.SaveUsers(ctx, fx.Users); err != nil {
		return res, err
	}
	res.Users = len(fx.Users)
	if err := w.SaveCohorts(ctx, fx.Cohorts); err != nil {
		return res, err
	}
	res.Cohorts = len(fx.Cohorts)
	if err := w.SaveMemberships(ctx, fx.Memberships); err != nil {
		return res, err
	}
	res.Memberships = len(fx.Memberships)
	if err := w.SaveEntries(ctx, fx.Entries); err != nil {
		return res, err
	}
	res.Entries = len(fx.Entries)

	if settings != nil {
		for k, v := range canonical {
			if err := settings.SetSetting(ctx, k, v); err != nil {
				return res, err
			}
			res.Settings++
		}
	}
	return res, nil
}
