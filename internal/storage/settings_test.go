package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/valter-silva-au/coach-pulse/pkg/models"
	"pgregory.net/rapid"
)

type stubSettingsStore struct {
	rows map[string]string
	err  error
}

func (s stubSettingsStore) SettingOverrides(context.Context) (map[string]string, error) {
	return s.rows, s.err
}

func (s stubSettingsStore) SetSetting(context.Context, string, string) error { return nil }

func TestApplySettingOverrides(t *testing.T) {
	got, problems := ApplySettingOverrides(models.DefaultSettings(), map[string]any{
		"redThreshold":       "60",
		"completionRedFloor": 0.3,
		"NOACTIVITYDAYS":     21,
		"bogus":              1,
		"amberThreshold":     "many",
	})

	if got.RedThreshold != 60 || got.CompletionRedFloor != 0.3 || got.NoActivityDays != 21 {
		t.Errorf("settings = %+v", got)
	}
	if got.AmberThreshold != models.DefaultSettings().AmberThreshold {
		t.Errorf("bad value applied: %d", got.AmberThreshold)
	}
	if len(problems) != 2 {
		t.Fatalf("problems = %v, want 2", problems)
	}
	joined := strings.Join(problems, "; ")
	if !strings.Contains(joined, `"bogus"`) || !strings.Contains(joined, "amberThreshold") {
		t.Errorf("problems = %v", problems)
	}
}

func TestApplySettingOverrides_RejectsFractionalIntegers(t *testing.T) {
	defaults := models.DefaultSettings()
	got, problems := ApplySettingOverrides(defaults, map[string]any{
		"redThreshold":   "5.5",
		"amberThreshold": 2.9,
		"noActivityDays": "21.0",
	})

	if got.RedThreshold != defaults.RedThreshold || got.AmberThreshold != defaults.AmberThreshold {
		t.Errorf("fractional values applied: red=%d amber=%d", got.RedThreshold, got.AmberThreshold)
	}
	if got.NoActivityDays != 21 {
		t.Errorf("NoActivityDays = %d, want 21", got.NoActivityDays)
	}
	if len(problems) != 2 {
		t.Fatalf("problems = %v, want 2", problems)
	}
	joined := strings.Join(problems, "; ")
	if !strings.Contains(joined, "redThreshold") || !strings.Contains(joined, "amberThreshold") {
		t.Errorf("problems = %v", problems)
	}
}

func TestValidateSetting(t *testing.T) {
	tests := []struct {
		key, value string
		want       string
		wantErr    bool
	}{
		{"redThreshold", "55", "redThreshold", false},
		{"redthreshold", "55", "redThreshold", false},
		{"redThreshold", "5.5", "", true},
		{"completionRedFloor", "0.35", "completionRedFloor", false},
		{"completionRedFloor", "low", "", true},
		{"nope", "1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := ValidateSetting(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSettingsMap_CoversEveryKey(t *testing.T) {
	m := SettingsMap(models.DefaultSettings())
	for _, k := range SettingKeys() {
		if _, ok := m[k]; !ok {
			t.Errorf("SettingsMap missing %s", k)
		}
	}
	if m["redThreshold"] != "50" || m["completionRedFloor"] != "0.4" {
		t.Errorf("SettingsMap = %v", m)
	}
}

func TestSettingsLoader_Precedence(t *testing.T) {
	store := stubSettingsStore{rows: map[string]string{"redThreshold": "80"}}
	loader := NewSettingsLoader(store, map[string]any{"redThreshold": 70, "amberThreshold": 20})

	s, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.RedThreshold != 80 {
		t.Errorf("RedThreshold = %d, want settings table value 80", s.RedThreshold)
	}
	if s.AmberThreshold != 20 {
		t.Errorf("AmberThreshold = %d, want config value 20", s.AmberThreshold)
	}
	if s.NoActivityDays != models.DefaultSettings().NoActivityDays {
		t.Errorf("NoActivityDays = %d, want default", s.NoActivityDays)
	}
}

func TestSettingsLoader_StoreFailureFallsBack(t *testing.T) {
	loader := NewSettingsLoader(stubSettingsStore{err: errors.New("locked")}, map[string]any{"redThreshold": 70})

	s, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("expected store error")
	}
	if s.RedThreshold != 70 {
		t.Errorf("RedThreshold = %d, want config fallback 70", s.RedThreshold)
	}
}

func TestSettingsLoader_Clamps(t *testing.T) {
	loader := NewSettingsLoader(stubSettingsStore{rows: map[string]string{"amberThreshold": "90", "redThreshold": "40"}}, nil)

	s, _ := loader.Load(context.Background())
	if s.AmberThreshold >= s.RedThreshold {
		t.Errorf("contradictory thresholds survived: amber %d red %d", s.AmberThreshold, s.RedThreshold)
	}
}

// =============================================================================
// Property 8: Loaded Settings Are Always Usable
// =============================================================================

// Feature: settings, Property 8: Loaded Settings Are Always Usable
// *For any* set of string overrides, Load SHALL return settings that are
// already clamped.
//
// **Validates: Bad overrides degrade to safe values instead of failing**
func TestProperty8_LoadedSettingsAreClamped(t *testing.T) {
	keys := SettingKeys()
	rapid.Check(t, func(rt *rapid.T) {
		rows := map[string]string{}
		n := rapid.IntRange(0, 8).Draw(rt, "n")
		for i := 0; i < n; i++ {
			k := rapid.SampledFrom(keys).Draw(rt, "key")
			rows[k] = rapid.SampledFrom([]string{"-5", "0", "1", "3", "50", "0.5", "101", "x"}).Draw(rt, "value")
		}

		s, err := NewSettingsLoader(stubSettingsStore{rows: rows}, nil).Load(context.Background())
		if err != nil {
			rt.Fatalf("Load: %v", err)
		}
		if s != s.Clamp() {
			rt.Fatalf("loaded settings not clamped: %+v", s)
		}
		if s.AmberThreshold >= s.RedThreshold || s.CriticalNoActivityDays <= s.NoActivityDays {
			rt.Fatalf("contradictory settings: %+v", s)
		}
	})
}
