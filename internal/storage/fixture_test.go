package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleFixture = `
users:
  - id: coach-1
    name: Grace
    role: COACH
    active: true
    created_at: 2026-01-01T00:00:00Z
  - id: client-1
    name: Ada
    email: ada@example.com
    role: CLIENT
    active: true
    created_at: 2026-01-05T00:00:00Z
    last_active_at: 2026-03-01T08:00:00Z
cohorts:
  - id: co-1
    name: Spring
    coach_id: coach-1
    created_at: 2026-01-02T00:00:00Z
memberships:
  - cohort_id: co-1
    user_id: client-1
    joined_at: 2026-01-06T00:00:00Z
entries:
  - id: e-1
    user_id: client-1
    created_at: 2026-03-01T08:00:00Z
    completed: true
    fields_total: 5
    fields_filled: 4
settings:
  redThreshold: "60"
`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFixture(t *testing.T) {
	fx, err := LoadFixture(writeFixture(t, sampleFixture))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(fx.Users) != 2 || len(fx.Cohorts) != 1 || len(fx.Memberships) != 1 || len(fx.Entries) != 1 {
		t.Fatalf("fixture = %+v", fx)
	}
	if fx.Users[1].LastActiveAt == nil || !fx.Users[1].LastActiveAt.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("last_active_at = %v", fx.Users[1].LastActiveAt)
	}
	if fx.Entries[0].FieldsFilled != 4 || !fx.Entries[0].Completed {
		t.Errorf("entry = %+v", fx.Entries[0])
	}
}

func TestLoadFixture_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad role":       "users:\n  - id: u\n    role: OWNER\n",
		"missing id":     "users:\n  - role: CLIENT\n",
		"orphan entry":   "entries:\n  - id: e-1\n",
		"malformed yaml": "users: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFixture(writeFixture(t, body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestImportFixture(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fx, err := LoadFixture(writeFixture(t, sampleFixture))
	if err != nil {
		t.Fatal(err)
	}

	res, err := ImportFixture(ctx, s, s, fx)
	if err != nil {
		t.Fatalf("ImportFixture: %v", err)
	}
	if res.Users != 2 || res.Cohorts != 1 || res.Memberships != 1 || res.Entries != 1 || res.Settings != 1 {
		t.Errorf("result = %+v", res)
	}

	users, _ := s.Users(ctx)
	if len(users) != 2 {
		t.Errorf("stored %d users", len(users))
	}
	rows, _ := s.SettingOverrides(ctx)
	if rows["redThreshold"] != "60" {
		t.Errorf("settings = %v", rows)
	}
}

func TestImportFixture_RejectsBadSettingBeforeWriting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fx, _ := LoadFixture(writeFixture(t, strings.Replace(sampleFixture, `redThreshold: "60"`, `redThreshold: "high"`, 1)))

	if _, err := ImportFixture(ctx, s, s, fx); err == nil {
		t.Fatal("expected validation error")
	}
	if users, _ := s.Users(ctx); len(users) != 0 {
		t.Errorf("records written despite invalid settings: %d users", len(users))
	}
}
