// Package storage provides the SQLite-backed repository the engine reads
// coaching records and settings from.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/valter-silva-au/coach-pulse/pkg/models"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO
)

// MetricsRepository is the read side the engine depends on. Every method
// takes a context so a slow read can be abandoned by its caller.
type MetricsRepository interface {
	Users(ctx context.Context) ([]models.User, error)
	Cohorts(ctx context.Context) ([]models.Cohort, error)
	Memberships(ctx context.Context) ([]models.Membership, error)
	Entries(ctx context.Context, since time.Time) ([]models.Entry, error)
	SettingsStore
}

// SettingsStore persists operator overrides of Settings keys.
type SettingsStore interface {
	SettingOverrides(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// RecordWriter loads records into the store. Used by fixture import.
type RecordWriter interface {
	SaveUsers(ctx context.Context, users []models.User) error
	SaveCohorts(ctx context.Context, cohorts []models.Cohort) error
	SaveMemberships(ctx context.Context, memberships []models.Membership) error
	SaveEntries(ctx context.Context, entries []models.Entry) error
}

// Store is the SQLite implementation of MetricsRepository and RecordWriter.
// It is safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ MetricsRepository = (*Store)(nil)
	_ RecordWriter      = (*Store)(nil)
)

// Open creates a Store at dbPath, creating tables if needed. ":memory:"
// opens a private in-memory database held on a single connection.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		role TEXT NOT NULL,
		active INTEGER DEFAULT 1,
		created_at DATETIME NOT NULL,
		last_active_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS cohorts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		coach_id TEXT,
		created_at DATETIME NOT NULL,
		archived INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS memberships (
		cohort_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		joined_at DATETIME NOT NULL,
		left_at DATETIME,
		PRIMARY KEY (cohort_id, user_id, joined_at)
	);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		completed INTEGER DEFAULT 0,
		fields_total INTEGER DEFAULT 0,
		fields_filled INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_user ON entries(user_id);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Users returns every user ordered by id.
func (s *Store) Users(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(email, ''), role, active, created_at, last_active_at
		FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var role string
		var active int
		var lastActive sql.NullTime
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &active, &u.CreatedAt, &lastActive); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		u.Role = models.Role(role)
		u.Active = active != 0
		u.CreatedAt = u.CreatedAt.UTC()
		u.LastActiveAt = nullTime(lastActive)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Cohorts returns every cohort, archived ones included, ordered by id.
func (s *Store) Cohorts(ctx context.Context) ([]models.Cohort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(coach_id, ''), created_at, archived
		FROM cohorts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying cohorts: %w", err)
	}
	defer rows.Close()

	var cohorts []models.Cohort
	for rows.Next() {
		var c models.Cohort
		var archived int
		if err := rows.Scan(&c.ID, &c.Name, &c.CoachID, &c.CreatedAt, &archived); err != nil {
			return nil, fmt.Errorf("scanning cohort: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.Archived = archived != 0
		cohorts = append(cohorts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cohorts: %w", err)
	}
	return cohorts, nil
}

// Memberships returns every membership, past and current.
func (s *Store) Memberships(ctx context.Context) ([]models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT cohort_id, user_id, joined_at, left_at
		FROM memberships ORDER BY cohort_id, user_id, joined_at`)
	if err != nil {
		return nil, fmt.Errorf("querying memberships: %w", err)
	}
	defer rows.Close()

	var memberships []models.Membership
	for rows.Next() {
		var m models.Membership
		var left sql.NullTime
		if err := rows.Scan(&m.CohortID, &m.UserID, &m.JoinedAt, &left); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		m.JoinedAt = m.JoinedAt.UTC()
		m.LeftAt = nullTime(left)
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memberships: %w", err)
	}
	return memberships, nil
}

// Entries returns entries created at or after since, oldest first.
func (s *Store) Entries(ctx context.Context, since time.Time) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, created_at, completed, fields_total, fields_filled
		FROM entries WHERE created_at >= ? ORDER BY created_at, id`, dbTime(since))
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var e models.Entry
		var completed int
		if err := rows.Scan(&e.ID, &e.UserID, &e.CreatedAt, &completed, &e.FieldsTotal, &e.FieldsFilled); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		e.Completed = completed != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// SettingOverrides returns the raw key/value rows of the settings table.
func (s *Store) SettingOverrides(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	return out, nil
}

// SetSetting upserts one settings row.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Truncate(time.Second))
	if err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}

// SaveUsers upserts users in a single transaction.
func (s *Store) SaveUsers(ctx context.Context, users []models.User) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, u := range users {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO users (id, name, email, role, active, created_at, last_active_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				u.ID, u.Name, u.Email, string(u.Role), boolToInt(u.Active), dbTime(u.CreatedAt), dbNullTime(u.LastActiveAt))
			if err != nil {
				return fmt.Errorf("saving user %s: %w", u.ID, err)
			}
		}
		return nil
	})
}

// SaveCohorts upserts cohorts in a single transaction.
func (s *Store) SaveCohorts(ctx context.Context, cohorts []models.Cohort) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range cohorts {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO cohorts (id, name, coach_id, created_at, archived)
				VALUES (?, ?, ?, ?, ?)`,
				c.ID, c.Name, c.CoachID, dbTime(c.CreatedAt), boolToInt(c.Archived))
			if err != nil {
				return fmt.Errorf("saving cohort %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// SaveMemberships upserts memberships in a single transaction.
func (s *Store) SaveMemberships(ctx context.Context, memberships []models.Membership) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range memberships {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO memberships (cohort_id, user_id, joined_at, left_at)
				VALUES (?, ?, ?, ?)`,
				m.CohortID, m.UserID, dbTime(m.JoinedAt), dbNullTime(m.LeftAt))
			if err != nil {
				return fmt.Errorf("saving membership %s/%s: %w", m.CohortID, m.UserID, err)
			}
		}
		return nil
	})
}

// SaveEntries upserts entries in a single transaction.
func (s *Store) SaveEntries(ctx context.Context, entries []models.Entry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO entries (id, user_id, created_at, completed, fields_total, fields_filled)
				VALUES (?, ?, ?, ?, ?, ?)`,
				e.ID, e.UserID, dbTime(e.CreatedAt), boolToInt(e.Completed), e.FieldsTotal, e.FieldsFilled)
			if err != nil {
				return fmt.Errorf("saving entry %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// dbTime normalises timestamps so lexical comparison in SQL matches time
// order.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func dbNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
