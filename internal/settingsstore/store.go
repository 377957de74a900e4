// Package settingsstore persists named filter settings profiles in SQLite.
package settingsstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// DefaultProfile is the profile used when none is named.
const DefaultProfile = "default"

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidName     = errors.New("invalid profile name")
)

type Profile struct {
	Name      string         `json:"name"`
	Settings  model.Settings `json:"settings"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
}

// Store keeps profiles in a profiles table, with allow and block rules in
// profile_rules in list order.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string, logger logging.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir for %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		logger.Warn("sqlite pragmas failed", logging.Field{Key: "error", Value: err})
	}
	s, err := New(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New runs the embedded schema against db.
func New(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &Store{db: db, logger: logger.With(logging.Field{Key: "component", Value: "settingsstore"})}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NormalizeName lower-cases a profile name and keeps [a-z0-9-_.].
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	name = strings.ReplaceAll(name, " ", "-")
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return b.String(), nil
}

// Get returns the named profile.
func (s *Store) Get(ctx context.Context, name string) (*Profile, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT name, severity_threshold, strict_mode, created_at, updated_at
         FROM profiles
         WHERE name = ?
         LIMIT 1`,
		name,
	)
	var p Profile
	var strict int
	if err := row.Scan(&p.Name, &p.Settings.SeverityThreshold, &strict, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}
		return nil, err
	}
	p.Settings.StrictMode = strict != 0
	if err := s.loadRules(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Settings returns the named profile's settings, or the defaults when it
// does not exist.
func (s *Store) Settings(ctx context.Context, name string) (model.Settings, error) {
	p, err := s.Get(ctx, name)
	if errors.Is(err, ErrProfileNotFound) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	return p.Settings, nil
}

func (s *Store) loadRules(ctx context.Context, p *Profile) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT list, pattern FROM profile_rules WHERE profile = ? ORDER BY list, position`, p.Name)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	p.Settings.AllowList = []string{}
	p.Settings.BlockList = []string{}
	for rows.Next() {
		var list, pattern string
		if err := rows.Scan(&list, &pattern); err != nil {
			return err
		}
		switch list {
		case "allow":
			p.Settings.AllowList = append(p.Settings.AllowList, pattern)
		case "block":
			p.Settings.BlockList = append(p.Settings.BlockList, pattern)
		}
	}
	return rows.Err()
}

// Put creates or replaces the named profile.
func (s *Store) Put(ctx context.Context, name string, settings model.Settings) (*Profile, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	settings = settings.Clone()
	settings.SeverityThreshold = model.ClampSeverity(settings.SeverityThreshold)
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	strict := 0
	if settings.StrictMode {
		strict = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (name, severity_threshold, strict_mode, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET
             severity_threshold = excluded.severity_threshold,
             strict_mode = excluded.strict_mode,
             updated_at = excluded.updated_at`,
		name, settings.SeverityThreshold, strict, now, now,
	); err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM profile_rules WHERE profile = ?`, name); err != nil {
		return nil, fmt.Errorf("clear rules: %w", err)
	}
	for list, patterns := range map[string][]string{"allow": settings.AllowList, "block": settings.BlockList} {
		for i, pattern := range patterns {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO profile_rules (profile, list, position, pattern) VALUES (?, ?, ?, ?)`,
				name, list, i, pattern,
			); err != nil {
				return nil, fmt.Errorf("insert %s rule: %w", list, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit profile: %w", err)
	}
	s.logger.Debug("saved profile", logging.Field{Key: "name", Value: name})
	return s.Get(ctx, name)
}

// Patch applies p to the named profile, starting from the defaults when it
// does not exist yet.
func (s *Store) Patch(ctx context.Context, name string, p model.SettingsPatch) (*Profile, error) {
	cur, err := s.Settings(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.Put(ctx, name, p.Apply(cur))
}

// List returns every profile ordered by name.
func (s *Store) List(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Profile, 0, len(names))
	for _, n := range names {
		p, err := s.Get(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	name, err := NormalizeName(name)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Explicit, since foreign_keys is a per-connection pragma.
	if _, err := tx.ExecContext(ctx, `DELETE FROM profile_rules WHERE profile = ?`, name); err != nil {
		return fmt.Errorf("delete rules: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return tx.Commit()
}
