package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kalambet/folio/internal/profile"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store keeps a local copy of the profile bundle in SQLite, for sites that
// do not run a hosted content store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "folio.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// ReplaceBundle rewrites every row in one transaction; a second
	// connection would only ever wait on it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// ReplaceBundle swaps the stored bundle for b in one transaction. Records
// without an ID get a generated one. Slice order is kept as position.
func (s *Store) ReplaceBundle(b profile.Bundle) error {
	docs, err := bundleDocuments(b, time.Now().UTC())
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM documents"); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO documents (kind, id, position, body, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if _, err := stmt.Exec(d.Kind, d.ID, d.Position, d.Body, d.UpdatedAt.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("inserting %s %s: %w", d.Kind, d.ID, err)
		}
	}

	return tx.Commit()
}

func bundleDocuments(b profile.Bundle, now time.Time) ([]Document, error) {
	var docs []Document
	add := func(kind, id string, pos int, v any) error {
		body, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", kind, err)
		}
		if id == "" {
			id = uuid.NewString()
		}
		docs = append(docs, Document{Kind: kind, ID: id, Position: pos, Body: string(body), UpdatedAt: now})
		return nil
	}

	if b.Profile != nil {
		if err := add(KindProfile, "singleton-profile", 0, b.Profile); err != nil {
			return nil, err
		}
	}
	for i, e := range b.Experience {
		if err := add(KindExperience, e.ID, i, e); err != nil {
			return nil, err
		}
	}
	for i, p := range b.Projects {
		if err := add(KindProject, p.ID, i, p); err != nil {
			return nil, err
		}
	}
	for i, sk := range b.Skills {
		if err := add(KindSkill, sk.ID, i, sk); err != nil {
			return nil, err
		}
	}
	for i, e := range b.Education {
		if err := add(KindEducation, e.ID, i, e); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// LoadBundle reassembles the stored bundle in stored order. It returns
// ErrNotFound when nothing has been imported yet.
func (s *Store) LoadBundle() (profile.Bundle, error) {
	rows, err := s.db.Query(`SELECT kind, id, body FROM documents ORDER BY kind, position ASC`)
	if err != nil {
		return profile.Bundle{}, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var (
		b     profile.Bundle
		found bool
	)
	for rows.Next() {
		var kind, id, body string
		if err := rows.Scan(&kind, &id, &body); err != nil {
			return profile.Bundle{}, err
		}
		found = true
		if err := decodeInto(&b, kind, body); err != nil {
			return profile.Bundle{}, fmt.Errorf("decoding %s %s: %w", kind, id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return profile.Bundle{}, err
	}
	if !found {
		return profile.Bundle{}, ErrNotFound
	}
	return b, nil
}

func decodeInto(b *profile.Bundle, kind, body string) error {
	data := []byte(body)
	switch kind {
	case KindProfile:
		var p profile.Profile
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		b.Profile = &p
	case KindExperience:
		var e profile.Experience
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		b.Experience = append(b.Experience, e)
	case KindProject:
		var p profile.Project
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		b.Projects = append(b.Projects, p)
	case KindSkill:
		var sk profile.Skill
		if err := json.Unmarshal(data, &sk); err != nil {
			return err
		}
		b.Skills = append(b.Skills, sk)
	case KindEducation:
		var e profile.Education
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		b.Education = append(b.Education, e)
	default:
		return fmt.Errorf("unknown document kind %q", kind)
	}
	return nil
}

// Counts returns the number of stored documents per kind. Every kind is
// present in the result.
func (s *Store) Counts() (map[string]int, error) {
	counts := make(map[string]int, len(Kinds))
	for _, k := range Kinds {
		counts[k] = 0
	}

	rows, err := s.db.Query(`SELECT kind, COUNT(*) FROM documents GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// UpdatedAt returns when the bundle was last replaced, or ErrNotFound.
func (s *Store) UpdatedAt() (time.Time, error) {
	var raw sql.NullString
	if err := s.db.QueryRow(`SELECT MAX(updated_at) FROM documents`).Scan(&raw); err != nil {
		return time.Time{}, err
	}
	if !raw.Valid {
		return time.Time{}, ErrNotFound
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return t, nil
}
