package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// migration is one versioned pair of SQL files on disk. File naming follows
// the golang-migrate convention: {version}_{name}.up.sql / .down.sql.
type migration struct {
	Version string
	UpFile  string
}

func (mg migration) downFile() string {
	return strings.Replace(mg.UpFile, ".up.sql", ".down.sql", 1)
}

// Migrator applies migration files from a directory, tracking applied
// versions in public.schema_migrations.
type Migrator struct {
	db  *sql.DB
	dir string
	log zerolog.Logger
}

func NewMigrator(db *sql.DB, migrationsDir string, log zerolog.Logger) *Migrator {
	return &Migrator{db: db, dir: migrationsDir, log: log}
}

// Up applies every pending migration in version order.
func (m *Migrator) Up(ctx context.Context) error {
	migs, err := m.discover()
	if err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, mg := range migs {
		if _, done := applied[mg.Version]; done {
			continue
		}
		if err := m.runFile(ctx, mg.UpFile,
			`INSERT INTO public.schema_migrations (version) VALUES ($1)`, mg.Version); err != nil {
			return fmt.Errorf("apply %s: %w", mg.UpFile, err)
		}
		m.log.Info().Str("migration", mg.UpFile).Msg("migration applied")
	}
	return nil
}

// Down rolls back the most recently applied migration, if any.
func (m *Migrator) Down(ctx context.Context) error {
	migs, err := m.discover()
	if err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	// Walk from the newest version back to the first applied one.
	for i := len(migs) - 1; i >= 0; i-- {
		mg := migs[i]
		if _, done := applied[mg.Version]; !done {
			continue
		}
		if err := m.runFile(ctx, mg.downFile(),
			`DELETE FROM public.schema_migrations WHERE version = $1`, mg.Version); err != nil {
			return fmt.Errorf("roll back %s: %w", mg.downFile(), err)
		}
		m.log.Info().Str("migration", mg.downFile()).Msg("migration rolled back")
		return nil
	}

	m.log.Info().Msg("no migrations to roll back")
	return nil
}

// runFile executes one SQL file and the bookkeeping statement in a single
// transaction.
func (m *Migrator) runFile(ctx context.Context, file, record string, args ...interface{}) error {
	body, err := os.ReadFile(filepath.Join(m.dir, file))
	if err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// discover lists the up-migrations in the directory, sorted by version.
func (m *Migrator) discover() ([]migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migs []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		migs = append(migs, migration{Version: extractVersion(name), UpFile: name})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]struct{}, error) {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `SELECT version FROM public.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = struct{}{}
	}
	return applied, rows.Err()
}

// extractVersion returns the numeric prefix from a migration filename,
// e.g. "000001_event_log.up.sql" yields "000001".
func extractVersion(filename string) string {
	if i := strings.IndexByte(filename, '_'); i > 0 {
		return filename[:i]
	}
	return filename
}
