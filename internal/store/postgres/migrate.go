package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/dvloznov/pocketsync/internal/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Migrations returns the embedded migrations sorted by version.
func Migrations() ([]Migration, error) {
	return readMigrations(migrationFS, "migrations")
}

func readMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("readMigrations: reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(file.Name())
		if matches == nil {
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, dir+"/"+file.Name())
		if err != nil {
			return nil, fmt.Errorf("readMigrations: reading file %s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: file.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// Migrate applies every pending embedded migration and returns how many ran.
// A previously applied migration whose checksum changed is an error.
func Migrate(ctx context.Context, db *sql.DB, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	if err := ensureSchemaMigrationsTable(ctx, db); err != nil {
		return 0, fmt.Errorf("Migrate: ensuring schema_migrations: %w", err)
	}

	migrations, err := Migrations()
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}

	applied, err := AppliedMigrations(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}

	appliedByVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		appliedByVersion[am.Version] = am
	}

	count := 0
	for _, m := range migrations {
		if am, ok := appliedByVersion[m.Version]; ok {
			if am.Checksum != "" && am.Checksum != m.Checksum {
				return count, fmt.Errorf("Migrate: migration %04d_%s changed after it was applied", m.Version, m.Name)
			}
			log.Debug().Int("version", m.Version).Str("name", m.Name).Msg("Migration already applied")
			continue
		}

		if err := applyMigration(ctx, db, m, appliedBy); err != nil {
			return count, fmt.Errorf("Migrate: applying %04d_%s: %w", m.Version, m.Name, err)
		}

		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration")
		count++
	}

	return count, nil
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureSchemaMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			checksum   TEXT,
			applied_by TEXT
		)`)
	return err
}

// AppliedMigrations retrieves the list of already applied migrations
func AppliedMigrations(ctx context.Context, db *sql.DB) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT version, name, applied_at, COALESCE(checksum, ''), COALESCE(applied_by, '')
		FROM schema_migrations
		ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: querying: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var am AppliedMigration
		if err := rows.Scan(&am.Version, &am.Name, &am.AppliedAt, &am.Checksum, &am.AppliedBy); err != nil {
			return nil, fmt.Errorf("AppliedMigrations: scanning: %w", err)
		}
		applied = append(applied, am)
	}
	return applied, rows.Err()
}

// applyMigration executes one migration and records it in a single transaction.
func applyMigration(ctx context.Context, db *sql.DB, m Migration, appliedBy string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("executing: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, checksum, applied_by)
		VALUES ($1, $2, $3, $4)`, m.Version, m.Name, m.Checksum, appliedBy); err != nil {
		return fmt.Errorf("recording: %w", err)
	}

	return tx.Commit()
}
