package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Every statement uses IF NOT EXISTS, so re-running a migration is a no-op.
func upMigrations(dir string) ([]string, error) {
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, dir+"/"+entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func RunPostgresMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := upMigrations("migrations/postgres")
	if err != nil {
		return err
	}
	for _, file := range files {
		migration, err := migrationsFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		// no arguments, so pgx sends it over the simple protocol and
		// multiple statements are allowed
		if _, err := pool.Exec(ctx, string(migration)); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}
	return nil
}

func RunSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	files, err := upMigrations("migrations/sqlite")
	if err != nil {
		return err
	}
	for _, file := range files {
		migration, err := migrationsFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := db.ExecContext(ctx, string(migration)); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}
	return nil
}
