package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/dental-appointment-scheduling/internal/appointment"
	"github.com/hackgods/dental-appointment-scheduling/internal/config"
)

// Backend is what a storage driver provides to the binaries.
type Backend interface {
	appointment.Repository
	appointment.CatalogWriter
}

// Store is an opened storage backend selected by STORAGE_DRIVER.
type Store struct {
	Driver string
	Repo   Backend

	pool   *pgxpool.Pool
	sqlite *sql.DB
}

func Open(ctx context.Context, cfg config.Config) (*Store, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := ConnectPostgres(ctx, cfg.PostgresDSN, int32(cfg.PostgresMaxConns))
		if err != nil {
			return nil, err
		}
		return &Store{Driver: cfg.StorageDriver, Repo: appointment.NewPgRepository(pool), pool: pool}, nil
	case config.DriverSQLite:
		sqlDB, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Store{Driver: cfg.StorageDriver, Repo: appointment.NewSQLiteRepository(sqlDB), sqlite: sqlDB}, nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
}

// Migrate applies the embedded schema for the active driver.
func (s *Store) Migrate(ctx context.Context) error {
	if s.pool != nil {
		return RunPostgresMigrations(ctx, s.pool)
	}
	return RunSQLiteMigrations(ctx, s.sqlite)
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlite != nil {
		_ = s.sqlite.Close()
	}
}
