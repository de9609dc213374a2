package store

import (
	"context"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator wraps golang-migrate over the embedded migration set.
type Migrator struct {
	m   *migrate.Migrate
	dsn string
}

// NewMigrator opens a migrator bound to dsn.
func NewMigrator(dsn string) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, err
	}
	return &Migrator{m: m, dsn: dsn}, nil
}

// Up applies every pending migration.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Upgrade migrates to a specific target version.
func (mg *Migrator) Upgrade(version uint) error {
	if err := mg.m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Downgrade migrates down to a specific target version.
func (mg *Migrator) Downgrade(version uint) error {
	if err := mg.m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Current returns the applied version and whether the schema is dirty.
func (mg *Migrator) Current() (uint, bool, error) {
	return mg.m.Version()
}

// History returns the versions in golang-migrate's schema_migrations
// bookkeeping table, in ascending order. The postgres driver keeps only the
// current version in that table, so earlier versions are not listed.
func (mg *Migrator) History(ctx context.Context) ([]uint, error) {
	conn, err := pgx.Connect(ctx, mg.dsn)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, "SELECT version FROM schema_migrations ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []uint
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, uint(v))
	}
	return versions, rows.Err()
}
