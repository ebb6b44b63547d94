package store

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	mpostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// migrate brings the schema up to date. The DDL is per-engine because
// the engines disagree on serial columns; the statements the store
// runs afterwards are shared.
func (s *SQL) migrate() error {
	var (
		drv database.Driver
		dir string
		err error
	)
	switch s.flavor {
	case flavorPostgres:
		drv, err = mpostgres.WithInstance(s.db, &mpostgres.Config{})
		dir = "migrations/postgres"
	default:
		drv, err = msqlite.WithInstance(s.db, &msqlite.Config{})
		dir = "migrations/sqlite"
	}
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, s.flavor, drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
