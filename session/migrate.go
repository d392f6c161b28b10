package session

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies the embedded schema migrations to the database at dsn.
// It uses its own connection, closed before returning. Running it against
// an up-to-date schema is a no-op.
func Migrate(dialect Dialect, dsn string) error {
	if dsn == "" {
		return errors.New("migrate: empty dsn")
	}

	db, err := sql.Open(dialect.driverName(), dialect.dsn(dsn))
	if err != nil {
		return fmt.Errorf("migrate open: %w", err)
	}

	var dbDriver database.Driver
	switch dialect {
	case DialectPostgres:
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	case DialectSQLite:
		dbDriver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		err = fmt.Errorf("unknown dialect %d", dialect)
	}
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		_ = dbDriver.Close()
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dialect.String(), dbDriver)
	if err != nil {
		_ = sourceDriver.Close()
		_ = dbDriver.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
