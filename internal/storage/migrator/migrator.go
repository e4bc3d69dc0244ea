package migrator

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"shopauth/migrations"
)

const DefaultTable = "schema_migrations"

// Up applies every pending migration found in the embedded dir against
// databaseURL. It reports false when the schema was already current.
func Up(dir, databaseURL string) (bool, error) {
	const op = "migrator.Up"

	src, err := iofs.New(migrations.FS, dir)
	if err != nil {
		return false, fmt.Errorf("%s: source: %w", op, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

// SQLiteURL builds a golang-migrate URL for the sqlite3 driver.
func SQLiteURL(path, table string) string {
	if table == "" {
		table = DefaultTable
	}

	return fmt.Sprintf("sqlite3://%s?x-migrations-table=%s", path, url.QueryEscape(table))
}

// PostgresURL rewrites a postgres:// DSN for the pgx v5 driver.
func PostgresURL(dsn, table string) string {
	if table == "" {
		table = DefaultTable
	}

	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			dsn = "pgx5://" + strings.TrimPrefix(dsn, scheme)
			break
		}
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + "x-migrations-table=" + url.QueryEscape(table)
}
