package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// MigrationsURL turns a migrations directory into a file:// source URL. A
// relative dir that does not exist under the working directory is looked up
// next to the executable.
func MigrationsURL(dir string) string {
	if strings.Contains(dir, "://") {
		return dir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	if _, err := os.Stat(abs); err != nil && !filepath.IsAbs(dir) {
		if exe, e := os.Executable(); e == nil {
			abs = filepath.Join(filepath.Dir(exe), dir)
		}
	}
	return "file://" + abs
}

// RunMigrations runs SQL migrations from the given source (e.g. "file://migrations") against the DSN.
func RunMigrations(dsn string, migrationsPath string) error {
	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate.Up: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version and whether the last
// migration left the schema dirty. It reads schema_migrations directly.
func SchemaVersion(dsn string) (version uint, dirty bool, err error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return 0, false, fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	err = db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("schema version: %w", err)
	}
	return version, dirty, nil
}
