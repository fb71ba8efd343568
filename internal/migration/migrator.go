// Package migration versions the messages schema with golang-migrate.
// Migration files are embedded per database flavor so the binary can migrate
// any environment it is pointed at.
package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// The sqlite driver is the one the message store uses; registering the
	// same name twice panics at init.
	_ "github.com/glebarez/go-sqlite"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// DatabaseType selects the migration flavor.
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// ParseDatabaseType validates a database type string.
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch DatabaseType(strings.ToLower(s)) {
	case DatabaseTypePostgres:
		return DatabaseTypePostgres, nil
	case DatabaseTypeMySQL:
		return DatabaseTypeMySQL, nil
	case DatabaseTypeSQLite:
		return DatabaseTypeSQLite, nil
	}
	return "", fmt.Errorf("unsupported database type: %s (supported: postgres, mysql, sqlite)", s)
}

// Status describes one migration file relative to the applied version.
type Status struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Config configures a Migrator.
type Config struct {
	DatabaseType DatabaseType
	DatabaseURL  string
	// TableName is the migrations bookkeeping table, default schema_migrations.
	TableName string
}

// Migrator applies and rolls back schema migrations.
type Migrator struct {
	config  Config
	migrate *migrate.Migrate
	db      *sql.DB
}

// New creates a migrator against the given database.
func New(cfg Config) (*Migrator, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}

	m := &Migrator{config: cfg}
	if err := m.init(); err != nil {
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	return m, nil
}

func (m *Migrator) init() error {
	db, err := m.openDatabase()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	m.db = db

	dbDriver, err := m.databaseDriver()
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	sourceDriver, err := m.sourceDriver()
	if err != nil {
		return fmt.Errorf("failed to create source driver: %w", err)
	}

	m.migrate, err = migrate.NewWithInstance("iofs", sourceDriver, string(m.config.DatabaseType), dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return nil
}

func (m *Migrator) openDatabase() (*sql.DB, error) {
	var driverName string
	switch m.config.DatabaseType {
	case DatabaseTypePostgres:
		driverName = "postgres"
	case DatabaseTypeMySQL:
		driverName = "mysql"
	case DatabaseTypeSQLite:
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database type: %s", m.config.DatabaseType)
	}

	db, err := sql.Open(driverName, m.config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (m *Migrator) databaseDriver() (database.Driver, error) {
	switch m.config.DatabaseType {
	case DatabaseTypePostgres:
		return migratepostgres.WithInstance(m.db, &migratepostgres.Config{
			MigrationsTable: m.config.TableName,
		})
	case DatabaseTypeMySQL:
		return migratemysql.WithInstance(m.db, &migratemysql.Config{
			MigrationsTable: m.config.TableName,
		})
	case DatabaseTypeSQLite:
		return newSQLiteDriver(m.db, m.config.TableName)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", m.config.DatabaseType)
	}
}

func (m *Migrator) sourceDriver() (source.Driver, error) {
	fsys, dir, err := migrationFiles(m.config.DatabaseType)
	if err != nil {
		return nil, err
	}
	return iofs.New(fsys, dir)
}

func migrationFiles(dbType DatabaseType) (fs.FS, string, error) {
	switch dbType {
	case DatabaseTypePostgres:
		return postgresFS, "migrations/postgres", nil
	case DatabaseTypeMySQL:
		return mysqlFS, "migrations/mysql", nil
	case DatabaseTypeSQLite:
		return sqliteFS, "migrations/sqlite", nil
	default:
		return nil, "", fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, func() error {
		if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	})
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, func() error {
		if err := m.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	})
}

// DownAll rolls back every migration.
func (m *Migrator) DownAll(ctx context.Context) error {
	return m.run(ctx, func() error {
		if err := m.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	})
}

// Goto migrates up or down to the given version.
func (m *Migrator) Goto(ctx context.Context, version uint) error {
	return m.run(ctx, func() error {
		if err := m.migrate.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	})
}

// Force sets the recorded version without running migrations. Used to clear
// a dirty state after a failed migration was fixed by hand.
func (m *Migrator) Force(ctx context.Context, version int) error {
	return m.run(ctx, func() error {
		return m.migrate.Force(version)
	})
}

// Version returns the applied version and whether the state is dirty.
// Returns (0, false, nil) when no migration has been applied yet.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Status lists every known migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	files, err := listMigrations(m.config.DatabaseType)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(files))
	for _, f := range files {
		statuses = append(statuses, Status{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current && current > 0,
			Dirty:   dirty && f.version == current,
		})
	}
	return statuses, nil
}

// Close releases the migrate instance and the database connection.
func (m *Migrator) Close() error {
	var errs []error
	if m.migrate != nil {
		srcErr, dbErr := m.migrate.Close()
		if srcErr != nil {
			errs = append(errs, srcErr)
		}
		if dbErr != nil {
			errs = append(errs, dbErr)
		}
		// migrate.Close closes the underlying connection too.
		m.db = nil
	} else if m.db != nil {
		errs = append(errs, m.db.Close())
	}
	return errors.Join(errs...)
}

// run honors context cancellation around a blocking migrate call.
func (m *Migrator) run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case <-ctx.Done():
		m.migrate.GracefulStop <- true
		return ctx.Err()
	case err := <-done:
		return err
	}
}

type migrationFile struct {
	version uint
	name    string
}

// listMigrations scans the embedded up-migrations in version order.
func listMigrations(dbType DatabaseType) ([]migrationFile, error) {
	fsys, dir, err := migrationFiles(dbType)
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var files []migrationFile
	for _, entry := range entries {
		base := entry.Name()
		if !strings.HasSuffix(base, ".up.sql") {
			continue
		}
		// Layout: {version}_{name}.up.sql
		stem := strings.TrimSuffix(path.Base(base), ".up.sql")
		parts := strings.SplitN(stem, "_", 2)
		if len(parts) != 2 {
			continue
		}
		version, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{version: uint(version), name: parts[1]})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// WaitTimeout bounds how long migration commands may run.
const WaitTimeout = 5 * time.Minute
