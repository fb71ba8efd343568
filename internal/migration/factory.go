package migration

import (
	"fmt"

	"github.com/gamebyte/switchboard/config"
)

// NewFromURL creates a migrator from an explicit type and connection URL.
func NewFromURL(dbType, url string) (*Migrator, error) {
	parsed, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return New(Config{DatabaseType: parsed, DatabaseURL: url})
}

// NewFromConfig creates a migrator from the loaded application configuration.
// The store must use one of the SQL backends.
func NewFromConfig(cfg *config.Config) (*Migrator, error) {
	switch cfg.Store.Type {
	case "sqlite", "mysql", "postgres":
	default:
		return nil, fmt.Errorf("store type %q has no schema to migrate (supported: sqlite, mysql, postgres)", cfg.Store.Type)
	}

	parsed, err := ParseDatabaseType(cfg.Store.Type)
	if err != nil {
		return nil, err
	}
	return New(Config{DatabaseType: parsed, DatabaseURL: cfg.DSN()})
}
