// Package store provides persistent storage for conversation messages.
//
// The coordinator appends hand-off and assistant messages through this
// package; the API layer reads conversation history from it.
//
// Supported backends:
// - Memory: for development and testing (default)
// - Redis: for distributed deployments
// - SQL: SQLite, MySQL or PostgreSQL through GORM
// - Mongo: document storage for large histories
package store

import (
	"context"
	"errors"
	"time"

	"github.com/gamebyte/switchboard/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// Type represents the storage backend type.
type Type string

const (
	TypeMemory   Type = "memory"
	TypeRedis    Type = "redis"
	TypeSQLite   Type = "sqlite"
	TypeMySQL    Type = "mysql"
	TypePostgres Type = "postgres"
	TypeMongo    Type = "mongo"
)

// ConversationStore persists ordered per-conversation message sequences.
type ConversationStore interface {
	// AppendMessage persists a message and returns it with the canonical
	// server-assigned ID and timestamps. Append order within a conversation
	// is the read order.
	AppendMessage(ctx context.Context, conversationID string, role types.Role, content string) (*types.Message, error)

	// ListMessages returns a page of a conversation's messages in append
	// order, starting after the cursor. It returns the page and the cursor
	// for the next page, empty when exhausted.
	ListMessages(ctx context.Context, conversationID string, cursor string, limit int) ([]types.Message, string, error)

	// GetMessage retrieves a single message by ID.
	GetMessage(ctx context.Context, messageID string) (*types.Message, error)

	// DeleteConversation removes a conversation's messages and returns how
	// many were deleted.
	DeleteConversation(ctx context.Context, conversationID string) (int, error)

	// Cleanup removes messages older than the retention window across all
	// conversations and returns how many were removed.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DatabaseConfig contains SQL configuration for the GORM-backed store.
type DatabaseConfig struct {
	// DSN is the driver-specific connection string. For SQLite this is the
	// database file path, ":memory:" for an in-memory database.
	DSN             string        `json:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// MongoConfig contains MongoDB configuration.
type MongoConfig struct {
	URI        string `json:"uri" yaml:"uri"`
	Database   string `json:"database" yaml:"database"`
	Collection string `json:"collection" yaml:"collection"`
}

// CleanupConfig defines retention behavior for old messages.
type CleanupConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Interval  time.Duration `json:"interval" yaml:"interval"`
	Retention time.Duration `json:"retention" yaml:"retention"`
}

// DefaultCleanupConfig returns the default cleanup configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Enabled:   true,
		Interval:  1 * time.Hour,
		Retention: 30 * 24 * time.Hour,
	}
}

// Config is the configuration for all store implementations.
type Config struct {
	Type     Type           `json:"type" yaml:"type"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Mongo    MongoConfig    `json:"mongo" yaml:"mongo"`
	Cleanup  CleanupConfig  `json:"cleanup" yaml:"cleanup"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Type: TypeMemory,
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "switchboard:",
		},
		Database: DatabaseConfig{
			DSN:             "switchboard.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "switchboard",
			Collection: "messages",
		},
		Cleanup: DefaultCleanupConfig(),
	}
}
