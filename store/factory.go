package store

import (
	"fmt"
)

// New creates a ConversationStore based on the configuration.
func New(config Config) (ConversationStore, error) {
	switch config.Type {
	case TypeMemory, "":
		return NewMemoryStore(), nil
	case TypeRedis:
		return NewRedisStore(config)
	case TypeSQLite, TypeMySQL, TypePostgres:
		return NewGormStore(config.Type, config)
	case TypeMongo:
		return NewMongoStore(config)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// MustNew creates a ConversationStore or panics on error.
//
// This should only be used during application initialization. For runtime
// store creation, use New instead.
func MustNew(config Config) ConversationStore {
	s, err := New(config)
	if err != nil {
		panic(fmt.Sprintf("failed to create conversation store: %v", err))
	}
	return s
}
