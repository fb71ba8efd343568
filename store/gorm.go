package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gamebyte/switchboard/internal/database"
	"github.com/gamebyte/switchboard/types"
)

// messageRecord is the GORM model for a persisted message. Seq provides the
// per-conversation append order and the pagination cursor.
type messageRecord struct {
	Seq            uint64    `gorm:"primaryKey;autoIncrement"`
	ID             string    `gorm:"size:64;uniqueIndex"`
	ConversationID string    `gorm:"size:64;index"`
	Role           string    `gorm:"size:16"`
	Content        string    `gorm:"type:text"`
	AgentID        string    `gorm:"size:64"`
	CreatedAt      time.Time `gorm:"index"`
	UpdatedAt      time.Time
}

func (messageRecord) TableName() string {
	return "messages"
}

func (r *messageRecord) toMessage() types.Message {
	return types.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           types.Role(r.Role),
		Content:        r.Content,
		AgentID:        r.AgentID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// GormStore is a SQL implementation of ConversationStore backed by GORM.
// It supports SQLite, MySQL and PostgreSQL.
type GormStore struct {
	db   *gorm.DB
	pool *database.PoolManager
}

// NewGormStore opens a database connection and migrates the schema.
func NewGormStore(storeType Type, config Config) (*GormStore, error) {
	var dialector gorm.Dialector
	switch storeType {
	case TypeSQLite:
		dialector = sqlite.Open(config.Database.DSN)
	case TypeMySQL:
		dialector = mysql.Open(config.Database.DSN)
	case TypePostgres:
		dialector = postgres.Open(config.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported SQL store type: %s", storeType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = config.Database.MaxOpenConns
	poolCfg.MaxIdleConns = config.Database.MaxIdleConns
	poolCfg.ConnMaxLifetime = config.Database.ConnMaxLifetime
	pool, err := database.NewPoolManager(db, poolCfg, zap.L())
	if err != nil {
		return nil, fmt.Errorf("failed to configure pool: %w", err)
	}

	if err := db.AutoMigrate(&messageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &GormStore{db: db, pool: pool}, nil
}

// NewGormStoreWithDB wraps an existing GORM handle, used in tests and by the
// shared pool manager.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.AutoMigrate(&messageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// AppendMessage persists a single message.
func (s *GormStore) AppendMessage(ctx context.Context, conversationID string, role types.Role, content string) (*types.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidInput
	}

	now := time.Now().UTC()
	record := messageRecord{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           string(role),
		Content:        content,
		AgentID:        "",
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	msg := record.toMessage()
	return &msg, nil
}

// ListMessages returns a page of messages in append order.
func (s *GormStore) ListMessages(ctx context.Context, conversationID string, cursor string, limit int) ([]types.Message, string, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Limit(limit)

	if cursor != "" {
		var anchor messageRecord
		err := s.db.WithContext(ctx).Where("id = ?", cursor).First(&anchor).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", err
		}
		if err == nil {
			query = query.Where("seq > ?", anchor.Seq)
		}
	}

	var records []messageRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", err
	}

	result := make([]types.Message, 0, len(records))
	for i := range records {
		result = append(result, records[i].toMessage())
	}

	nextCursor := ""
	if len(records) == limit {
		nextCursor = records[len(records)-1].ID
	}
	return result, nextCursor, nil
}

// GetMessage retrieves a message by ID.
func (s *GormStore) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	var record messageRecord
	err := s.db.WithContext(ctx).Where("id = ?", messageID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	msg := record.toMessage()
	return &msg, nil
}

// DeleteConversation removes a conversation's messages.
func (s *GormStore) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	res := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&messageRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// Cleanup removes messages older than the retention window.
func (s *GormStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&messageRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// Ping checks if the store is healthy.
func (s *GormStore) Ping(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the store.
func (s *GormStore) Close() error {
	if s.pool != nil {
		return s.pool.Close()
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure GormStore implements ConversationStore
var _ ConversationStore = (*GormStore)(nil)
