package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gamebyte/switchboard/types"
)

// RedisStore is a Redis-based implementation of ConversationStore.
// Suitable for distributed deployments where several coordinator instances
// share one message history.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore creates a new Redis-backed conversation store.
func NewRedisStore(config Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "switchboard:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "msg:",
	}, nil
}

// NewRedisStoreWithClient wraps an existing client, used in tests.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "switchboard:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix + "msg:"}
}

// messageKey returns the Redis key for a message
func (s *RedisStore) messageKey(messageID string) string {
	return s.keyPrefix + "data:" + messageID
}

// conversationKey returns the Redis key for a conversation's message list
func (s *RedisStore) conversationKey(conversationID string) string {
	return s.keyPrefix + "conv:" + conversationID
}

// timeIndexKey returns the Redis key of the global creation-time index
func (s *RedisStore) timeIndexKey() string {
	return s.keyPrefix + "bytime"
}

// AppendMessage persists a single message.
func (s *RedisStore) AppendMessage(ctx context.Context, conversationID string, role types.Role, content string) (*types.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidInput
	}

	msg := types.NewMessage(conversationID, role, content)
	msg.ID = uuid.New().String()

	data, err := json.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.messageKey(msg.ID), data, 0)
	pipe.RPush(ctx, s.conversationKey(conversationID), msg.ID)
	pipe.ZAdd(ctx, s.timeIndexKey(), redis.Z{
		Score:  float64(msg.CreatedAt.UnixNano()),
		Member: msg.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := msg
	return &out, nil
}

// ListMessages returns a page of a conversation's messages in append order.
func (s *RedisStore) ListMessages(ctx context.Context, conversationID string, cursor string, limit int) ([]types.Message, string, error) {
	if limit <= 0 {
		limit = 100
	}

	start := int64(0)
	if cursor != "" {
		pos, err := s.client.LPos(ctx, s.conversationKey(conversationID), cursor, redis.LPosArgs{}).Result()
		if err == nil {
			start = pos + 1
		}
	}

	ids, err := s.client.LRange(ctx, s.conversationKey(conversationID), start, start+int64(limit)-1).Result()
	if err != nil {
		return nil, "", err
	}
	if len(ids) == 0 {
		return []types.Message{}, "", nil
	}

	result := make([]types.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.GetMessage(ctx, id)
		if err != nil {
			continue
		}
		result = append(result, *msg)
	}

	nextCursor := ""
	if len(ids) == limit && len(result) > 0 {
		nextCursor = ids[len(ids)-1]
	}
	return result, nextCursor, nil
}

// GetMessage retrieves a message by ID.
func (s *RedisStore) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	data, err := s.client.Get(ctx, s.messageKey(messageID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteConversation removes a conversation's messages.
func (s *RedisStore) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	ids, err := s.client.LRange(ctx, s.conversationKey(conversationID), 0, -1).Result()
	if err != nil {
		return 0, err
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.messageKey(id))
		pipe.ZRem(ctx, s.timeIndexKey(), id)
	}
	pipe.Del(ctx, s.conversationKey(conversationID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Cleanup removes messages older than the retention window.
func (s *RedisStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()

	ids, err := s.client.ZRangeByScore(ctx, s.timeIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		msg, err := s.GetMessage(ctx, id)
		if err != nil {
			// Index entry without data; drop the stale index entry.
			s.client.ZRem(ctx, s.timeIndexKey(), id)
			continue
		}

		pipe := s.client.Pipeline()
		pipe.Del(ctx, s.messageKey(id))
		pipe.LRem(ctx, s.conversationKey(msg.ConversationID), 1, id)
		pipe.ZRem(ctx, s.timeIndexKey(), id)
		if _, err := pipe.Exec(ctx); err == nil {
			count++
		}
	}
	return count, nil
}

// Ping checks if the store is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ensure RedisStore implements ConversationStore
var _ ConversationStore = (*RedisStore)(nil)
