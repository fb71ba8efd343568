package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gamebyte/switchboard/types"
)

// messageDocument is the BSON shape of a persisted message. The ObjectID
// doubles as the append-order sort key.
type messageDocument struct {
	OID            bson.ObjectID `bson:"_id"`
	ID             string        `bson:"id"`
	ConversationID string        `bson:"conversation_id"`
	Role           string        `bson:"role"`
	Content        string        `bson:"content"`
	AgentID        string        `bson:"agent_id,omitempty"`
	CreatedAt      time.Time     `bson:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at"`
}

func (d *messageDocument) toMessage() types.Message {
	return types.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		Role:           types.Role(d.Role),
		Content:        d.Content,
		AgentID:        d.AgentID,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// MongoStore is a MongoDB implementation of ConversationStore for
// deployments with large message histories.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to MongoDB and prepares the collection indexes.
func NewMongoStore(config Config) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(config.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := config.Mongo.Collection
	if collection == "" {
		collection = "messages"
	}
	coll := client.Database(config.Mongo.Database).Collection(collection)

	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoStore{client: client, coll: coll}, nil
}

// AppendMessage persists a single message.
func (s *MongoStore) AppendMessage(ctx context.Context, conversationID string, role types.Role, content string) (*types.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidInput
	}

	now := time.Now().UTC()
	doc := messageDocument{
		OID:            bson.NewObjectID(),
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           string(role),
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, err
	}

	msg := doc.toMessage()
	return &msg, nil
}

// ListMessages returns a page of messages in append order.
func (s *MongoStore) ListMessages(ctx context.Context, conversationID string, cursor string, limit int) ([]types.Message, string, error) {
	if limit <= 0 {
		limit = 100
	}

	filter := bson.D{{Key: "conversation_id", Value: conversationID}}
	if cursor != "" {
		var anchor messageDocument
		err := s.coll.FindOne(ctx, bson.D{{Key: "id", Value: cursor}}).Decode(&anchor)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, "", err
		}
		if err == nil {
			filter = append(filter, bson.E{Key: "_id", Value: bson.D{{Key: "$gt", Value: anchor.OID}}})
		}
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, "", err
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, "", err
	}

	result := make([]types.Message, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].toMessage())
	}

	nextCursor := ""
	if len(docs) == limit {
		nextCursor = docs[len(docs)-1].ID
	}
	return result, nextCursor, nil
}

// GetMessage retrieves a message by ID.
func (s *MongoStore) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	var doc messageDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "id", Value: messageID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	msg := doc.toMessage()
	return &msg, nil
}

// DeleteConversation removes a conversation's messages.
func (s *MongoStore) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "conversation_id", Value: conversationID}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

// Cleanup removes messages older than the retention window.
func (s *MongoStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.coll.DeleteMany(ctx, bson.D{
		{Key: "created_at", Value: bson.D{{Key: "$lt", Value: cutoff}}},
	})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

// Ping checks if the store is healthy.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close closes the store.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ensure MongoStore implements ConversationStore
var _ ConversationStore = (*MongoStore)(nil)
