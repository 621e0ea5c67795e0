package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

const conversationsCollection = "conversations"

// ConversationRepository implements repositories.ConversationRepository on MongoDB
type ConversationRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewConversationRepository creates a new MongoDB conversation repository
func NewConversationRepository(db *mongo.Database, logger *zap.Logger) *ConversationRepository {
	return &ConversationRepository{
		collection: db.Collection(conversationsCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the indexes used by listing and cleanup queries
func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "started_at", Value: -1}}},
		{Keys: bson.D{{Key: "agent_type", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}
	return nil
}

// Create implements repositories.ConversationRepository
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	if conversation.StartedAt.IsZero() {
		conversation.StartedAt = time.Now()
	}
	if conversation.Turns == nil {
		conversation.Turns = make([]entities.Turn, 0)
	}

	if _, err := r.collection.InsertOne(ctx, conversation); err != nil {
		r.logger.Error("Failed to create conversation", zap.Error(err), zap.String("conversationID", conversation.ID))
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	r.logger.Debug("Conversation created", zap.String("conversationID", conversation.ID))
	return nil
}

// AppendTurn implements repositories.ConversationRepository
func (r *ConversationRepository) AppendTurn(ctx context.Context, conversationID string, turn entities.Turn) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$push": bson.M{"turns": turn}},
	)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrConversationNotFound
	}
	return nil
}

// End implements repositories.ConversationRepository. Ending twice keeps the first end time.
func (r *ConversationRepository) End(ctx context.Context, conversationID string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": conversationID, "status": entities.ConversationStatusActive},
		bson.M{"$set": bson.M{
			"status":   entities.ConversationStatusEnded,
			"ended_at": time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to end conversation: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Either unknown or already ended
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": conversationID})
	if err != nil {
		return fmt.Errorf("failed to look up conversation: %w", err)
	}
	if count == 0 {
		return repositories.ErrConversationNotFound
	}
	return nil
}

// Get implements repositories.ConversationRepository
func (r *ConversationRepository) Get(ctx context.Context, conversationID string) (*entities.Conversation, error) {
	if conversationID == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	var conversation entities.Conversation
	err := r.collection.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conversation, nil
}
