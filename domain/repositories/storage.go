package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/arunika/streaming/domain/entities"
)

// ErrConversationNotFound is returned when no conversation has the requested ID
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository defines data access methods for conversation records
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entities.Conversation) error
	AppendTurn(ctx context.Context, conversationID string, turn entities.Turn) error
	End(ctx context.Context, conversationID string) error
	Get(ctx context.Context, conversationID string) (*entities.Conversation, error)
}
