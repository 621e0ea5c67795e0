package adapters

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

// MemoryConversationRepository is an in-memory implementation of ConversationRepository.
// It is used when MongoDB is disabled.
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*entities.Conversation
}

// NewMemoryConversationRepository creates a new in-memory conversation repository
func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[string]*entities.Conversation),
	}
}

// Create implements ConversationRepository interface
func (m *MemoryConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}

	// Generate ID if not provided
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}

	if err := conversation.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conversation.ID]; exists {
		return errors.New("conversation with this ID already exists")
	}

	m.conversations[conversation.ID] = cloneConversation(conversation)
	return nil
}

// AppendTurn implements ConversationRepository interface
func (m *MemoryConversationRepository) AppendTurn(ctx context.Context, conversationID string, turn entities.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conversation, exists := m.conversations[conversationID]
	if !exists {
		return repositories.ErrConversationNotFound
	}
	conversation.Turns = append(conversation.Turns, turn)
	return nil
}

// End implements ConversationRepository interface
func (m *MemoryConversationRepository) End(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conversation, exists := m.conversations[conversationID]
	if !exists {
		return repositories.ErrConversationNotFound
	}
	conversation.End()
	return nil
}

// Get implements ConversationRepository interface
func (m *MemoryConversationRepository) Get(ctx context.Context, conversationID string) (*entities.Conversation, error) {
	if conversationID == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	conversation, exists := m.conversations[conversationID]
	if !exists {
		return nil, repositories.ErrConversationNotFound
	}

	// Return a copy to prevent external modifications
	return cloneConversation(conversation), nil
}

func cloneConversation(c *entities.Conversation) *entities.Conversation {
	clone := *c
	clone.Turns = append(make([]entities.Turn, 0, len(c.Turns)), c.Turns...)
	if c.EndedAt != nil {
		endedAt := *c.EndedAt
		clone.EndedAt = &endedAt
	}
	return &clone
}
