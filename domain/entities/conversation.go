package entities

import (
	"errors"
	"time"
)

// ConversationStatus represents the lifecycle of a stored conversation
type ConversationStatus string

const (
	ConversationStatusActive ConversationStatus = "active"
	ConversationStatusEnded  ConversationStatus = "ended"
)

// TurnRole represents who spoke a turn
type TurnRole string

const (
	TurnRoleHuman TurnRole = "human"
	TurnRoleBot   TurnRole = "bot"
)

// Turn is one utterance within a conversation
type Turn struct {
	Role        TurnRole  `json:"role" bson:"role"`
	Text        string    `json:"text" bson:"text"`
	Interrupted bool      `json:"interrupted" bson:"interrupted"`
	At          time.Time `json:"at" bson:"at"`
}

// Conversation is the stored record of one websocket session
type Conversation struct {
	ID              string             `json:"id" bson:"_id"`
	Status          ConversationStatus `json:"status" bson:"status"`
	TranscriberType string             `json:"transcriber_type" bson:"transcriber_type"`
	SynthesizerType string             `json:"synthesizer_type" bson:"synthesizer_type"`
	AgentType       string             `json:"agent_type" bson:"agent_type"`
	StartedAt       time.Time          `json:"started_at" bson:"started_at"`
	EndedAt         *time.Time         `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
	Turns           []Turn             `json:"turns" bson:"turns"`
}

// NewConversation creates an active conversation record
func NewConversation(id string, transcriber TranscriberConfig, synthesizer SynthesizerConfig, agent AgentConfig) *Conversation {
	c := &Conversation{
		ID:        id,
		Status:    ConversationStatusActive,
		StartedAt: time.Now(),
		Turns:     make([]Turn, 0),
	}
	if transcriber != nil {
		c.TranscriberType = transcriber.VariantType()
	}
	if synthesizer != nil {
		c.SynthesizerType = synthesizer.VariantType()
	}
	if agent != nil {
		c.AgentType = agent.VariantType()
	}
	return c
}

// AddTurn appends a turn stamped with the current time
func (c *Conversation) AddTurn(role TurnRole, text string, interrupted bool) Turn {
	turn := Turn{
		Role:        role,
		Text:        text,
		Interrupted: interrupted,
		At:          time.Now(),
	}
	c.Turns = append(c.Turns, turn)
	return turn
}

// End marks the conversation as ended. Ending twice keeps the first end time.
func (c *Conversation) End() {
	if c.Status == ConversationStatusEnded {
		return
	}
	now := time.Now()
	c.EndedAt = &now
	c.Status = ConversationStatusEnded
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return errors.New("id is required")
	}

	if c.Status != ConversationStatusActive && c.Status != ConversationStatusEnded {
		return errors.New("invalid conversation status")
	}

	return nil
}
