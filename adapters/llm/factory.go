package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

// New picks the agent implementation for a resolved config. Gemini sessions share gemini,
// which may be nil when no Gemini key is configured.
func New(config entities.AgentConfig, gemini *GeminiLLM, logger *zap.Logger) (repositories.Agent, error) {
	switch c := config.(type) {
	case *entities.EchoAgentConfig, entities.EchoAgentConfig:
		return NewEchoAgent(logger), nil
	case *entities.GeminiAgentConfig:
		return newGeminiSession(gemini, *c)
	case entities.GeminiAgentConfig:
		return newGeminiSession(gemini, c)
	case nil:
		return nil, fmt.Errorf("%w: agent config is missing", entities.ErrInvalidConfiguration)
	default:
		return nil, fmt.Errorf("%w: no agent for %s", entities.ErrUnknownVariant, config.VariantType())
	}
}

func newGeminiSession(gemini *GeminiLLM, config entities.GeminiAgentConfig) (repositories.Agent, error) {
	if gemini == nil {
		return nil, fmt.Errorf("%w: gemini api key is not configured", entities.ErrInvalidConfiguration)
	}
	session, err := gemini.NewChatSession(config)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// NewGeminiIfConfigured creates the shared Gemini client when an API key is present
func NewGeminiIfConfigured(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, nil
	}
	return NewGeminiLLM(ctx, apiKey, logger)
}
