package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/arunika/streaming/domain/entities"
)

const (
	defaultModel        = "gemini-2.0-flash"
	defaultTemperature  = 0.7
	defaultMaxTokens    = 256
	defaultSystemPrompt = "You are a helpful voice assistant on a phone call. " +
		"Answer in one or two short spoken sentences without markdown, lists or emoji."
)

// contentGenerator is the part of the genai client a chat session needs
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiLLM creates Gemini chat sessions sharing one API client
type GeminiLLM struct {
	models contentGenerator
	logger *zap.Logger
}

// NewGeminiLLM creates a new Gemini LLM instance
func NewGeminiLLM(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", entities.ErrInvalidConfiguration)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiLLM{
		models: client.Models,
		logger: logger,
	}, nil
}

// NewChatSession starts an empty conversation history for one agent config
func (g *GeminiLLM) NewChatSession(config entities.GeminiAgentConfig) (*GeminiChatSession, error) {
	return NewGeminiChatSession(g.models, config, g.logger)
}
