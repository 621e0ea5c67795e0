package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

// GeminiChatSession answers user turns with Gemini, keeping the conversation history
type GeminiChatSession struct {
	models          contentGenerator
	logger          *zap.Logger
	model           string
	temperature     float32
	maxOutputTokens int32
	systemPrompt    string

	mu      sync.Mutex
	history []*genai.Content
}

var _ repositories.Agent = (*GeminiChatSession)(nil)

// NewGeminiChatSession creates a new chat session from an agent config
func NewGeminiChatSession(models contentGenerator, config entities.GeminiAgentConfig, logger *zap.Logger) (*GeminiChatSession, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Apply defaults where needed
	model := defaultModel
	if config.Model != nil && *config.Model != "" {
		model = *config.Model
	}

	temperature := float32(defaultTemperature)
	if config.Temperature != nil {
		temperature = *config.Temperature
	}

	systemPrompt := defaultSystemPrompt
	if config.SystemPrompt != nil && *config.SystemPrompt != "" {
		systemPrompt = *config.SystemPrompt
	}

	s := &GeminiChatSession{
		models:          models,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		maxOutputTokens: defaultMaxTokens,
		systemPrompt:    systemPrompt,
	}

	// the greeting is part of the conversation the model should see
	if greeting := config.InitialMessage; greeting != nil && *greeting != "" {
		s.history = append(s.history, genai.NewContentFromText(*greeting, genai.RoleModel))
	}
	return s, nil
}

// Respond sends the user's turn with the history so far and records both sides
func (s *GeminiChatSession) Respond(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userContent := genai.NewContentFromText(text, genai.RoleUser)
	contents := make([]*genai.Content, 0, len(s.history)+1)
	contents = append(contents, s.history...)
	contents = append(contents, userContent)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(s.systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(s.temperature),
		MaxOutputTokens:   s.maxOutputTokens,
	}

	response, err := s.models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("%w: gemini generate content: %v", entities.ErrUpstreamFailure, err)
	}

	reply := strings.TrimSpace(responseText(response))
	if reply == "" {
		return "", fmt.Errorf("%w: gemini returned no text", entities.ErrUpstreamFailure)
	}

	s.history = append(s.history, userContent, genai.NewContentFromText(reply, genai.RoleModel))

	s.logger.Info("Chat session message processed",
		zap.String("userMessage", preview(text)),
		zap.String("responsePreview", preview(reply)),
		zap.Int("historyLength", len(s.history)))

	return reply, nil
}

// History returns how many messages the session has kept
func (s *GeminiChatSession) History() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// responseText extracts the text parts of the first candidate
func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func preview(s string) string {
	r := []rune(s)
	return string(r[:min(50, len(r))])
}
