package llm

import (
	"context"

	"go.uber.org/zap"
)

// EchoAgent repeats every user turn back, for checking the audio path without a model
type EchoAgent struct {
	logger *zap.Logger
}

// NewEchoAgent creates an echo agent
func NewEchoAgent(logger *zap.Logger) *EchoAgent {
	return &EchoAgent{logger: logger}
}

func (e *EchoAgent) Respond(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.logger.Debug("Echoing user turn", zap.String("text", text))
	return text, nil
}
