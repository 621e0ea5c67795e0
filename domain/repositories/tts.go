package repositories

import (
	"context"

	"github.com/satriahrh/arunika/streaming/domain/entities"
)

// TextToSpeech produces a complete audio buffer for a piece of text
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string) (entities.SynthesizedAudio, error)
}
