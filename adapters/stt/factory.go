package stt

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

// Credentials holds the transcription provider secrets
type Credentials struct {
	DeepgramAPIKey        string
	AssemblyAIAPIKey      string
	GoogleCredentialsFile string
}

// New picks the transcriber implementation for a resolved config
func New(config entities.TranscriberConfig, creds Credentials, logger *zap.Logger) (repositories.SpeechToText, error) {
	switch config.(type) {
	case *entities.DeepgramTranscriberConfig, entities.DeepgramTranscriberConfig:
		if creds.DeepgramAPIKey == "" {
			return nil, fmt.Errorf("%w: deepgram api key is not configured", entities.ErrInvalidConfiguration)
		}
		return NewDeepgramSpeechToText(creds.DeepgramAPIKey, logger), nil
	case *entities.AssemblyAITranscriberConfig, entities.AssemblyAITranscriberConfig:
		if creds.AssemblyAIAPIKey == "" {
			return nil, fmt.Errorf("%w: assemblyai api key is not configured", entities.ErrInvalidConfiguration)
		}
		return NewAssemblyAISpeechToText(creds.AssemblyAIAPIKey, logger), nil
	case *entities.GoogleTranscriberConfig, entities.GoogleTranscriberConfig:
		return NewGoogleSpeechToText(creds.GoogleCredentialsFile, logger), nil
	case nil:
		return nil, fmt.Errorf("%w: transcriber config is missing", entities.ErrInvalidConfiguration)
	default:
		return nil, fmt.Errorf("%w: no transcriber for %s", entities.ErrUnknownVariant, config.VariantType())
	}
}
