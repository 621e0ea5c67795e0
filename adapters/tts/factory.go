package tts

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

// Credentials holds the synthesis provider secrets
type Credentials struct {
	PlayHT     PlayHTConfig
	ElevenLabs ElevenLabsConfig
}

// New picks the synthesizer implementation for a resolved config
func New(config entities.SynthesizerConfig, creds Credentials, logger *zap.Logger) (repositories.TextToSpeech, error) {
	var (
		tts repositories.TextToSpeech
		err error
	)
	switch c := config.(type) {
	case *entities.PlayHTSynthesizerConfig:
		tts, err = NewPlayHTTTS(creds.PlayHT, *c, logger)
	case entities.PlayHTSynthesizerConfig:
		tts, err = NewPlayHTTTS(creds.PlayHT, c, logger)
	case *entities.ElevenLabsSynthesizerConfig:
		tts, err = NewElevenLabsTTS(creds.ElevenLabs, *c, logger)
	case entities.ElevenLabsSynthesizerConfig:
		tts, err = NewElevenLabsTTS(creds.ElevenLabs, c, logger)
	case nil:
		return nil, fmt.Errorf("%w: synthesizer config is missing", entities.ErrInvalidConfiguration)
	default:
		return nil, fmt.Errorf("%w: no synthesizer for %s", entities.ErrUnknownVariant, config.VariantType())
	}
	if err != nil {
		return nil, err
	}
	return tts, nil
}
