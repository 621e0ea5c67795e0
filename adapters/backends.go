package adapters

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/adapters/llm"
	"github.com/satriahrh/arunika/streaming/adapters/stt"
	"github.com/satriahrh/arunika/streaming/adapters/tts"
	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

// ProviderBackends builds provider clients for each conversation from its resolved configs
type ProviderBackends struct {
	stt    stt.Credentials
	tts    tts.Credentials
	gemini *llm.GeminiLLM
	mock   bool
	logger *zap.Logger
}

// NewProviderBackends creates the backend factory. With mock set, transcription and synthesis
// use the local mocks whatever the config asks for.
func NewProviderBackends(sttCreds stt.Credentials, ttsCreds tts.Credentials, gemini *llm.GeminiLLM, mock bool, logger *zap.Logger) *ProviderBackends {
	return &ProviderBackends{
		stt:    sttCreds,
		tts:    ttsCreds,
		gemini: gemini,
		mock:   mock,
		logger: logger,
	}
}

func (b *ProviderBackends) Transcriber(cfg entities.TranscriberConfig) (repositories.SpeechToText, error) {
	if b.mock {
		return stt.NewMockSpeechToText(b.logger), nil
	}
	return stt.New(cfg, b.stt, b.logger)
}

func (b *ProviderBackends) Synthesizer(cfg entities.SynthesizerConfig) (repositories.TextToSpeech, error) {
	if b.mock {
		return tts.NewMockTTS(b.logger), nil
	}
	return tts.New(cfg, b.tts, b.logger)
}

func (b *ProviderBackends) Agent(ctx context.Context, cfg entities.AgentConfig) (repositories.Agent, error) {
	return llm.New(cfg, b.gemini, b.logger)
}
