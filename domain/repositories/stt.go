package repositories

import (
	"context"

	"github.com/satriahrh/arunika/streaming/domain/entities"
)

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// InitTranscribeStreaming opens a streaming transcription session for the given config
	InitTranscribeStreaming(ctx context.Context, config entities.TranscriberConfig) (SpeechToTextStreaming, error)
}

// Transcription is one result emitted by a streaming transcriber
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

// SpeechToTextStreaming is an open transcription session.
// Transcriptions is closed once the session ends.
type SpeechToTextStreaming interface {
	Stream(data []byte) error
	Transcriptions() <-chan Transcription
	End() error
}
