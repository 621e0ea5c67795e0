package stt

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

// mockPhrases are returned in turn, one per utterance worth of audio
var mockPhrases = []string{
	"Hello there.",
	"Can you tell me about today?",
	"Thank you for listening.",
}

// MockSpeechToText emits a canned final transcription for every two seconds of audio received
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{logger: logger}
}

// InitTranscribeStreaming creates a new mock streaming session
func (s *MockSpeechToText) InitTranscribeStreaming(ctx context.Context, config entities.TranscriberConfig) (repositories.SpeechToTextStreaming, error) {
	input := config.Base().InputAudioConfig()
	s.logger.Info("Initializing mock streaming transcription",
		zap.Int("sampleRate", input.SamplingRate),
		zap.String("encoding", string(input.AudioEncoding)))

	return &MockSpeechToTextStream{
		logger:         s.logger,
		utteranceBytes: 2 * input.SamplingRate * input.AudioEncoding.BytesPerSample(),
		results:        make(chan repositories.Transcription, resultBufferSize),
	}, nil
}

// MockSpeechToTextStream is a mock implementation of streaming speech recognition
type MockSpeechToTextStream struct {
	logger         *zap.Logger
	utteranceBytes int

	mu       sync.Mutex
	buffered int
	next     int
	ended    bool
	results  chan repositories.Transcription
}

// Stream counts the audio and emits a phrase once enough has arrived
func (m *MockSpeechToTextStream) Stream(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return nil
	}

	m.buffered += len(data)
	for m.utteranceBytes > 0 && m.buffered >= m.utteranceBytes {
		m.buffered -= m.utteranceBytes
		phrase := mockPhrases[m.next%len(mockPhrases)]
		m.next++

		select {
		case m.results <- repositories.Transcription{Text: phrase, Confidence: 1, IsFinal: true}:
			m.logger.Debug("Mock transcription emitted", zap.String("text", phrase))
		default:
			m.logger.Warn("Mock transcription dropped, nobody is reading")
		}
	}
	return nil
}

func (m *MockSpeechToTextStream) Transcriptions() <-chan repositories.Transcription {
	return m.results
}

func (m *MockSpeechToTextStream) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ended {
		m.ended = true
		close(m.results)
	}
	return nil
}
