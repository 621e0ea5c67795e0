package tts

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/internal/audio"
)

const (
	mockSampleRate = 16000
	mockToneHz     = 440
	mockRuneLength = 60 * time.Millisecond
	mockToneVolume = 0.2
)

// MockTTS renders a quiet tone whose length follows the text, for running without a provider
type MockTTS struct {
	logger *zap.Logger
}

// NewMockTTS creates a mock synthesizer
func NewMockTTS(logger *zap.Logger) *MockTTS {
	return &MockTTS{logger: logger}
}

func (m *MockTTS) Synthesize(ctx context.Context, text string) (entities.SynthesizedAudio, error) {
	if err := ctx.Err(); err != nil {
		return entities.SynthesizedAudio{}, err
	}

	duration := time.Duration(len([]rune(text))) * mockRuneLength
	n := int(int64(mockSampleRate) * int64(duration) / int64(time.Second))
	samples := make([]int16, n)
	for i := range samples {
		phase := 2 * math.Pi * mockToneHz * float64(i) / mockSampleRate
		samples[i] = int16(mockToneVolume * math.MaxInt16 * math.Sin(phase))
	}

	m.logger.Debug("Mock speech synthesized", zap.String("text", text), zap.Duration("duration", duration))
	return entities.SynthesizedAudio{
		Data:       audio.EncodePCM16(samples),
		Container:  entities.AudioContainerPCM16,
		SampleRate: mockSampleRate,
	}, nil
}
