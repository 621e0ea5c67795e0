package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

const (
	defaultPlayHTURL = "https://play.ht/api/v2/tts/stream"
	playHTTimeout    = 5 * time.Second
)

// PlayHTConfig holds the Play.ht account credentials
type PlayHTConfig struct {
	APIKey string
	UserID string
	// URL overrides the streaming endpoint
	URL string
}

// PlayHTTTS implements TextToSpeech with the Play.ht v2 streaming API
type PlayHTTTS struct {
	config PlayHTConfig
	synth  entities.PlayHTSynthesizerConfig
	client *http.Client
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*PlayHTTTS)(nil)

// PlayHTRequest is the body of a streaming synthesis request
type PlayHTRequest struct {
	Voice        string   `json:"voice"`
	Text         string   `json:"text"`
	SampleRate   int      `json:"sample_rate"`
	Speed        *float64 `json:"speed,omitempty"`
	Preset       *string  `json:"preset,omitempty"`
	OutputFormat string   `json:"output_format"`
}

// NewPlayHTTTS creates a Play.ht synthesizer for one synthesizer config
func NewPlayHTTTS(config PlayHTConfig, synth entities.PlayHTSynthesizerConfig, logger *zap.Logger) (*PlayHTTTS, error) {
	if config.APIKey == "" || config.UserID == "" {
		return nil, fmt.Errorf("%w: play.ht api key and user id are required", entities.ErrInvalidConfiguration)
	}
	if err := synth.Validate(); err != nil {
		return nil, err
	}
	if config.URL == "" {
		config.URL = defaultPlayHTURL
	}

	return &PlayHTTTS{
		config: config,
		synth:  synth,
		client: &http.Client{Timeout: playHTTimeout},
		logger: logger,
	}, nil
}

// Synthesize requests a WAV rendition of text at the configured sampling rate
func (p *PlayHTTTS) Synthesize(ctx context.Context, text string) (entities.SynthesizedAudio, error) {
	body, err := json.Marshal(PlayHTRequest{
		Voice:        p.synth.VoiceID,
		Text:         text,
		SampleRate:   p.synth.SamplingRate,
		Speed:        p.synth.Speed,
		Preset:       p.synth.Preset,
		OutputFormat: "wav",
	})
	if err != nil {
		return entities.SynthesizedAudio{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.URL, bytes.NewReader(body))
	if err != nil {
		return entities.SynthesizedAudio{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	req.Header.Set("X-User-ID", p.config.UserID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	p.logger.Debug("Sending request to Play.ht",
		zap.String("voice", p.synth.VoiceID),
		zap.Int("sampleRate", p.synth.SamplingRate))

	resp, err := p.client.Do(req)
	if err != nil {
		return entities.SynthesizedAudio{}, fmt.Errorf("%w: play.ht request failed: %v", entities.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody, _ := io.ReadAll(resp.Body)
		return entities.SynthesizedAudio{}, fmt.Errorf("%w: play.ht returned %d: %s", entities.ErrUpstreamFailure, resp.StatusCode, errorBody)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return entities.SynthesizedAudio{}, fmt.Errorf("%w: failed to read play.ht audio: %v", entities.ErrUpstreamFailure, err)
	}
	return entities.SynthesizedAudio{Data: data, Container: entities.AudioContainerWAV}, nil
}
