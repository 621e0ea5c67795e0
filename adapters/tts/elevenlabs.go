package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	defaultVoiceID           = "21m00Tcm4TlvDq8ikWAM"   // Rachel voice
	defaultModelID           = "eleven_multilingual_v2" // Default model ID
	defaultStability         = 0.5                      // Default voice stability
	defaultClarity           = 0.75                     // Default voice clarity/similarity_boost
	elevenLabsTimeout        = 30 * time.Second
)

// elevenLabsPCMRates are the raw PCM output formats ElevenLabs can stream, ascending
var elevenLabsPCMRates = []int{16000, 22050, 24000, 44100}

// ElevenLabsConfig holds the account settings for the ElevenLabs adapter.
// Required fields:
// - APIKey: Your Eleven Labs API key
// Optional fields with defaults:
// - APIBaseURL: The base URL for the Eleven Labs API (default: "https://api.elevenlabs.io/v1")
type ElevenLabsConfig struct {
	APIKey     string // Required: Your Eleven Labs API key
	APIBaseURL string // Optional: The base URL for the Eleven Labs API
}

// ElevenLabsTTS implements TextToSpeech interface using Eleven Labs API
type ElevenLabsTTS struct {
	apiKey     string
	apiBaseURL string
	voiceID    string
	modelID    string
	sampleRate int
	stability  float64
	clarity    float64
	client     *http.Client
	logger     *zap.Logger
}

// Ensure ElevenLabsTTS implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

// ElevenLabsVoiceSettings represents voice settings for Eleven Labs API
type ElevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// ElevenLabsRequest represents the request payload for Eleven Labs TTS API
type ElevenLabsRequest struct {
	Text                   string                  `json:"text"`
	ModelID                string                  `json:"model_id"`
	VoiceSettings          ElevenLabsVoiceSettings `json:"voice_settings"`
	ApplyTextNormalization string                  `json:"apply_text_normalization,omitempty"`
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("%w: eleven labs API key is required", entities.ErrInvalidConfiguration)
	}
	return nil
}

// NewElevenLabsTTS creates a new Eleven Labs TTS instance for one synthesizer config
func NewElevenLabsTTS(config ElevenLabsConfig, synth entities.ElevenLabsSynthesizerConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	// Validate required configuration
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}
	if err := synth.Validate(); err != nil {
		return nil, err
	}

	// Apply defaults where needed
	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultElevenLabsBaseURL
	}

	voiceID := defaultVoiceID
	if synth.VoiceID != nil {
		voiceID = *synth.VoiceID
	}

	modelID := defaultModelID
	if synth.ModelID != nil {
		modelID = *synth.ModelID
	}

	// Use provided stability/clarity or defaults
	stability := defaultStability
	if synth.Stability != nil {
		stability = *synth.Stability
	}

	clarity := defaultClarity
	if synth.SimilarityBoost != nil {
		clarity = *synth.SimilarityBoost
	}

	return &ElevenLabsTTS{
		apiKey:     config.APIKey,
		apiBaseURL: apiBaseURL,
		voiceID:    voiceID,
		modelID:    modelID,
		sampleRate: elevenLabsPCMRate(synth.SamplingRate),
		stability:  stability,
		clarity:    clarity,
		client:     &http.Client{Timeout: elevenLabsTimeout},
		logger:     logger,
	}, nil
}

// elevenLabsPCMRate picks the smallest supported rate at or above the requested one
func elevenLabsPCMRate(requested int) int {
	for _, rate := range elevenLabsPCMRates {
		if rate >= requested {
			return rate
		}
	}
	return elevenLabsPCMRates[len(elevenLabsPCMRates)-1]
}

// Synthesize converts text to raw PCM16 using the Eleven Labs streaming endpoint
func (e *ElevenLabsTTS) Synthesize(ctx context.Context, text string) (entities.SynthesizedAudio, error) {
	if strings.TrimSpace(text) == "" {
		return entities.SynthesizedAudio{}, fmt.Errorf("text cannot be empty")
	}

	e.logger.Info("Converting text to speech",
		zap.String("text", text),
		zap.String("voiceID", e.voiceID),
		zap.String("modelID", e.modelID),
		zap.Int("sampleRate", e.sampleRate))

	// Create request payload
	request := ElevenLabsRequest{
		Text:                   text,
		ModelID:                e.modelID,
		ApplyTextNormalization: "auto",
		VoiceSettings: ElevenLabsVoiceSettings{
			Stability:       e.stability,
			SimilarityBoost: e.clarity,
			UseSpeakerBoost: true,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return entities.SynthesizedAudio{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=pcm_%d&enable_logging=false",
		e.apiBaseURL, e.voiceID, e.sampleRate)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return entities.SynthesizedAudio{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// PCM format requires audio/pcm accept header
	httpReq.Header.Set("Accept", "audio/pcm")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return entities.SynthesizedAudio{}, fmt.Errorf("%w: eleven labs request failed: %v", entities.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		e.logger.Error("Eleven Labs API returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(errorBody)))
		return entities.SynthesizedAudio{}, fmt.Errorf("%w: eleven labs returned %d: %s", entities.ErrUpstreamFailure, resp.StatusCode, errorBody)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return entities.SynthesizedAudio{}, fmt.Errorf("%w: failed to read eleven labs audio: %v", entities.ErrUpstreamFailure, err)
	}

	e.logger.Debug("Received audio from Eleven Labs", zap.Int("totalBytes", len(data)))
	return entities.SynthesizedAudio{
		Data:       data,
		Container:  entities.AudioContainerPCM16,
		SampleRate: e.sampleRate,
	}, nil
}
