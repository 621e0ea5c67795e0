package entities

import (
	"encoding/json"
	"fmt"
)

// TranscriberType is the discriminator of the transcriber family.
type TranscriberType string

const (
	TranscriberTypeBase       TranscriberType = "transcriber_base"
	TranscriberTypeDeepgram   TranscriberType = "transcriber_deepgram"
	TranscriberTypeGoogle     TranscriberType = "transcriber_google"
	TranscriberTypeAssemblyAI TranscriberType = "transcriber_assembly_ai"
)

// TranscriberConfig is any backend-specific transcription configuration.
type TranscriberConfig interface {
	Variant
	// Base returns the fields shared by every transcriber.
	Base() TranscriberBase
}

// TranscriberBase holds the fields every transcriber variant embeds.
type TranscriberBase struct {
	SamplingRate           int             `json:"sampling_rate"`
	AudioEncoding          AudioEncoding   `json:"audio_encoding"`
	ChunkSize              int             `json:"chunk_size"`
	EndpointingConfig      *AnyEndpointing `json:"endpointing_config,omitempty"`
	MinInterruptConfidence *float64        `json:"min_interrupt_confidence,omitempty"`
}

func (b TranscriberBase) Base() TranscriberBase {
	return b
}

// Validate checks the audio format and the interrupt confidence range.
func (b TranscriberBase) Validate() error {
	if err := b.InputAudioConfig().Validate(); err != nil {
		return err
	}
	if c := b.MinInterruptConfidence; c != nil && !(*c >= 0 && *c <= 1) {
		return fmt.Errorf("%w: min_interrupt_confidence must be between 0 and 1, got %v", ErrInvalidConfiguration, *c)
	}
	if b.EndpointingConfig != nil && b.EndpointingConfig.EndpointingConfig != nil {
		return b.EndpointingConfig.Validate()
	}
	return nil
}

// Endpointing returns the configured endpointing policy or nil.
func (b TranscriberBase) Endpointing() EndpointingConfig {
	if b.EndpointingConfig == nil {
		return nil
	}
	return b.EndpointingConfig.EndpointingConfig
}

// InputAudioConfig returns the audio format this transcriber expects.
func (b TranscriberBase) InputAudioConfig() InputAudioConfig {
	return InputAudioConfig{
		SamplingRate:  b.SamplingRate,
		AudioEncoding: b.AudioEncoding,
		ChunkSize:     b.ChunkSize,
	}
}

// TranscriberBaseFromInput builds the shared transcriber fields from an input audio format.
func TranscriberBaseFromInput(input InputAudioConfig, endpointing EndpointingConfig, minInterruptConfidence *float64) (TranscriberBase, error) {
	base := TranscriberBase{
		SamplingRate:           input.SamplingRate,
		AudioEncoding:          input.AudioEncoding,
		ChunkSize:              input.ChunkSize,
		MinInterruptConfidence: minInterruptConfidence,
	}
	if endpointing != nil {
		base.EndpointingConfig = &AnyEndpointing{EndpointingConfig: endpointing}
	}
	if err := base.Validate(); err != nil {
		return TranscriberBase{}, err
	}
	return base, nil
}

// TelephoneTranscriberBase builds the shared transcriber fields for 8kHz mu-law phone audio.
func TelephoneTranscriberBase(endpointing EndpointingConfig, minInterruptConfidence *float64) (TranscriberBase, error) {
	return TranscriberBaseFromInput(InputAudioConfig{
		SamplingRate:  DefaultTelephoneSamplingRate,
		AudioEncoding: DefaultTelephoneAudioEncoding,
		ChunkSize:     DefaultTelephoneChunkSize,
	}, endpointing, minInterruptConfidence)
}

// DeepgramTranscriberConfig configures the Deepgram streaming API.
type DeepgramTranscriberConfig struct {
	TranscriberBase
	Language          *string `json:"language,omitempty"`
	Model             *string `json:"model,omitempty"`
	Tier              *string `json:"tier,omitempty"`
	ShouldWarmupModel bool    `json:"should_warmup_model"`
	Version           *string `json:"version,omitempty"`
	Downsampling      *int    `json:"downsampling,omitempty"`
}

func (c DeepgramTranscriberConfig) VariantType() string {
	return string(TranscriberTypeDeepgram)
}

func (c DeepgramTranscriberConfig) Validate() error {
	if err := c.TranscriberBase.Validate(); err != nil {
		return err
	}
	if c.Downsampling != nil && *c.Downsampling <= 0 {
		return fmt.Errorf("%w: downsampling must be positive, got %d", ErrInvalidConfiguration, *c.Downsampling)
	}
	return nil
}

func (c DeepgramTranscriberConfig) MarshalJSON() ([]byte, error) {
	type alias DeepgramTranscriberConfig
	return MarshalTagged(c.VariantType(), alias(c))
}

// GoogleTranscriberConfig configures Google Cloud Speech-to-Text.
type GoogleTranscriberConfig struct {
	TranscriberBase
	Model             *string `json:"model,omitempty"`
	LanguageCode      *string `json:"language_code,omitempty"`
	ShouldWarmupModel bool    `json:"should_warmup_model"`
}

func (c GoogleTranscriberConfig) VariantType() string {
	return string(TranscriberTypeGoogle)
}

func (c GoogleTranscriberConfig) MarshalJSON() ([]byte, error) {
	type alias GoogleTranscriberConfig
	return MarshalTagged(c.VariantType(), alias(c))
}

// AssemblyAITranscriberConfig configures the AssemblyAI realtime API.
type AssemblyAITranscriberConfig struct {
	TranscriberBase
	ShouldWarmupModel bool `json:"should_warmup_model"`
}

func (c AssemblyAITranscriberConfig) VariantType() string {
	return string(TranscriberTypeAssemblyAI)
}

func (c AssemblyAITranscriberConfig) MarshalJSON() ([]byte, error) {
	type alias AssemblyAITranscriberConfig
	return MarshalTagged(c.VariantType(), alias(c))
}

// TranscriberConfigs resolves transcriber payloads by their type field.
var TranscriberConfigs = NewRegistry[TranscriberConfig]("transcriber_config", string(TranscriberTypeBase))

func init() {
	TranscriberConfigs.Register(string(TranscriberTypeDeepgram), func() TranscriberConfig {
		return &DeepgramTranscriberConfig{}
	})
	TranscriberConfigs.Register(string(TranscriberTypeGoogle), func() TranscriberConfig {
		return &GoogleTranscriberConfig{}
	})
	TranscriberConfigs.Register(string(TranscriberTypeAssemblyAI), func() TranscriberConfig {
		return &AssemblyAITranscriberConfig{}
	})
}

// NewTranscriberConfig builds a validated transcriber of the given type around base.
// Backend-specific fields keep their defaults.
func NewTranscriberConfig(t TranscriberType, base TranscriberBase) (TranscriberConfig, error) {
	var cfg TranscriberConfig
	switch t {
	case TranscriberTypeDeepgram:
		cfg = &DeepgramTranscriberConfig{TranscriberBase: base}
	case TranscriberTypeGoogle:
		cfg = &GoogleTranscriberConfig{TranscriberBase: base}
	case TranscriberTypeAssemblyAI:
		cfg = &AssemblyAITranscriberConfig{TranscriberBase: base}
	default:
		return nil, fmt.Errorf("%w: transcriber_config type %q", ErrUnknownVariant, t)
	}
	return Build(cfg)
}

// AnyTranscriber holds any TranscriberConfig inside another struct and decodes it through
// TranscriberConfigs.
type AnyTranscriber struct {
	TranscriberConfig
}

func (a AnyTranscriber) MarshalJSON() ([]byte, error) {
	if a.TranscriberConfig == nil {
		return []byte("null"), nil
	}
	return json.Marshal(a.TranscriberConfig)
}

func (a *AnyTranscriber) UnmarshalJSON(data []byte) error {
	cfg, err := TranscriberConfigs.Decode(data)
	if err != nil {
		return err
	}
	a.TranscriberConfig = cfg
	return nil
}
