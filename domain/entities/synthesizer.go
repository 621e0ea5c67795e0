package entities

import (
	"encoding/json"
	"fmt"
)

// SynthesizerType is the discriminator of the synthesizer family.
type SynthesizerType string

const (
	SynthesizerTypeBase       SynthesizerType = "synthesizer_base"
	SynthesizerTypePlayHT     SynthesizerType = "synthesizer_play_ht"
	SynthesizerTypeElevenLabs SynthesizerType = "synthesizer_eleven_labs"
)

// SynthesizerConfig is any backend-specific synthesis configuration.
type SynthesizerConfig interface {
	Variant
	Base() SynthesizerBase
}

// SynthesizerBase holds the output format every synthesizer variant embeds.
type SynthesizerBase struct {
	SamplingRate      int           `json:"sampling_rate"`
	AudioEncoding     AudioEncoding `json:"audio_encoding"`
	ShouldEncodeAsWav bool          `json:"should_encode_as_wav"`
}

func (b SynthesizerBase) Base() SynthesizerBase {
	return b
}

func (b SynthesizerBase) Validate() error {
	return b.OutputAudioConfig().Validate()
}

// OutputAudioConfig returns the audio format this synthesizer produces.
func (b SynthesizerBase) OutputAudioConfig() OutputAudioConfig {
	return OutputAudioConfig{
		SamplingRate:  b.SamplingRate,
		AudioEncoding: b.AudioEncoding,
	}
}

// SynthesizerBaseFromOutput builds the shared synthesizer fields from an output audio format.
func SynthesizerBaseFromOutput(output OutputAudioConfig) (SynthesizerBase, error) {
	base := SynthesizerBase{
		SamplingRate:  output.SamplingRate,
		AudioEncoding: output.AudioEncoding,
	}
	if err := base.Validate(); err != nil {
		return SynthesizerBase{}, err
	}
	return base, nil
}

// PlayHTSynthesizerConfig configures the Play.ht streaming TTS API.
type PlayHTSynthesizerConfig struct {
	SynthesizerBase
	VoiceID string   `json:"voice_id"`
	Speed   *float64 `json:"speed,omitempty"`
	Preset  *string  `json:"preset,omitempty"`
}

// DefaultPlayHTVoiceID is used when a Play.ht synthesizer is built from server defaults.
const DefaultPlayHTVoiceID = "larry"

func (c PlayHTSynthesizerConfig) VariantType() string {
	return string(SynthesizerTypePlayHT)
}

func (c PlayHTSynthesizerConfig) Validate() error {
	if err := c.SynthesizerBase.Validate(); err != nil {
		return err
	}
	if c.VoiceID == "" {
		return fmt.Errorf("%w: voice_id is required", ErrInvalidConfiguration)
	}
	if c.Speed != nil && *c.Speed <= 0 {
		return fmt.Errorf("%w: speed must be positive, got %v", ErrInvalidConfiguration, *c.Speed)
	}
	return nil
}

func (c PlayHTSynthesizerConfig) MarshalJSON() ([]byte, error) {
	type alias PlayHTSynthesizerConfig
	return MarshalTagged(c.VariantType(), alias(c))
}

// ElevenLabsSynthesizerConfig configures the ElevenLabs TTS API.
type ElevenLabsSynthesizerConfig struct {
	SynthesizerBase
	VoiceID         *string  `json:"voice_id,omitempty"`
	ModelID         *string  `json:"model_id,omitempty"`
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
}

func (c ElevenLabsSynthesizerConfig) VariantType() string {
	return string(SynthesizerTypeElevenLabs)
}

func (c ElevenLabsSynthesizerConfig) Validate() error {
	if err := c.SynthesizerBase.Validate(); err != nil {
		return err
	}
	if err := validateUnit("stability", c.Stability); err != nil {
		return err
	}
	return validateUnit("similarity_boost", c.SimilarityBoost)
}

func (c ElevenLabsSynthesizerConfig) MarshalJSON() ([]byte, error) {
	type alias ElevenLabsSynthesizerConfig
	return MarshalTagged(c.VariantType(), alias(c))
}

// SynthesizerConfigs resolves synthesizer payloads by their type field.
var SynthesizerConfigs = NewRegistry[SynthesizerConfig]("synthesizer_config", string(SynthesizerTypeBase))

func init() {
	SynthesizerConfigs.Register(string(SynthesizerTypePlayHT), func() SynthesizerConfig {
		return &PlayHTSynthesizerConfig{}
	})
	SynthesizerConfigs.Register(string(SynthesizerTypeElevenLabs), func() SynthesizerConfig {
		return &ElevenLabsSynthesizerConfig{}
	})
}

// NewSynthesizerConfig builds a validated synthesizer of the given type around base.
func NewSynthesizerConfig(t SynthesizerType, base SynthesizerBase) (SynthesizerConfig, error) {
	var cfg SynthesizerConfig
	switch t {
	case SynthesizerTypePlayHT:
		cfg = &PlayHTSynthesizerConfig{SynthesizerBase: base, VoiceID: DefaultPlayHTVoiceID}
	case SynthesizerTypeElevenLabs:
		cfg = &ElevenLabsSynthesizerConfig{SynthesizerBase: base}
	default:
		return nil, fmt.Errorf("%w: synthesizer_config type %q", ErrUnknownVariant, t)
	}
	return Build(cfg)
}

// AnySynthesizer holds any SynthesizerConfig inside another struct.
type AnySynthesizer struct {
	SynthesizerConfig
}

func (a AnySynthesizer) MarshalJSON() ([]byte, error) {
	if a.SynthesizerConfig == nil {
		return []byte("null"), nil
	}
	return json.Marshal(a.SynthesizerConfig)
}

func (a *AnySynthesizer) UnmarshalJSON(data []byte) error {
	cfg, err := SynthesizerConfigs.Decode(data)
	if err != nil {
		return err
	}
	a.SynthesizerConfig = cfg
	return nil
}

func validateUnit(name string, v *float64) error {
	if v != nil && !(*v >= 0 && *v <= 1) {
		return fmt.Errorf("%w: %s must be between 0 and 1, got %v", ErrInvalidConfiguration, name, *v)
	}
	return nil
}
