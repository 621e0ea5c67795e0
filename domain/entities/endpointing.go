package entities

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// EndpointingType is the discriminator of the endpointing family.
type EndpointingType string

const (
	EndpointingTypeBase             EndpointingType = "endpointing_base"
	EndpointingTypeTimeBased        EndpointingType = "endpointing_time_based"
	EndpointingTypePunctuationBased EndpointingType = "endpointing_punctuation_based"
)

// DefaultTimeCutoffSeconds is the silence allowed after a final transcription before the
// speaker's turn is considered over.
const DefaultTimeCutoffSeconds = 0.4

// EndpointingConfig is the policy for deciding that the speaker finished a turn.
type EndpointingConfig interface {
	Variant
	// TimeCutoff is the silence that ends a turn.
	TimeCutoff() time.Duration
}

// TimeEndpointingConfig ends a turn after TimeCutoffSeconds without new speech.
type TimeEndpointingConfig struct {
	TimeCutoffSeconds float64 `json:"time_cutoff_seconds"`
}

// NewTimeEndpointingConfig returns the time-based policy with the default cutoff.
func NewTimeEndpointingConfig() *TimeEndpointingConfig {
	return &TimeEndpointingConfig{TimeCutoffSeconds: DefaultTimeCutoffSeconds}
}

func (c TimeEndpointingConfig) VariantType() string {
	return string(EndpointingTypeTimeBased)
}

func (c TimeEndpointingConfig) Validate() error {
	return validateCutoff(c.TimeCutoffSeconds)
}

func (c TimeEndpointingConfig) TimeCutoff() time.Duration {
	return secondsToDuration(c.TimeCutoffSeconds)
}

func (c TimeEndpointingConfig) MarshalJSON() ([]byte, error) {
	type alias TimeEndpointingConfig
	return MarshalTagged(c.VariantType(), alias(c))
}

// PunctuationEndpointingConfig ends a turn as soon as a final transcription ends with
// terminal punctuation, and otherwise behaves like the time-based policy.
type PunctuationEndpointingConfig struct {
	TimeCutoffSeconds float64 `json:"time_cutoff_seconds"`
}

// NewPunctuationEndpointingConfig returns the punctuation-based policy with the default cutoff.
func NewPunctuationEndpointingConfig() *PunctuationEndpointingConfig {
	return &PunctuationEndpointingConfig{TimeCutoffSeconds: DefaultTimeCutoffSeconds}
}

func (c PunctuationEndpointingConfig) VariantType() string {
	return string(EndpointingTypePunctuationBased)
}

func (c PunctuationEndpointingConfig) Validate() error {
	return validateCutoff(c.TimeCutoffSeconds)
}

func (c PunctuationEndpointingConfig) TimeCutoff() time.Duration {
	return secondsToDuration(c.TimeCutoffSeconds)
}

func (c PunctuationEndpointingConfig) MarshalJSON() ([]byte, error) {
	type alias PunctuationEndpointingConfig
	return MarshalTagged(c.VariantType(), alias(c))
}

// EndpointingConfigs resolves endpointing payloads by their type field.
var EndpointingConfigs = NewRegistry[EndpointingConfig]("endpointing_config", string(EndpointingTypeBase))

func init() {
	EndpointingConfigs.Register(string(EndpointingTypeTimeBased), func() EndpointingConfig {
		return NewTimeEndpointingConfig()
	})
	EndpointingConfigs.Register(string(EndpointingTypePunctuationBased), func() EndpointingConfig {
		return NewPunctuationEndpointingConfig()
	})
}

// AnyEndpointing holds any EndpointingConfig inside another struct and decodes it through
// EndpointingConfigs.
type AnyEndpointing struct {
	EndpointingConfig
}

func (a AnyEndpointing) MarshalJSON() ([]byte, error) {
	if a.EndpointingConfig == nil {
		return []byte("null"), nil
	}
	return json.Marshal(a.EndpointingConfig)
}

func (a *AnyEndpointing) UnmarshalJSON(data []byte) error {
	cfg, err := EndpointingConfigs.Decode(data)
	if err != nil {
		return err
	}
	a.EndpointingConfig = cfg
	return nil
}

func validateCutoff(seconds float64) error {
	if !(seconds >= 0) || math.IsInf(seconds, 1) {
		return fmt.Errorf("%w: time_cutoff_seconds must be a non-negative number, got %v", ErrInvalidConfiguration, seconds)
	}
	return nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
