package entities

import (
	"encoding/json"
	"fmt"
)

// AgentType is the discriminator of the agent family.
type AgentType string

const (
	AgentTypeBase   AgentType = "agent_base"
	AgentTypeEcho   AgentType = "agent_echo"
	AgentTypeGemini AgentType = "agent_gemini"
)

// AgentConfig is any configuration of the component that answers the user's turns.
type AgentConfig interface {
	Variant
	Base() AgentBase
}

// AgentBase holds the fields every agent variant embeds.
type AgentBase struct {
	InitialMessage       *string `json:"initial_message,omitempty"`
	AllowAgentToBeCutOff bool    `json:"allow_agent_to_be_cut_off"`
}

func (b AgentBase) Base() AgentBase {
	return b
}

func (b AgentBase) Validate() error {
	return nil
}

// NewAgentBase returns the shared agent fields with their defaults.
func NewAgentBase() AgentBase {
	return AgentBase{AllowAgentToBeCutOff: true}
}

// EchoAgentConfig repeats every user turn back. Useful for wiring checks.
type EchoAgentConfig struct {
	AgentBase
}

func (c EchoAgentConfig) VariantType() string {
	return string(AgentTypeEcho)
}

func (c EchoAgentConfig) MarshalJSON() ([]byte, error) {
	type alias EchoAgentConfig
	return MarshalTagged(c.VariantType(), alias(c))
}

// GeminiAgentConfig answers with a Gemini model.
type GeminiAgentConfig struct {
	AgentBase
	Model        *string  `json:"model,omitempty"`
	SystemPrompt *string  `json:"system_prompt,omitempty"`
	Temperature  *float32 `json:"temperature,omitempty"`
}

func (c GeminiAgentConfig) VariantType() string {
	return string(AgentTypeGemini)
}

func (c GeminiAgentConfig) Validate() error {
	if c.Temperature != nil && !(*c.Temperature >= 0 && *c.Temperature <= 2) {
		return fmt.Errorf("%w: temperature must be between 0 and 2, got %v", ErrInvalidConfiguration, *c.Temperature)
	}
	return c.AgentBase.Validate()
}

func (c GeminiAgentConfig) MarshalJSON() ([]byte, error) {
	type alias GeminiAgentConfig
	return MarshalTagged(c.VariantType(), alias(c))
}

// AgentConfigs resolves agent payloads by their type field.
var AgentConfigs = NewRegistry[AgentConfig]("agent_config", string(AgentTypeBase))

func init() {
	AgentConfigs.Register(string(AgentTypeEcho), func() AgentConfig {
		return &EchoAgentConfig{AgentBase: NewAgentBase()}
	})
	AgentConfigs.Register(string(AgentTypeGemini), func() AgentConfig {
		return &GeminiAgentConfig{AgentBase: NewAgentBase()}
	})
}

// NewAgentConfig builds a validated agent of the given type with default fields.
func NewAgentConfig(t AgentType) (AgentConfig, error) {
	var cfg AgentConfig
	switch t {
	case AgentTypeEcho:
		cfg = &EchoAgentConfig{AgentBase: NewAgentBase()}
	case AgentTypeGemini:
		cfg = &GeminiAgentConfig{AgentBase: NewAgentBase()}
	default:
		return nil, fmt.Errorf("%w: agent_config type %q", ErrUnknownVariant, t)
	}
	return Build(cfg)
}

// AnyAgent holds any AgentConfig inside another struct.
type AnyAgent struct {
	AgentConfig
}

func (a AnyAgent) MarshalJSON() ([]byte, error) {
	if a.AgentConfig == nil {
		return []byte("null"), nil
	}
	return json.Marshal(a.AgentConfig)
}

func (a *AnyAgent) UnmarshalJSON(data []byte) error {
	cfg, err := AgentConfigs.Decode(data)
	if err != nil {
		return err
	}
	a.AgentConfig = cfg
	return nil
}
