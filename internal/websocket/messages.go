package websocket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/satriahrh/arunika/streaming/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeBase             MessageType = "websocket_base"
	MessageTypeStart            MessageType = "websocket_start"
	MessageTypeAudioConfigStart MessageType = "websocket_audio_config_start"
	MessageTypeAudio            MessageType = "websocket_audio"
	MessageTypeReady            MessageType = "websocket_ready"
	MessageTypeStop             MessageType = "websocket_stop"
)

// Message is any frame of the conversation protocol
type Message interface {
	entities.Variant
}

// StartMessage opens a session with fully specified backends
type StartMessage struct {
	TranscriberConfig entities.AnyTranscriber `json:"transcriber_config"`
	AgentConfig       entities.AnyAgent       `json:"agent_config"`
	SynthesizerConfig entities.AnySynthesizer `json:"synthesizer_config"`
	ConversationID    *string                 `json:"conversation_id,omitempty"`
}

func (m StartMessage) VariantType() string {
	return string(MessageTypeStart)
}

func (m StartMessage) Validate() error {
	if m.TranscriberConfig.TranscriberConfig == nil {
		return fmt.Errorf("%w: transcriber_config is required", entities.ErrInvalidConfiguration)
	}
	if m.AgentConfig.AgentConfig == nil {
		return fmt.Errorf("%w: agent_config is required", entities.ErrInvalidConfiguration)
	}
	if m.SynthesizerConfig.SynthesizerConfig == nil {
		return fmt.Errorf("%w: synthesizer_config is required", entities.ErrInvalidConfiguration)
	}
	return validateConversationID(m.ConversationID)
}

func (m StartMessage) MarshalJSON() ([]byte, error) {
	type alias StartMessage
	return entities.MarshalTagged(m.VariantType(), alias(m))
}

// AudioConfigStartMessage opens a session by negotiating audio formats only; the server
// picks the backends.
type AudioConfigStartMessage struct {
	InputAudioConfig  entities.InputAudioConfig  `json:"input_audio_config"`
	OutputAudioConfig entities.OutputAudioConfig `json:"output_audio_config"`
	ConversationID    *string                    `json:"conversation_id,omitempty"`
}

func (m AudioConfigStartMessage) VariantType() string {
	return string(MessageTypeAudioConfigStart)
}

func (m AudioConfigStartMessage) Validate() error {
	if err := m.InputAudioConfig.Validate(); err != nil {
		return fmt.Errorf("input_audio_config: %w", err)
	}
	if err := m.OutputAudioConfig.Validate(); err != nil {
		return fmt.Errorf("output_audio_config: %w", err)
	}
	return validateConversationID(m.ConversationID)
}

func (m AudioConfigStartMessage) MarshalJSON() ([]byte, error) {
	type alias AudioConfigStartMessage
	return entities.MarshalTagged(m.VariantType(), alias(m))
}

// AudioMessage carries one chunk of raw audio as standard padded base64
type AudioMessage struct {
	Data string `json:"data"`
}

// NewAudioMessage encodes a raw audio chunk
func NewAudioMessage(chunk []byte) *AudioMessage {
	return &AudioMessage{Data: base64.StdEncoding.EncodeToString(chunk)}
}

// Bytes decodes the audio payload
func (m AudioMessage) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: audio data is not valid base64: %v", entities.ErrInvalidConfiguration, err)
	}
	return data, nil
}

func (m AudioMessage) VariantType() string {
	return string(MessageTypeAudio)
}

func (m AudioMessage) Validate() error {
	_, err := m.Bytes()
	return err
}

func (m AudioMessage) MarshalJSON() ([]byte, error) {
	type alias AudioMessage
	return entities.MarshalTagged(m.VariantType(), alias(m))
}

// ReadyMessage tells the client the server accepts audio
type ReadyMessage struct{}

func (m ReadyMessage) VariantType() string {
	return string(MessageTypeReady)
}

func (m ReadyMessage) Validate() error {
	return nil
}

func (m ReadyMessage) MarshalJSON() ([]byte, error) {
	type alias ReadyMessage
	return entities.MarshalTagged(m.VariantType(), alias(m))
}

// StopMessage ends the session; either side may send it
type StopMessage struct{}

func (m StopMessage) VariantType() string {
	return string(MessageTypeStop)
}

func (m StopMessage) Validate() error {
	return nil
}

func (m StopMessage) MarshalJSON() ([]byte, error) {
	type alias StopMessage
	return entities.MarshalTagged(m.VariantType(), alias(m))
}

func validateConversationID(id *string) error {
	if id != nil && *id == "" {
		return fmt.Errorf("%w: conversation_id must not be empty when present", entities.ErrInvalidConfiguration)
	}
	return nil
}

// Messages resolves incoming frames by their type field
var Messages = entities.NewRegistry[Message]("websocket_message", string(MessageTypeBase))

func init() {
	Messages.Register(string(MessageTypeStart), func() Message { return &StartMessage{} })
	Messages.Register(string(MessageTypeAudioConfigStart), func() Message { return &AudioConfigStartMessage{} })
	Messages.Register(string(MessageTypeAudio), func() Message { return &AudioMessage{} })
	Messages.Register(string(MessageTypeReady), func() Message { return &ReadyMessage{} })
	Messages.Register(string(MessageTypeStop), func() Message { return &StopMessage{} })
}

// DecodeMessage parses and validates one text frame
func DecodeMessage(data []byte) (Message, error) {
	return Messages.Decode(data)
}

// EncodeMessage serializes a message with its type field
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
