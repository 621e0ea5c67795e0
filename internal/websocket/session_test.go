package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/arunika/streaming/domain/entities"
)

var testDefaults = entities.HandshakeDefaults{
	Transcriber: entities.TranscriberTypeDeepgram,
	Synthesizer: entities.SynthesizerTypePlayHT,
	Agent:       entities.AgentTypeEcho,
}

func decode(t *testing.T, raw string) Message {
	t.Helper()
	msg, err := DecodeMessage([]byte(raw))
	require.NoError(t, err)
	return msg
}

func TestSession_StartAudioStop(t *testing.T) {
	s := NewSession(testDefaults)
	assert.Equal(t, StateAwaitingHandshake, s.State())

	event, err := s.Accept(decode(t, validStart))
	require.NoError(t, err)
	assert.Equal(t, EventHandshake, event.Kind)
	assert.Equal(t, "conv-1", event.Handshake.ConversationID)
	assert.Equal(t, StateActive, s.State())

	event, err = s.Accept(NewAudioMessage([]byte("x")))
	require.NoError(t, err)
	assert.Equal(t, EventAudio, event.Kind)
	assert.Equal(t, []byte("x"), event.Audio)

	event, err = s.Accept(NewAudioMessage([]byte("y")))
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), event.Audio)

	event, err = s.Accept(&StopMessage{})
	require.NoError(t, err)
	assert.Equal(t, EventStop, event.Kind)
	assert.Equal(t, StateClosed, s.State())

	_, err = s.Accept(NewAudioMessage([]byte("z")))
	assert.ErrorIs(t, err, entities.ErrUnexpectedMessage)
	assert.Equal(t, StateClosed, s.State())

	_, err = s.Accept(decode(t, validStart))
	assert.ErrorIs(t, err, entities.ErrUnexpectedMessage)
	assert.Equal(t, StateClosed, s.State())
}

func TestSession_RejectsBeforeHandshake(t *testing.T) {
	messages := []Message{
		NewAudioMessage([]byte("x")),
		&ReadyMessage{},
		&StopMessage{},
	}

	for _, msg := range messages {
		s := NewSession(testDefaults)
		_, err := s.Accept(msg)
		assert.ErrorIs(t, err, entities.ErrUnexpectedMessage, msg.VariantType())
		assert.Equal(t, StateAwaitingHandshake, s.State())

		_, ok := s.Handshake()
		assert.False(t, ok)
	}
}

func TestSession_SecondHandshakeRejected(t *testing.T) {
	s := NewSession(testDefaults)
	_, err := s.Accept(decode(t, validStart))
	require.NoError(t, err)

	_, err = s.Accept(decode(t, validStart))
	assert.ErrorIs(t, err, entities.ErrUnexpectedMessage)
	assert.Equal(t, StateActive, s.State())
}

func TestSession_AudioConfigStartBuildsDefaults(t *testing.T) {
	s := NewSession(testDefaults)
	s.newID = func() string { return "generated-id" }

	event, err := s.Accept(decode(t, `{
		"type": "websocket_audio_config_start",
		"input_audio_config": {"sampling_rate": 16000, "audio_encoding": "linear16", "chunk_size": 2048, "downsampling": 2},
		"output_audio_config": {"sampling_rate": 8000, "audio_encoding": "mulaw"}
	}`))
	require.NoError(t, err)

	h := event.Handshake
	assert.Equal(t, "generated-id", h.ConversationID)

	dg, ok := h.Transcriber.(*entities.DeepgramTranscriberConfig)
	require.True(t, ok)
	require.NotNil(t, dg.Downsampling)
	assert.Equal(t, 2, *dg.Downsampling)
	assert.Nil(t, dg.Endpointing())

	input := h.InputAudioConfig()
	assert.Equal(t, 16000, input.SamplingRate)
	assert.Equal(t, 2048, input.ChunkSize)
	assert.Equal(t, 2, *input.Downsampling)

	output := h.OutputAudioConfig()
	assert.Equal(t, 8000, output.SamplingRate)
	assert.Equal(t, entities.AudioEncodingMulaw, output.AudioEncoding)

	playHT, ok := h.Synthesizer.(*entities.PlayHTSynthesizerConfig)
	require.True(t, ok)
	assert.Equal(t, entities.DefaultPlayHTVoiceID, playHT.VoiceID)

	_, ok = h.Agent.(*entities.EchoAgentConfig)
	assert.True(t, ok)

	stored, ok := s.Handshake()
	require.True(t, ok)
	assert.Equal(t, h.ConversationID, stored.ConversationID)
}

func TestSession_AudioConfigStartUnknownDefault(t *testing.T) {
	s := NewSession(entities.HandshakeDefaults{
		Transcriber: entities.TranscriberTypeBase,
		Synthesizer: entities.SynthesizerTypePlayHT,
		Agent:       entities.AgentTypeEcho,
	})

	_, err := s.Accept(&AudioConfigStartMessage{
		InputAudioConfig:  entities.InputAudioConfig{SamplingRate: 8000, AudioEncoding: entities.AudioEncodingMulaw, ChunkSize: 3200},
		OutputAudioConfig: entities.OutputAudioConfig{SamplingRate: 8000, AudioEncoding: entities.AudioEncodingMulaw},
	})
	assert.ErrorIs(t, err, entities.ErrUnknownVariant)
	assert.Equal(t, StateAwaitingHandshake, s.State())
}

func TestSession_GeneratesConversationID(t *testing.T) {
	s := NewSession(testDefaults)
	event, err := s.Accept(&AudioConfigStartMessage{
		InputAudioConfig:  entities.InputAudioConfig{SamplingRate: 8000, AudioEncoding: entities.AudioEncodingMulaw, ChunkSize: 3200},
		OutputAudioConfig: entities.OutputAudioConfig{SamplingRate: 8000, AudioEncoding: entities.AudioEncodingMulaw},
	})
	require.NoError(t, err)
	assert.Len(t, event.Handshake.ConversationID, 36)
}

func TestSession_MarkReadyIsIdempotent(t *testing.T) {
	s := NewSession(testDefaults)

	_, _, err := s.MarkReady()
	assert.ErrorIs(t, err, entities.ErrUnexpectedMessage)

	_, err = s.Accept(decode(t, validStart))
	require.NoError(t, err)

	msg, first, err := s.MarkReady()
	require.NoError(t, err)
	assert.True(t, first)
	assert.NotNil(t, msg)

	msg, first, err = s.MarkReady()
	require.NoError(t, err)
	assert.False(t, first)
	assert.Nil(t, msg)
	assert.Equal(t, StateActive, s.State())
}

func TestSession_ClientReadyIgnored(t *testing.T) {
	s := NewSession(testDefaults)
	_, err := s.Accept(decode(t, validStart))
	require.NoError(t, err)

	event, err := s.Accept(&ReadyMessage{})
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, event.Kind)
	assert.Equal(t, StateActive, s.State())
}

func TestSession_OutboundAndClose(t *testing.T) {
	s := NewSession(testDefaults)

	_, err := s.Outbound([]byte{1})
	assert.ErrorIs(t, err, entities.ErrUnexpectedMessage)

	_, err = s.Accept(decode(t, validStart))
	require.NoError(t, err)

	msg, err := s.Outbound([]byte{1, 2})
	require.NoError(t, err)
	data, err := msg.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)

	stop, ok := s.Close()
	assert.True(t, ok)
	assert.NotNil(t, stop)
	assert.Equal(t, StateClosed, s.State())

	_, ok = s.Close()
	assert.False(t, ok)

	_, err = s.Outbound([]byte{1})
	assert.ErrorIs(t, err, entities.ErrUnexpectedMessage)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting_handshake", StateAwaitingHandshake.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
}
