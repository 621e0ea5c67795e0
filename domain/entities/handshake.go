package entities

// Handshake is the session-wide configuration fixed by the first message of a session.
type Handshake struct {
	ConversationID string
	Transcriber    TranscriberConfig
	Synthesizer    SynthesizerConfig
	Agent          AgentConfig
}

// InputAudioConfig is the format of the audio the client streams in.
func (h Handshake) InputAudioConfig() InputAudioConfig {
	input := h.Transcriber.Base().InputAudioConfig()
	if dg, ok := h.Transcriber.(*DeepgramTranscriberConfig); ok {
		input.Downsampling = dg.Downsampling
	}
	return input
}

// OutputAudioConfig is the format of the synthesized audio sent back.
func (h Handshake) OutputAudioConfig() OutputAudioConfig {
	return h.Synthesizer.Base().OutputAudioConfig()
}

// HandshakeDefaults picks the backends for sessions that only negotiate audio formats.
type HandshakeDefaults struct {
	Transcriber TranscriberType
	Synthesizer SynthesizerType
	Agent       AgentType
}

// Build creates default backend configs around the negotiated formats.
func (d HandshakeDefaults) Build(conversationID string, input InputAudioConfig, output OutputAudioConfig) (Handshake, error) {
	if err := input.Validate(); err != nil {
		return Handshake{}, err
	}

	transcriberBase, err := TranscriberBaseFromInput(input, nil, nil)
	if err != nil {
		return Handshake{}, err
	}
	transcriber, err := NewTranscriberConfig(d.Transcriber, transcriberBase)
	if err != nil {
		return Handshake{}, err
	}
	if dg, ok := transcriber.(*DeepgramTranscriberConfig); ok {
		dg.Downsampling = input.Downsampling
	}

	synthesizerBase, err := SynthesizerBaseFromOutput(output)
	if err != nil {
		return Handshake{}, err
	}
	synthesizer, err := NewSynthesizerConfig(d.Synthesizer, synthesizerBase)
	if err != nil {
		return Handshake{}, err
	}

	agent, err := NewAgentConfig(d.Agent)
	if err != nil {
		return Handshake{}, err
	}

	return Handshake{
		ConversationID: conversationID,
		Transcriber:    transcriber,
		Synthesizer:    synthesizer,
		Agent:          agent,
	}, nil
}
