package websocket

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/satriahrh/arunika/streaming/domain/entities"
)

// State is the protocol state of one connection
type State int

const (
	StateAwaitingHandshake State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind tells the caller what an accepted message asks for
type EventKind int

const (
	// EventIgnored means the message was legal but needs no action
	EventIgnored EventKind = iota
	EventHandshake
	EventAudio
	EventStop
)

// Event is the result of accepting a client message
type Event struct {
	Kind      EventKind
	Handshake entities.Handshake
	Audio     []byte
}

// Session tracks the protocol state of one connection. The handshake is immutable once
// accepted. Safe for concurrent use by the read loop and the speaking goroutine.
type Session struct {
	mu        sync.Mutex
	state     State
	ready     bool
	handshake entities.Handshake
	defaults  entities.HandshakeDefaults
	newID     func() string
}

// NewSession creates a session waiting for its handshake
func NewSession(defaults entities.HandshakeDefaults) *Session {
	return &Session{
		state:    StateAwaitingHandshake,
		defaults: defaults,
		newID:    uuid.NewString,
	}
}

// State returns the current protocol state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handshake returns the accepted handshake, or false before one was accepted
func (s *Session) Handshake() (entities.Handshake, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAwaitingHandshake {
		return entities.Handshake{}, false
	}
	return s.handshake, true
}

// Accept applies a message received from the client. Illegal messages return
// ErrUnexpectedMessage and leave the state unchanged.
func (s *Session) Accept(msg Message) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAwaitingHandshake:
		return s.acceptHandshake(msg)
	case StateActive:
		return s.acceptActive(msg)
	default:
		return Event{}, unexpected(s.state, msg)
	}
}

func (s *Session) acceptHandshake(msg Message) (Event, error) {
	var (
		handshake entities.Handshake
		err       error
	)

	switch m := msg.(type) {
	case *StartMessage:
		handshake = entities.Handshake{
			ConversationID: s.conversationID(m.ConversationID),
			Transcriber:    m.TranscriberConfig.TranscriberConfig,
			Synthesizer:    m.SynthesizerConfig.SynthesizerConfig,
			Agent:          m.AgentConfig.AgentConfig,
		}
		err = m.Validate()
	case *AudioConfigStartMessage:
		if err = m.Validate(); err == nil {
			handshake, err = s.defaults.Build(s.conversationID(m.ConversationID), m.InputAudioConfig, m.OutputAudioConfig)
		}
	default:
		return Event{}, unexpected(s.state, msg)
	}
	if err != nil {
		return Event{}, err
	}

	s.handshake = handshake
	s.state = StateActive
	return Event{Kind: EventHandshake, Handshake: handshake}, nil
}

func (s *Session) acceptActive(msg Message) (Event, error) {
	switch m := msg.(type) {
	case *AudioMessage:
		data, err := m.Bytes()
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventAudio, Audio: data}, nil
	case *StopMessage:
		s.state = StateClosed
		return Event{Kind: EventStop}, nil
	case *ReadyMessage:
		// readiness is announced by the server; a client echo changes nothing
		return Event{Kind: EventIgnored}, nil
	default:
		return Event{}, unexpected(s.state, msg)
	}
}

// MarkReady returns the Ready message the first time it is called in the active state.
// Later calls return false and no message.
func (s *Session) MarkReady() (*ReadyMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return nil, false, unexpected(s.state, ReadyMessage{})
	}
	if s.ready {
		return nil, false, nil
	}
	s.ready = true
	return &ReadyMessage{}, true, nil
}

// Outbound wraps a synthesized chunk for delivery. It fails once the session is no longer active.
func (s *Session) Outbound(chunk []byte) (*AudioMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return nil, unexpected(s.state, AudioMessage{})
	}
	return NewAudioMessage(chunk), nil
}

// Close moves the session to closed and returns the Stop message to send, or false when
// it was already closed.
func (s *Session) Close() (*StopMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil, false
	}
	s.state = StateClosed
	return &StopMessage{}, true
}

func (s *Session) conversationID(requested *string) string {
	if requested != nil {
		return *requested
	}
	return s.newID()
}

func unexpected(state State, msg Message) error {
	return fmt.Errorf("%w: %s while %s", entities.ErrUnexpectedMessage, msg.VariantType(), state)
}
