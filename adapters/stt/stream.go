package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

const (
	dialTimeout = 10 * time.Second
	// closeWait bounds how long End waits for the provider to flush its last results.
	closeWait = 2 * time.Second

	resultBufferSize = 16
)

// frameParser turns one provider message into a transcription.
// ok is false for messages that carry no transcript, last is true once the provider ends the session.
type frameParser func(data []byte) (t repositories.Transcription, ok bool, last bool, err error)

// frameEncoder wraps an audio chunk into the provider's websocket frame
type frameEncoder func(data []byte) (messageType int, payload []byte, err error)

// websocketStream is a transcription session over a provider websocket
type websocketStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	encode       frameEncoder
	parse        frameParser
	closeMessage []byte

	results chan repositories.Transcription
	done    chan struct{}
	endOnce sync.Once
	logger  *zap.Logger
}

func dialStream(ctx context.Context, url string, header http.Header, encode frameEncoder, parse frameParser, closeMessage []byte, logger *zap.Logger) (*websocketStream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: transcriber handshake failed with status %d: %v", entities.ErrUpstreamFailure, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: failed to connect to transcriber: %v", entities.ErrUpstreamFailure, err)
	}

	s := &websocketStream{
		conn:         conn,
		encode:       encode,
		parse:        parse,
		closeMessage: closeMessage,
		results:      make(chan repositories.Transcription, resultBufferSize),
		done:         make(chan struct{}),
		logger:       logger,
	}
	go s.receiveLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func (s *websocketStream) Stream(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	messageType, payload, err := s.encode(data)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(messageType, payload); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

func (s *websocketStream) Transcriptions() <-chan repositories.Transcription {
	return s.results
}

// End asks the provider to finish, waits briefly for the remaining results and closes the connection
func (s *websocketStream) End() error {
	s.endOnce.Do(func() {
		if s.closeMessage != nil {
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.TextMessage, s.closeMessage)
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("Failed to send close message", zap.Error(err))
			}
		}

		timer := time.NewTimer(closeWait)
		defer timer.Stop()
		select {
		case <-s.done:
		case <-timer.C:
			s.logger.Warn("Transcriber did not finish in time")
		}
		s.conn.Close()
		<-s.done
	})
	return nil
}

func (s *websocketStream) receiveLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.results)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) && !websocket.IsCloseError(err, websocket.CloseNormalClosure) && ctx.Err() == nil {
				s.logger.Debug("Transcriber connection closed", zap.Error(err))
			}
			return
		}

		t, ok, last, err := s.parse(data)
		if err != nil {
			s.logger.Warn("Failed to parse transcriber message", zap.Error(err))
			if last {
				return
			}
			continue
		}
		if ok {
			select {
			case s.results <- t:
			case <-ctx.Done():
				return
			}
		}
		if last {
			return
		}
	}
}
