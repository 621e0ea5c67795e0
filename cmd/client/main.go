// Command client streams a WAV file to the conversation endpoint and saves the spoken reply.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/internal/api"
	"github.com/satriahrh/arunika/streaming/internal/audio"
	"github.com/satriahrh/arunika/streaming/internal/websocket"
)

const chunkDuration = 100 * time.Millisecond

type options struct {
	server       string
	clientID     string
	clientSecret string
	input        string
	output       string
	sampleRate   int
	wait         time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.server, "server", "http://localhost:8080", "Server base URL")
	flag.StringVar(&opts.clientID, "client-id", "", "Client ID, when the server requires a token")
	flag.StringVar(&opts.clientSecret, "client-secret", "", "Client secret")
	flag.StringVar(&opts.input, "input", "sample_audio.wav", "WAV file to stream")
	flag.StringVar(&opts.output, "output", "response.wav", "Where to write the received audio")
	flag.IntVar(&opts.sampleRate, "rate", 16000, "Sample rate of the streamed and received audio")
	flag.DurationVar(&opts.wait, "wait", 5*time.Second, "How long to listen after the input ends")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	received, err := run(ctx, opts, logger)
	if err != nil {
		logger.Fatal("Conversation failed", zap.Error(err))
	}

	wav, err := audio.EncodeAsWAV(received, opts.sampleRate, entities.AudioEncodingLinear16)
	if err != nil {
		logger.Fatal("Failed to encode response", zap.Error(err))
	}
	if err := os.WriteFile(opts.output, wav, 0o644); err != nil {
		logger.Fatal("Failed to write response", zap.Error(err))
	}
	logger.Info("Response saved", zap.String("path", opts.output), zap.Int("bytes", len(received)))
}

// run streams the input file and returns the linear16 audio the server sent back
func run(ctx context.Context, opts options, logger *zap.Logger) ([]byte, error) {
	data, err := os.ReadFile(opts.input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	pcm, err := audio.Convert(entities.SynthesizedAudio{Data: data, Container: entities.AudioContainerWAV}, opts.sampleRate, entities.AudioEncodingLinear16)
	if err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}

	headers := http.Header{}
	if opts.clientID != "" {
		token, err := requestToken(ctx, opts)
		if err != nil {
			return nil, err
		}
		headers.Set("Authorization", "Bearer "+token)
	}

	url := "ws" + strings.TrimPrefix(strings.TrimSuffix(opts.server, "/"), "http") + "/conversation"
	conn, _, err := gorilla.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer conn.Close()

	s := &clientSession{conn: conn, ready: make(chan struct{}), done: make(chan struct{}), logger: logger}
	go s.readLoop()

	chunkSize := opts.sampleRate * 2 * int(chunkDuration/time.Millisecond) / 1000
	handshake := &websocket.AudioConfigStartMessage{
		InputAudioConfig: entities.InputAudioConfig{
			SamplingRate:  opts.sampleRate,
			AudioEncoding: entities.AudioEncodingLinear16,
			ChunkSize:     chunkSize,
		},
		OutputAudioConfig: entities.OutputAudioConfig{
			SamplingRate:  opts.sampleRate,
			AudioEncoding: entities.AudioEncodingLinear16,
		},
	}
	if err := s.send(handshake); err != nil {
		return nil, err
	}

	select {
	case <-s.ready:
		logger.Info("Server ready, streaming input", zap.Int("bytes", len(pcm)))
	case <-s.done:
		return nil, errors.New("server closed the connection before ready")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()
	for offset := 0; offset < len(pcm); offset += chunkSize {
		end := min(offset+chunkSize, len(pcm))
		if err := s.send(websocket.NewAudioMessage(pcm[offset:end])); err != nil {
			return nil, err
		}
		select {
		case <-ticker.C:
		case <-s.done:
			return s.audio(), nil
		case <-ctx.Done():
			return s.audio(), ctx.Err()
		}
	}

	select {
	case <-time.After(opts.wait):
	case <-s.done:
		return s.audio(), nil
	case <-ctx.Done():
	}

	if err := s.send(&websocket.StopMessage{}); err != nil {
		return s.audio(), err
	}
	select {
	case <-s.done:
	case <-time.After(time.Second):
	}
	return s.audio(), nil
}

func requestToken(ctx context.Context, opts options) (string, error) {
	body, err := json.Marshal(api.TokenRequest{ClientID: opts.clientID, ClientSecret: opts.clientSecret})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(opts.server, "/")+"/api/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("authentication failed with status %d: %s", resp.StatusCode, string(raw))
	}

	var token api.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	return token.Token, nil
}

type clientSession struct {
	conn   *gorilla.Conn
	ready  chan struct{}
	done   chan struct{}
	logger *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	received []byte
}

func (s *clientSession) send(msg websocket.Message) error {
	data, err := websocket.EncodeMessage(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(gorilla.TextMessage, data)
}

func (s *clientSession) audio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.received...)
}

func (s *clientSession) readLoop() {
	defer close(s.done)
	readyOnce := sync.Once{}

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("Connection closed", zap.Error(err))
			return
		}
		if messageType != gorilla.TextMessage {
			continue
		}

		msg, err := websocket.DecodeMessage(data)
		if err != nil {
			s.logger.Warn("Failed to decode server message", zap.Error(err))
			continue
		}

		switch m := msg.(type) {
		case *websocket.ReadyMessage:
			readyOnce.Do(func() { close(s.ready) })
		case *websocket.AudioMessage:
			chunk, err := m.Bytes()
			if err != nil {
				continue
			}
			s.mu.Lock()
			s.received = append(s.received, chunk...)
			s.mu.Unlock()
		case *websocket.StopMessage:
			s.logger.Info("Server stopped the conversation")
			return
		}
	}
}
