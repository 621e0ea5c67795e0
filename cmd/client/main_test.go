package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/internal/audio"
	"github.com/satriahrh/arunika/streaming/internal/websocket"
)

// fakeServer answers the handshake, replies to the first audio chunk and echoes Stop
func fakeServer(t *testing.T, reply []byte, chunks *int32) *httptest.Server {
	upgrader := gorilla.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversation" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		write := func(msg websocket.Message) {
			data, _ := websocket.EncodeMessage(msg)
			conn.WriteMessage(gorilla.TextMessage, data)
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := websocket.DecodeMessage(data)
			if err != nil {
				return
			}
			switch msg.(type) {
			case *websocket.AudioConfigStartMessage:
				write(&websocket.ReadyMessage{})
			case *websocket.AudioMessage:
				if atomic.AddInt32(chunks, 1) == 1 {
					write(websocket.NewAudioMessage(reply))
				}
			case *websocket.StopMessage:
				write(&websocket.StopMessage{})
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func writeInput(t *testing.T, seconds float64, rate int) string {
	t.Helper()
	pcm := make([]byte, int(seconds*float64(rate))*2)
	wav, err := audio.EncodeAsWAV(pcm, rate, entities.AudioEncodingLinear16)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "input.wav")
	require.NoError(t, os.WriteFile(path, wav, 0o600))
	return path
}

func TestRun_StreamsInputAndCollectsReply(t *testing.T) {
	var chunks int32
	reply := []byte{1, 2, 3, 4}
	server := fakeServer(t, reply, &chunks)

	opts := options{
		server:     server.URL,
		input:      writeInput(t, 0.3, 8000),
		sampleRate: 8000,
		wait:       50 * time.Millisecond,
	}

	received, err := run(context.Background(), opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, reply, received)
	// 0.3 s at 100 ms per chunk
	assert.Equal(t, int32(3), atomic.LoadInt32(&chunks))
}

func TestRun_MissingInput(t *testing.T) {
	_, err := run(context.Background(), options{input: filepath.Join(t.TempDir(), "missing.wav"), sampleRate: 8000}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestRun_TokenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	opts := options{
		server:     server.URL,
		clientID:   "gateway",
		input:      writeInput(t, 0.1, 8000),
		sampleRate: 8000,
	}
	_, err := run(context.Background(), opts, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "authentication failed")
}
