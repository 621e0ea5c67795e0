package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/internal/metrics"
)

type fakeConversation struct {
	mu     sync.Mutex
	audio  [][]byte
	closed int
}

func (f *fakeConversation) ReceiveAudio(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, data)
	return nil
}

func (f *fakeConversation) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeConversation) snapshot() ([][]byte, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.audio...), f.closed
}

type testServer struct {
	hub          *Hub
	metrics      *metrics.Metrics
	conversation *fakeConversation
	handshakes   chan entities.Handshake
	url          string
}

func setupTestHub(t *testing.T, greeting []byte) *testServer {
	t.Helper()

	ts := &testServer{
		metrics:      metrics.NewMetrics(),
		conversation: &fakeConversation{},
		handshakes:   make(chan entities.Handshake, 1),
	}

	start := func(ctx context.Context, handshake entities.Handshake, sink AudioSink) (Conversation, error) {
		ts.handshakes <- handshake
		if greeting != nil {
			go sink.SendAudio(greeting)
		}
		return ts.conversation, nil
	}

	ts.hub = NewHub(HubConfig{ReadBufferSize: 1024, WriteBufferSize: 1024, Defaults: testDefaults}, start, ts.metrics, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ts.hub.Run(ctx)

	e := echo.New()
	e.GET("/conversation", func(c echo.Context) error {
		return ts.hub.HandleWebSocket(c, "test-client")
	})
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	ts.url = "ws" + strings.TrimPrefix(server.URL, "http") + "/conversation"
	return ts
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	msg, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("Server sent undecodable message %s: %v", data, err)
	}
	return msg
}

func writeMessage(t *testing.T, ws *websocket.Conn, msg Message) {
	t.Helper()
	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("Failed to encode message: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition not met in time")
}

func TestHub_ConversationLifecycle(t *testing.T) {
	ts := setupTestHub(t, []byte("hello"))
	ws := dial(t, ts.url)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(validStart)); err != nil {
		t.Fatalf("Failed to send start: %v", err)
	}

	select {
	case h := <-ts.handshakes:
		if h.ConversationID != "conv-1" {
			t.Errorf("Expected conversation conv-1, got %s", h.ConversationID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Conversation was not started")
	}

	// Ready and the greeting chunk may arrive in either order
	var gotReady, gotAudio bool
	for i := 0; i < 2; i++ {
		switch m := readMessage(t, ws).(type) {
		case *ReadyMessage:
			gotReady = true
		case *AudioMessage:
			data, err := m.Bytes()
			if err != nil || string(data) != "hello" {
				t.Errorf("Unexpected audio payload %q (%v)", data, err)
			}
			gotAudio = true
		default:
			t.Errorf("Unexpected message %T", m)
		}
	}
	if !gotReady || !gotAudio {
		t.Fatalf("Expected ready and audio, got ready=%v audio=%v", gotReady, gotAudio)
	}

	writeMessage(t, ws, NewAudioMessage([]byte("abc")))
	if err := ws.WriteMessage(websocket.BinaryMessage, []byte("def")); err != nil {
		t.Fatalf("Failed to send binary audio: %v", err)
	}
	waitFor(t, func() bool {
		audio, _ := ts.conversation.snapshot()
		return len(audio) == 2
	})
	audio, _ := ts.conversation.snapshot()
	if string(audio[0]) != "abc" || string(audio[1]) != "def" {
		t.Errorf("Unexpected audio forwarded: %q", audio)
	}

	writeMessage(t, ws, &StopMessage{})
	if _, ok := readMessage(t, ws).(*StopMessage); !ok {
		t.Error("Expected Stop echoed back")
	}

	waitFor(t, func() bool { return ts.hub.ClientCount() == 0 })
	_, closed := ts.conversation.snapshot()
	if closed != 1 {
		t.Errorf("Expected conversation closed once, got %d", closed)
	}
	if got := testutil.ToFloat64(ts.metrics.SessionsStarted.WithLabelValues(string(MessageTypeStart))); got != 1 {
		t.Errorf("Expected 1 started session, got %v", got)
	}
	if got := testutil.ToFloat64(ts.metrics.AudioBytesReceived); got != 6 {
		t.Errorf("Expected 6 audio bytes received, got %v", got)
	}
}

func TestHub_AudioBeforeHandshakeClosesSession(t *testing.T) {
	ts := setupTestHub(t, nil)
	ws := dial(t, ts.url)

	writeMessage(t, ws, NewAudioMessage([]byte("too early")))

	if _, ok := readMessage(t, ws).(*StopMessage); !ok {
		t.Error("Expected Stop after protocol violation")
	}
	waitFor(t, func() bool { return ts.hub.ClientCount() == 0 })

	if got := testutil.ToFloat64(ts.metrics.ProtocolViolations.WithLabelValues("unexpected_message")); got != 1 {
		t.Errorf("Expected 1 protocol violation, got %v", got)
	}
}

func TestHub_UnknownMessageKeepsConnection(t *testing.T) {
	ts := setupTestHub(t, nil)
	ws := dial(t, ts.url)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"websocket_ping"}`)); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(validStart)); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	if _, ok := readMessage(t, ws).(*ReadyMessage); !ok {
		t.Error("Expected Ready after valid start")
	}
	if got := testutil.ToFloat64(ts.metrics.ProtocolViolations.WithLabelValues("unknown_variant")); got != 1 {
		t.Errorf("Expected 1 unknown variant violation, got %v", got)
	}
}

func TestHandshakeReaper_ClosesIdleConnections(t *testing.T) {
	ts := setupTestHub(t, nil)
	ws := dial(t, ts.url)
	waitFor(t, func() bool { return ts.hub.ClientCount() == 1 })

	reaper := NewHandshakeReaper(ts.hub, time.Minute, time.Hour, zap.NewNop())
	if n := reaper.runCleanup(time.Now()); n != 0 {
		t.Errorf("Expected no stale connections yet, got %d", n)
	}
	if n := reaper.runCleanup(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Errorf("Expected 1 stale connection, got %d", n)
	}

	if _, ok := readMessage(t, ws).(*StopMessage); !ok {
		t.Error("Expected Stop from reaper")
	}
	waitFor(t, func() bool { return ts.hub.ClientCount() == 0 })
}

func TestHub_ShutdownStopsClients(t *testing.T) {
	ts := setupTestHub(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(HubConfig{Defaults: testDefaults}, nil, ts.metrics, zap.NewNop())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if hub.ClientCount() != 0 {
		t.Error("Expected no clients after shutdown")
	}
}
