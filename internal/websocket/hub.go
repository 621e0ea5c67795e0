package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for base64 audio chunks
)

// AudioSink delivers synthesized audio to the client of one conversation
type AudioSink interface {
	SendAudio(chunk []byte) error
}

// Conversation is the running voice conversation behind an active session
type Conversation interface {
	ReceiveAudio(data []byte) error
	Close() error
}

// StartFunc starts the conversation for an accepted handshake
type StartFunc func(ctx context.Context, handshake entities.Handshake, sink AudioSink) (Conversation, error)

// HubConfig holds the transport settings of the hub
type HubConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	Defaults        entities.HandshakeDefaults
}

// Hub maintains the set of active clients.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	quit chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	upgrader websocket.Upgrader
	defaults entities.HandshakeDefaults
	start    StartFunc
	metrics  *metrics.Metrics

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(cfg HubConfig, start StartFunc, m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
		defaults: cfg.Defaults,
		start:    start,
		metrics:  m,
		logger:   logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.metrics.ActiveSessions.Inc()
			h.logger.Info("Client registered", zap.String("connectionID", client.id), zap.String("subject", client.subject))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				h.metrics.ActiveSessions.Dec()
				h.metrics.SessionsClosed.Inc()
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("connectionID", client.id))

		case <-ctx.Done():
			h.mu.RLock()
			for _, client := range h.clients {
				client.stop("server shutting down")
			}
			h.mu.RUnlock()
			return
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client returns a connected client by its connection ID
func (h *Hub) Client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[id]
	return client, ok
}

// HandleWebSocket upgrades the request and serves the conversation protocol on it.
// subject identifies the authenticated caller and is only used for logging.
func (h *Hub) HandleWebSocket(c echo.Context, subject string) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	id := uuid.NewString()
	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan WriteData, 256),
		done:      make(chan struct{}),
		id:        id,
		subject:   subject,
		session:   NewSession(h.defaults),
		createdAt: time.Now(),
		logger:    h.logger.With(zap.String("connectionID", id)),
	}

	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return errors.New("hub is not running")
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed once the client is shutting down.
	done     chan struct{}
	doneOnce sync.Once

	id        string
	subject   string
	createdAt time.Time

	logger *zap.Logger

	session *Session

	// Only touched by readPump.
	conversation Conversation
}

// ID returns the connection ID
func (c *Client) ID() string {
	return c.id
}

// Session returns the protocol state of this connection
func (c *Client) Session() *Session {
	return c.session
}

// readPump pumps messages from the websocket connection to the conversation.
func (c *Client) readPump() {
	defer func() {
		c.closeConversation()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.finish()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		var keepReading bool
		switch messageType {
		case websocket.TextMessage:
			keepReading = c.processMessage(message)
		case websocket.BinaryMessage:
			keepReading = c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
			keepReading = true
		}
		if !keepReading {
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.finish()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.finish()
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(message WriteData) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(message.Type, message.Payload)
}

// flush writes whatever is still queued, such as a final Stop message.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// processMessage handles one text frame and reports whether the connection stays open
func (c *Client) processMessage(raw []byte) bool {
	msg, err := DecodeMessage(raw)
	if err != nil {
		c.hub.metrics.ProtocolViolations.WithLabelValues(violationReason(err)).Inc()
		c.logger.Warn("Rejected message", zap.Error(err))
		return true
	}

	event, err := c.session.Accept(msg)
	if err != nil {
		c.hub.metrics.ProtocolViolations.WithLabelValues(violationReason(err)).Inc()
		if errors.Is(err, entities.ErrUnexpectedMessage) {
			c.logger.Warn("Protocol violation, closing session", zap.Error(err))
			c.stop("protocol violation")
			return false
		}
		c.logger.Warn("Rejected message", zap.Error(err))
		return true
	}

	return c.handleEvent(event, msg.VariantType())
}

// processBinaryAudioChunk treats a binary frame as raw audio in the negotiated input format
func (c *Client) processBinaryAudioChunk(data []byte) bool {
	if c.session.State() != StateActive || c.conversation == nil {
		c.hub.metrics.ProtocolViolations.WithLabelValues("unexpected_message").Inc()
		c.logger.Warn("Received binary audio outside an active session", zap.Int("size", len(data)))
		c.stop("protocol violation")
		return false
	}
	return c.handleEvent(Event{Kind: EventAudio, Audio: data}, string(MessageTypeAudio))
}

func (c *Client) handleEvent(event Event, messageType string) bool {
	switch event.Kind {
	case EventHandshake:
		return c.startConversation(event.Handshake, messageType)

	case EventAudio:
		c.hub.metrics.AudioBytesReceived.Add(float64(len(event.Audio)))
		if err := c.conversation.ReceiveAudio(event.Audio); err != nil {
			c.logger.Error("Failed to stream audio", zap.Error(err))
			c.stop("transcriber failure")
			return false
		}
		return true

	case EventStop:
		c.logger.Info("Client stopped the session")
		c.enqueue(StopMessage{})
		return false

	default:
		return true
	}
}

func (c *Client) startConversation(handshake entities.Handshake, messageType string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conversation, err := c.hub.start(ctx, handshake, c)
	if err != nil {
		c.logger.Error("Failed to start conversation",
			zap.String("conversationID", handshake.ConversationID),
			zap.Error(err))
		c.stop("conversation failed to start")
		return false
	}
	c.conversation = conversation
	c.hub.metrics.SessionsStarted.WithLabelValues(messageType).Inc()

	ready, first, err := c.session.MarkReady()
	if err != nil {
		c.logger.Warn("Session closed before ready", zap.Error(err))
		return false
	}
	if first {
		c.enqueue(ready)
	}

	c.logger.Info("Conversation started",
		zap.String("conversationID", handshake.ConversationID),
		zap.String("transcriber", handshake.Transcriber.VariantType()),
		zap.String("synthesizer", handshake.Synthesizer.VariantType()),
		zap.String("agent", handshake.Agent.VariantType()))
	return true
}

// SendAudio wraps a synthesized chunk as an audio message and queues it for the client.
func (c *Client) SendAudio(chunk []byte) error {
	msg, err := c.session.Outbound(chunk)
	if err != nil {
		return err
	}
	if err := c.enqueue(msg); err != nil {
		return err
	}
	c.hub.metrics.ChunksSent.Inc()
	c.hub.metrics.ChunkBytesSent.Add(float64(len(chunk)))
	return nil
}

// errClientGone is returned when writing to a client that already shut down
var errClientGone = errors.New("client connection closed")

func (c *Client) enqueue(msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	case <-c.done:
		return errClientGone
	}
}

// stop ends the session from the server side, telling the client with a Stop message.
func (c *Client) stop(reason string) {
	if stopMsg, ok := c.session.Close(); ok {
		c.logger.Info("Closing session", zap.String("reason", reason))
		select {
		case c.send <- WriteData{Type: websocket.TextMessage, Payload: mustEncode(stopMsg)}:
		default:
		}
	}
	c.finish()
}

func (c *Client) closeConversation() {
	if c.conversation == nil {
		return
	}
	if err := c.conversation.Close(); err != nil {
		c.logger.Warn("Failed to close conversation", zap.Error(err))
	}
}

func (c *Client) finish() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

func mustEncode(msg Message) []byte {
	payload, err := EncodeMessage(msg)
	if err != nil {
		panic(err)
	}
	return payload
}

func violationReason(err error) string {
	switch {
	case errors.Is(err, entities.ErrUnknownVariant):
		return "unknown_variant"
	case errors.Is(err, entities.ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, entities.ErrUnexpectedMessage):
		return "unexpected_message"
	default:
		return "malformed"
	}
}
