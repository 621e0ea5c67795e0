package websocket

import (
	"time"

	"go.uber.org/zap"
)

// HandshakeReaper closes connections that never complete their handshake
type HandshakeReaper struct {
	hub      *Hub
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewHandshakeReaper creates a reaper that checks every interval for connections older than timeout
func NewHandshakeReaper(hub *Hub, timeout, interval time.Duration, logger *zap.Logger) *HandshakeReaper {
	return &HandshakeReaper{
		hub:      hub,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (r *HandshakeReaper) Start() {
	go r.cleanupLoop()
	r.logger.Info("Handshake reaper started", zap.Duration("timeout", r.timeout))
}

// Stop gracefully stops the reaper
func (r *HandshakeReaper) Stop() {
	close(r.stopChan)
	r.logger.Info("Handshake reaper stopped")
}

func (r *HandshakeReaper) cleanupLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case now := <-ticker.C:
			r.runCleanup(now)
		}
	}
}

// runCleanup closes every client still waiting for a handshake past the timeout
func (r *HandshakeReaper) runCleanup(now time.Time) int {
	var stale []*Client

	r.hub.mu.RLock()
	for _, client := range r.hub.clients {
		if client.session.State() == StateAwaitingHandshake && now.Sub(client.createdAt) > r.timeout {
			stale = append(stale, client)
		}
	}
	r.hub.mu.RUnlock()

	for _, client := range stale {
		r.hub.metrics.ProtocolViolations.WithLabelValues("handshake_timeout").Inc()
		client.stop("handshake timeout")
	}

	if len(stale) > 0 {
		r.logger.Info("Closed connections without handshake", zap.Int("count", len(stale)))
	}
	return len(stale)
}
