package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/internal/auth"
	"github.com/satriahrh/arunika/streaming/internal/metrics"
	"github.com/satriahrh/arunika/streaming/internal/websocket"
)

const anonymousClient = "anonymous"

// AuthOptions controls client authentication. A nil Issuer disables it.
type AuthOptions struct {
	Issuer  *auth.Issuer
	Clients map[string]string
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, m *metrics.Metrics, opts AuthOptions, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"service":     "voice-streaming",
			"connections": hub.ClientCount(),
		})
	})

	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.POST("/auth/token", func(c echo.Context) error {
		return issueToken(c, opts, logger)
	})

	// WebSocket endpoint, JWT validated when auth is enabled
	e.GET("/conversation", func(c echo.Context) error {
		return websocketWithAuth(hub, c, opts.Issuer, logger)
	})
}

func issueToken(c echo.Context, opts AuthOptions, logger *zap.Logger) error {
	if opts.Issuer == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "auth_disabled",
			Message: "Authentication is not enabled on this server",
		})
	}

	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.ClientID == "" || req.ClientSecret == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Client ID and client secret are required",
		})
	}

	expected, ok := opts.Clients[req.ClientID]
	if !ok || subtle.ConstantTimeCompare([]byte(expected), []byte(req.ClientSecret)) != 1 {
		logger.Warn("Client authentication failed", zap.String("clientID", req.ClientID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid client credentials",
		})
	}

	token, expiresAt, err := opts.Issuer.GenerateClientToken(req.ClientID)
	if err != nil {
		logger.Error("Failed to generate client token",
			zap.String("clientID", req.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Client authenticated successfully", zap.String("clientID", req.ClientID))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ClientID:  req.ClientID,
	})
}

// websocketWithAuth handles WebSocket connections, requiring a bearer token when an issuer is set
func websocketWithAuth(hub *websocket.Hub, c echo.Context, issuer *auth.Issuer, logger *zap.Logger) error {
	if issuer == nil {
		return hub.HandleWebSocket(c, anonymousClient)
	}

	// Extract JWT token from Authorization header only
	token, found := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	logger.Info("WebSocket connection authenticated", zap.String("clientID", claims.ClientID))

	return hub.HandleWebSocket(c, claims.ClientID)
}
