package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/internal/auth"
	"github.com/satriahrh/arunika/streaming/internal/metrics"
	"github.com/satriahrh/arunika/streaming/internal/websocket"
)

var testDefaults = entities.HandshakeDefaults{
	Transcriber: entities.TranscriberTypeDeepgram,
	Synthesizer: entities.SynthesizerTypePlayHT,
	Agent:       entities.AgentTypeEcho,
}

func setupServer(t *testing.T, opts AuthOptions) (*websocket.Hub, *httptest.Server) {
	t.Helper()

	m := metrics.NewMetrics()
	hub := websocket.NewHub(websocket.HubConfig{ReadBufferSize: 1024, WriteBufferSize: 1024, Defaults: testDefaults}, nil, m, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	e := echo.New()
	InitRoutes(e, hub, m, opts, zap.NewNop())
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return hub, server
}

func authOptions(t *testing.T) AuthOptions {
	t.Helper()
	issuer, err := auth.NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	return AuthOptions{Issuer: issuer, Clients: map[string]string{"gateway": "pa55"}}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/conversation"
}

func requestToken(t *testing.T, server *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+"/api/v1/auth/token", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	_, server := setupServer(t, AuthOptions{})

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])

	metricsResp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestIssueToken(t *testing.T) {
	opts := authOptions(t)
	_, server := setupServer(t, opts)

	resp := requestToken(t, server, `{"client_id":"gateway","client_secret":"pa55"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "gateway", body.ClientID)

	claims, err := opts.Issuer.ValidateToken(body.Token)
	require.NoError(t, err)
	assert.Equal(t, "gateway", claims.ClientID)
}

func TestIssueToken_Failures(t *testing.T) {
	_, server := setupServer(t, authOptions(t))

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed", `{"client_id":`, http.StatusBadRequest, "invalid_request"},
		{"missing secret", `{"client_id":"gateway"}`, http.StatusBadRequest, "missing_fields"},
		{"wrong secret", `{"client_id":"gateway","client_secret":"nope"}`, http.StatusUnauthorized, "authentication_failed"},
		{"unknown client", `{"client_id":"other","client_secret":"pa55"}`, http.StatusUnauthorized, "authentication_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := requestToken(t, server, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Error)
		})
	}
}

func TestIssueToken_AuthDisabled(t *testing.T) {
	_, server := setupServer(t, AuthOptions{})
	resp := requestToken(t, server, `{"client_id":"gateway","client_secret":"pa55"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConversationEndpoint_RequiresToken(t *testing.T) {
	opts := authOptions(t)
	hub, server := setupServer(t, opts)

	_, resp, err := gorilla.DefaultDialer.Dial(wsURL(server), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"Authorization": []string{"Bearer not-a-token"}}
	_, resp, err = gorilla.DefaultDialer.Dial(wsURL(server), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, _, err := opts.Issuer.GenerateClientToken("gateway")
	require.NoError(t, err)
	header = http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := gorilla.DefaultDialer.Dial(wsURL(server), header)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestConversationEndpoint_AuthDisabled(t *testing.T) {
	hub, server := setupServer(t, AuthOptions{})

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}
