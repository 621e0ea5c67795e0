package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/adapters"
	"github.com/satriahrh/arunika/streaming/adapters/llm"
	"github.com/satriahrh/arunika/streaming/adapters/mongo"
	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
	"github.com/satriahrh/arunika/streaming/internal/api"
	"github.com/satriahrh/arunika/streaming/internal/auth"
	"github.com/satriahrh/arunika/streaming/internal/config"
	"github.com/satriahrh/arunika/streaming/internal/metrics"
	"github.com/satriahrh/arunika/streaming/internal/websocket"
	"github.com/satriahrh/arunika/streaming/usecase"
)

const reaperInterval = 10 * time.Second

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()

	// Conversation storage
	var repo repositories.ConversationRepository = adapters.NewMemoryConversationRepository()
	if cfg.Mongo.Enabled {
		client, err := mongo.NewClient(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Close(context.Background())

		mongoRepo := mongo.NewConversationRepository(client.Database, logger)
		if err := mongoRepo.EnsureIndexes(ctx); err != nil {
			logger.Fatal("Failed to create conversation indexes", zap.Error(err))
		}
		repo = mongoRepo
	}

	// Initialize adapters
	gemini, err := llm.NewGeminiIfConfigured(ctx, cfg.Credentials.GeminiAPIKey, logger)
	if err != nil {
		logger.Fatal("Failed to create Gemini client", zap.Error(err))
	}
	backends := adapters.NewProviderBackends(cfg.TranscriberCredentials(), cfg.SynthesizerCredentials(), gemini, cfg.Server.MockBackends, logger)

	// Initialize usecase services
	conversationService := usecase.NewConversationService(backends, repo, usecase.ServiceConfig{
		PaceOutput:          cfg.Server.PaceOutput,
		OutputChunkDuration: cfg.Server.OutputChunkDuration(),
		SynthesisTimeout:    cfg.Server.SynthesisTimeout(),
	}, m, logger)

	// Initialize WebSocket hub with conversation service
	hub := websocket.NewHub(websocket.HubConfig{
		ReadBufferSize:  cfg.Server.ReadBufferSize,
		WriteBufferSize: cfg.Server.WriteBufferSize,
		Defaults:        cfg.HandshakeDefaults(),
	}, startConversation(conversationService), m, logger)
	go hub.Run(ctx)

	reaper := websocket.NewHandshakeReaper(hub, cfg.Server.HandshakeTimeout(), reaperInterval, logger)
	reaper.Start()
	defer reaper.Stop()

	authOptions := api.AuthOptions{Clients: cfg.Auth.Clients}
	if cfg.Auth.Enabled {
		issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
		if err != nil {
			logger.Fatal("Failed to create token issuer", zap.Error(err))
		}
		authOptions.Issuer = issuer
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, hub, m, authOptions, logger)

	port := strconv.Itoa(cfg.Server.Port)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", port),
		zap.Bool("auth", cfg.Auth.Enabled),
		zap.Bool("mongo", cfg.Mongo.Enabled),
		zap.Bool("mockBackends", cfg.Server.MockBackends))

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// startConversation adapts the service to the hub, keeping a failed start a nil interface
func startConversation(service *usecase.ConversationService) websocket.StartFunc {
	return func(ctx context.Context, handshake entities.Handshake, sink websocket.AudioSink) (websocket.Conversation, error) {
		conversation, err := service.Start(ctx, handshake, sink)
		if err != nil {
			return nil, err
		}
		return conversation, nil
	}
}
