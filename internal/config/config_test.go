package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/satriahrh/arunika/streaming/domain/entities"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Server.OutputChunkDuration() != 100*time.Millisecond {
		t.Fatalf("expected 100ms chunks, got %v", cfg.Server.OutputChunkDuration())
	}
	defaults := cfg.HandshakeDefaults()
	if defaults.Transcriber != entities.TranscriberTypeDeepgram || defaults.Synthesizer != entities.SynthesizerTypePlayHT {
		t.Fatalf("unexpected handshake defaults %+v", defaults)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
  pace_output: false
auth:
  enabled: true
  jwt_secret: s3cret
  clients:
    phone-gateway: abc
defaults:
  synthesizer: synthesizer_eleven_labs
  agent: agent_gemini
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.PaceOutput {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if cfg.Server.ReadBufferSize != 1024 {
		t.Fatalf("expected unset fields to keep defaults, got %d", cfg.Server.ReadBufferSize)
	}
	if cfg.Auth.Clients["phone-gateway"] != "abc" {
		t.Fatalf("expected client secret, got %v", cfg.Auth.Clients)
	}
	if cfg.Defaults.Synthesizer != string(entities.SynthesizerTypeElevenLabs) {
		t.Fatalf("expected synthesizer default override, got %s", cfg.Defaults.Synthesizer)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("PACE_OUTPUT", "false")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("AUTH_CLIENTS", "a:1, b:2, broken")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("DEEPGRAM_API_KEY", "dg")
	t.Setenv("PLAY_HT_API_KEY", "ph")
	t.Setenv("PLAY_HT_USER_ID", "user")
	t.Setenv("DEFAULT_TRANSCRIBER", "transcriber_assembly_ai")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7000 || cfg.Server.PaceOutput {
		t.Fatalf("expected server env overrides, got %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.JWTSecret != "env-secret" {
		t.Fatalf("expected auth env overrides")
	}
	if len(cfg.Auth.Clients) != 2 || cfg.Auth.Clients["b"] != "2" {
		t.Fatalf("expected two clients, got %v", cfg.Auth.Clients)
	}
	if cfg.Mongo.URI != "mongodb://db:27017" {
		t.Fatalf("expected mongo uri override")
	}
	if cfg.TranscriberCredentials().DeepgramAPIKey != "dg" {
		t.Fatalf("expected deepgram key")
	}
	playHT := cfg.SynthesizerCredentials().PlayHT
	if playHT.APIKey != "ph" || playHT.UserID != "user" {
		t.Fatalf("expected play.ht credentials, got %+v", playHT)
	}
	if cfg.HandshakeDefaults().Transcriber != entities.TranscriberTypeAssemblyAI {
		t.Fatalf("expected transcriber default override")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"chunk", func(c *Config) { c.Server.OutputChunkMS = 0 }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }},
		{"mongo without uri", func(c *Config) { c.Mongo.Enabled = true; c.Mongo.URI = "" }},
		{"unknown transcriber", func(c *Config) { c.Defaults.Transcriber = "transcriber_whisper" }},
		{"abstract synthesizer", func(c *Config) { c.Defaults.Synthesizer = string(entities.SynthesizerTypeBase) }},
		{"unknown agent", func(c *Config) { c.Defaults.Agent = "agent_gpt" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
