package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/satriahrh/arunika/streaming/adapters/stt"
	"github.com/satriahrh/arunika/streaming/adapters/tts"
	"github.com/satriahrh/arunika/streaming/domain/entities"
)

type ServerConfig struct {
	Port            int    `yaml:"port"`
	LogLevel        string `yaml:"log_level"`
	ReadBufferSize  int    `yaml:"read_buffer_size"`
	WriteBufferSize int    `yaml:"write_buffer_size"`
	// PaceOutput sends synthesized audio at playback speed instead of as fast as possible.
	PaceOutput         bool `yaml:"pace_output"`
	OutputChunkMS      int  `yaml:"output_chunk_ms"`
	SynthesisTimeoutMS int  `yaml:"synthesis_timeout_ms"`
	HandshakeTimeoutS  int  `yaml:"handshake_timeout_seconds"`
	// MockBackends replaces every transcriber and synthesizer with the local mocks.
	MockBackends bool `yaml:"mock_backends"`
}

type AuthConfig struct {
	Enabled         bool   `yaml:"enabled"`
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	// Clients maps client ids to the secrets they exchange for a token.
	Clients map[string]string `yaml:"clients"`
}

type MongoConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type CredentialsConfig struct {
	DeepgramAPIKey        string `yaml:"deepgram_api_key"`
	AssemblyAIAPIKey      string `yaml:"assembly_ai_api_key"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
	PlayHTAPIKey          string `yaml:"play_ht_api_key"`
	PlayHTUserID          string `yaml:"play_ht_user_id"`
	ElevenLabsAPIKey      string `yaml:"eleven_labs_api_key"`
	ElevenLabsBaseURL     string `yaml:"eleven_labs_base_url"`
	GeminiAPIKey          string `yaml:"gemini_api_key"`
}

// DefaultsConfig names the backends used by sessions that only negotiate audio formats
type DefaultsConfig struct {
	Transcriber string `yaml:"transcriber"`
	Synthesizer string `yaml:"synthesizer"`
	Agent       string `yaml:"agent"`
}

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Mongo       MongoConfig       `yaml:"mongo"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:               8080,
			LogLevel:           "info",
			ReadBufferSize:     1024,
			WriteBufferSize:    1024,
			PaceOutput:         true,
			OutputChunkMS:      100,
			SynthesisTimeoutMS: 5000,
			HandshakeTimeoutS:  30,
		},
		Auth: AuthConfig{
			TokenTTLMinutes: 24 * 60,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "voice_streaming",
		},
		Defaults: DefaultsConfig{
			Transcriber: string(entities.TranscriberTypeDeepgram),
			Synthesizer: string(entities.SynthesizerTypePlayHT),
			Agent:       string(entities.AgentTypeEcho),
		},
	}
}

// Load reads an optional YAML file over the defaults, then applies environment overrides
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideInt(&cfg.Server.Port, "PORT")
	overrideString(&cfg.Server.LogLevel, "LOG_LEVEL")
	overrideBool(&cfg.Server.PaceOutput, "PACE_OUTPUT")
	overrideInt(&cfg.Server.OutputChunkMS, "OUTPUT_CHUNK_MS")
	overrideBool(&cfg.Server.MockBackends, "MOCK_BACKENDS")
	overrideBool(&cfg.Auth.Enabled, "AUTH_ENABLED")
	overrideString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	overrideClients(&cfg.Auth.Clients, "AUTH_CLIENTS")
	overrideBool(&cfg.Mongo.Enabled, "MONGODB_ENABLED")
	overrideString(&cfg.Mongo.URI, "MONGODB_URI")
	overrideString(&cfg.Mongo.Database, "MONGODB_DATABASE")
	overrideString(&cfg.Credentials.DeepgramAPIKey, "DEEPGRAM_API_KEY")
	overrideString(&cfg.Credentials.AssemblyAIAPIKey, "ASSEMBLY_AI_API_KEY")
	overrideString(&cfg.Credentials.GoogleCredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	overrideString(&cfg.Credentials.PlayHTAPIKey, "PLAY_HT_API_KEY")
	overrideString(&cfg.Credentials.PlayHTUserID, "PLAY_HT_USER_ID")
	overrideString(&cfg.Credentials.ElevenLabsAPIKey, "ELEVEN_LABS_API_KEY")
	overrideString(&cfg.Credentials.ElevenLabsBaseURL, "ELEVEN_LABS_API_BASE_URL")
	overrideString(&cfg.Credentials.GeminiAPIKey, "GEMINI_API_KEY")
	overrideString(&cfg.Defaults.Transcriber, "DEFAULT_TRANSCRIBER")
	overrideString(&cfg.Defaults.Synthesizer, "DEFAULT_SYNTHESIZER")
	overrideString(&cfg.Defaults.Agent, "DEFAULT_AGENT")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

// overrideClients reads "id:secret,id:secret"
func overrideClients(target *map[string]string, envKey string) {
	value, ok := os.LookupEnv(envKey)
	if !ok {
		return
	}
	clients := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		id, secret, found := strings.Cut(strings.TrimSpace(pair), ":")
		if found && id != "" && secret != "" {
			clients[id] = secret
		}
	}
	if len(clients) > 0 {
		*target = clients
	}
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Server.OutputChunkMS <= 0 {
		return errors.New("server.output_chunk_ms must be positive")
	}
	if c.Server.SynthesisTimeoutMS <= 0 {
		return errors.New("server.synthesis_timeout_ms must be positive")
	}
	if c.Server.HandshakeTimeoutS <= 0 {
		return errors.New("server.handshake_timeout_seconds must be positive")
	}
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret must be set when auth is enabled")
		}
		if c.Auth.TokenTTLMinutes <= 0 {
			return errors.New("auth.token_ttl_minutes must be positive")
		}
	}
	if c.Mongo.Enabled && (c.Mongo.URI == "" || c.Mongo.Database == "") {
		return errors.New("mongo.uri and mongo.database must be set when mongo is enabled")
	}
	if !entities.TranscriberConfigs.Has(c.Defaults.Transcriber) {
		return fmt.Errorf("defaults.transcriber must be one of %s", strings.Join(entities.TranscriberConfigs.Types(), "|"))
	}
	if !entities.SynthesizerConfigs.Has(c.Defaults.Synthesizer) {
		return fmt.Errorf("defaults.synthesizer must be one of %s", strings.Join(entities.SynthesizerConfigs.Types(), "|"))
	}
	if !entities.AgentConfigs.Has(c.Defaults.Agent) {
		return fmt.Errorf("defaults.agent must be one of %s", strings.Join(entities.AgentConfigs.Types(), "|"))
	}
	return nil
}

// HandshakeDefaults returns the backend types for audio-config-only sessions
func (c Config) HandshakeDefaults() entities.HandshakeDefaults {
	return entities.HandshakeDefaults{
		Transcriber: entities.TranscriberType(c.Defaults.Transcriber),
		Synthesizer: entities.SynthesizerType(c.Defaults.Synthesizer),
		Agent:       entities.AgentType(c.Defaults.Agent),
	}
}

func (c Config) TranscriberCredentials() stt.Credentials {
	return stt.Credentials{
		DeepgramAPIKey:        c.Credentials.DeepgramAPIKey,
		AssemblyAIAPIKey:      c.Credentials.AssemblyAIAPIKey,
		GoogleCredentialsFile: c.Credentials.GoogleCredentialsFile,
	}
}

func (c Config) SynthesizerCredentials() tts.Credentials {
	return tts.Credentials{
		PlayHT: tts.PlayHTConfig{
			APIKey: c.Credentials.PlayHTAPIKey,
			UserID: c.Credentials.PlayHTUserID,
		},
		ElevenLabs: tts.ElevenLabsConfig{
			APIKey:     c.Credentials.ElevenLabsAPIKey,
			APIBaseURL: c.Credentials.ElevenLabsBaseURL,
		},
	}
}

func (s ServerConfig) OutputChunkDuration() time.Duration {
	return time.Duration(s.OutputChunkMS) * time.Millisecond
}

func (s ServerConfig) SynthesisTimeout() time.Duration {
	return time.Duration(s.SynthesisTimeoutMS) * time.Millisecond
}

func (s ServerConfig) HandshakeTimeout() time.Duration {
	return time.Duration(s.HandshakeTimeoutS) * time.Second
}

func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}
