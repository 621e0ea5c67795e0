package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
	"github.com/satriahrh/arunika/streaming/internal/audio"
)

// DeepgramURL is the Deepgram live transcription endpoint
const DeepgramURL = "wss://api.deepgram.com/v1/listen"

// DeepgramSpeechToText implements SpeechToText with the Deepgram live API
type DeepgramSpeechToText struct {
	apiKey string
	url    string
	logger *zap.Logger
}

// NewDeepgramSpeechToText creates a Deepgram transcriber
func NewDeepgramSpeechToText(apiKey string, logger *zap.Logger) *DeepgramSpeechToText {
	return &DeepgramSpeechToText{
		apiKey: apiKey,
		url:    DeepgramURL,
		logger: logger,
	}
}

func (d *DeepgramSpeechToText) InitTranscribeStreaming(ctx context.Context, config entities.TranscriberConfig) (repositories.SpeechToTextStreaming, error) {
	cfg, ok := asDeepgram(config)
	if !ok {
		return nil, fmt.Errorf("%w: deepgram cannot use %s", entities.ErrInvalidConfiguration, config.VariantType())
	}

	listenURL, err := deepgramListenURL(d.url, cfg)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.apiKey)

	factor := 1
	if cfg.Downsampling != nil && cfg.AudioEncoding == entities.AudioEncodingLinear16 {
		factor = *cfg.Downsampling
	}
	encode := func(data []byte) (int, []byte, error) {
		return websocket.BinaryMessage, audio.DownsamplePCM16(data, factor), nil
	}

	d.logger.Info("Opening Deepgram stream",
		zap.Int("sampleRate", cfg.SamplingRate),
		zap.String("encoding", string(cfg.AudioEncoding)),
		zap.Int("downsampling", factor))

	return dialStream(ctx, listenURL, header, encode, parseDeepgram, []byte(`{"type":"CloseStream"}`), d.logger)
}

func asDeepgram(config entities.TranscriberConfig) (entities.DeepgramTranscriberConfig, bool) {
	switch c := config.(type) {
	case *entities.DeepgramTranscriberConfig:
		return *c, true
	case entities.DeepgramTranscriberConfig:
		return c, true
	}
	return entities.DeepgramTranscriberConfig{}, false
}

// deepgramListenURL builds the listen endpoint query from the transcriber config
func deepgramListenURL(base string, cfg entities.DeepgramTranscriberConfig) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid deepgram url: %w", err)
	}

	sampleRate := cfg.SamplingRate
	if cfg.Downsampling != nil && cfg.AudioEncoding == entities.AudioEncodingLinear16 {
		sampleRate /= *cfg.Downsampling
	}

	q := url.Values{}
	q.Set("encoding", string(cfg.AudioEncoding))
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	if cfg.Language != nil {
		q.Set("language", *cfg.Language)
	}
	if cfg.Model != nil {
		q.Set("model", *cfg.Model)
	}
	if cfg.Tier != nil {
		q.Set("tier", *cfg.Tier)
	}
	if cfg.Version != nil {
		q.Set("version", *cfg.Version)
	}

	switch policy := cfg.Endpointing().(type) {
	case *entities.TimeEndpointingConfig:
		q.Set("endpointing", strconv.FormatInt(policy.TimeCutoff().Milliseconds(), 10))
	case *entities.PunctuationEndpointingConfig:
		q.Set("punctuate", "true")
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func parseDeepgram(data []byte) (repositories.Transcription, bool, bool, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return repositories.Transcription{}, false, false, err
	}

	switch resp.Type {
	case "Results":
		if len(resp.Channel.Alternatives) == 0 {
			return repositories.Transcription{}, false, false, nil
		}
		best := resp.Channel.Alternatives[0]
		return repositories.Transcription{
			Text:       best.Transcript,
			Confidence: best.Confidence,
			IsFinal:    resp.IsFinal,
		}, true, false, nil
	case "Metadata":
		// sent once the stream is closed
		return repositories.Transcription{}, false, true, nil
	default:
		return repositories.Transcription{}, false, false, nil
	}
}
