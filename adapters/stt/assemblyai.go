package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

// AssemblyAIURL is the AssemblyAI realtime endpoint
const AssemblyAIURL = "wss://api.assemblyai.com/v2/realtime/ws"

// AssemblyAISpeechToText implements SpeechToText with the AssemblyAI realtime API
type AssemblyAISpeechToText struct {
	apiKey string
	url    string
	logger *zap.Logger
}

// NewAssemblyAISpeechToText creates an AssemblyAI transcriber
func NewAssemblyAISpeechToText(apiKey string, logger *zap.Logger) *AssemblyAISpeechToText {
	return &AssemblyAISpeechToText{
		apiKey: apiKey,
		url:    AssemblyAIURL,
		logger: logger,
	}
}

func (a *AssemblyAISpeechToText) InitTranscribeStreaming(ctx context.Context, config entities.TranscriberConfig) (repositories.SpeechToTextStreaming, error) {
	base := config.Base()

	u, err := url.Parse(a.url)
	if err != nil {
		return nil, fmt.Errorf("invalid assemblyai url: %w", err)
	}
	q := url.Values{}
	q.Set("sample_rate", strconv.Itoa(base.SamplingRate))
	q.Set("encoding", assemblyAIEncoding(base.AudioEncoding))
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", a.apiKey)

	a.logger.Info("Opening AssemblyAI stream",
		zap.Int("sampleRate", base.SamplingRate),
		zap.String("encoding", string(base.AudioEncoding)))

	return dialStream(ctx, u.String(), header, encodeAssemblyAI, parseAssemblyAI, []byte(`{"terminate_session":true}`), a.logger)
}

func assemblyAIEncoding(e entities.AudioEncoding) string {
	if e == entities.AudioEncodingMulaw {
		return "pcm_mulaw"
	}
	return "pcm_s16le"
}

type assemblyAIAudio struct {
	AudioData string `json:"audio_data"`
}

func encodeAssemblyAI(data []byte) (int, []byte, error) {
	payload, err := json.Marshal(assemblyAIAudio{AudioData: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return 0, nil, err
	}
	return websocket.TextMessage, payload, nil
}

type assemblyAIResponse struct {
	MessageType string  `json:"message_type"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	Error       string  `json:"error"`
}

func parseAssemblyAI(data []byte) (repositories.Transcription, bool, bool, error) {
	var resp assemblyAIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return repositories.Transcription{}, false, false, err
	}
	if resp.Error != "" {
		return repositories.Transcription{}, false, true, fmt.Errorf("%w: assemblyai: %s", entities.ErrUpstreamFailure, resp.Error)
	}

	switch resp.MessageType {
	case "PartialTranscript", "FinalTranscript":
		return repositories.Transcription{
			Text:       resp.Text,
			Confidence: resp.Confidence,
			IsFinal:    resp.MessageType == "FinalTranscript",
		}, true, false, nil
	case "SessionTerminated":
		return repositories.Transcription{}, false, true, nil
	default:
		return repositories.Transcription{}, false, false, nil
	}
}
