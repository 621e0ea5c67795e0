package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

const defaultGoogleLanguage = "en-US"

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	credentialsFile string
	logger          *zap.Logger
}

// NewGoogleSpeechToText creates a Google transcriber. An empty credentials file falls back to
// application default credentials.
func NewGoogleSpeechToText(credentialsFile string, logger *zap.Logger) *GoogleSpeechToText {
	return &GoogleSpeechToText{credentialsFile: credentialsFile, logger: logger}
}

func (g *GoogleSpeechToText) InitTranscribeStreaming(ctx context.Context, config entities.TranscriberConfig) (repositories.SpeechToTextStreaming, error) {
	recognitionConfig, err := googleRecognitionConfig(config)
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if g.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(g.credentialsFile))
	}

	// Create Google Cloud Speech client
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create speech client: %v", entities.ErrUpstreamFailure, err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to create streaming recognize: %v", entities.ErrUpstreamFailure, err)
	}

	// Send initial configuration
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recognitionConfig,
				InterimResults: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("%w: failed to send streaming config: %v", entities.ErrUpstreamFailure, err)
	}

	s := &GoogleSpeechToTextStream{
		client:  client,
		stream:  stream,
		ctx:     ctx,
		results: make(chan repositories.Transcription, resultBufferSize),
		done:    make(chan struct{}),
		logger:  g.logger,
	}
	go s.receiveResults()
	return s, nil
}

func googleRecognitionConfig(config entities.TranscriberConfig) (*speechpb.RecognitionConfig, error) {
	base := config.Base()
	encoding, err := googleAudioEncoding(base.AudioEncoding)
	if err != nil {
		return nil, err
	}

	rc := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		SampleRateHertz:            int32(base.SamplingRate),
		LanguageCode:               defaultGoogleLanguage,
		EnableAutomaticPunctuation: true,
	}
	if c, ok := config.(*entities.GoogleTranscriberConfig); ok {
		if c.LanguageCode != nil {
			rc.LanguageCode = *c.LanguageCode
		}
		if c.Model != nil {
			rc.Model = *c.Model
		}
	}
	return rc, nil
}

// GoogleSpeechToTextStream is an open StreamingRecognize call
type GoogleSpeechToTextStream struct {
	client  *speech.Client
	stream  speechpb.Speech_StreamingRecognizeClient
	ctx     context.Context
	sendMu  sync.Mutex
	results chan repositories.Transcription
	done    chan struct{}
	endOnce sync.Once
	logger  *zap.Logger
}

func (g *GoogleSpeechToTextStream) Stream(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

func (g *GoogleSpeechToTextStream) Transcriptions() <-chan repositories.Transcription {
	return g.results
}

func (g *GoogleSpeechToTextStream) End() error {
	var err error
	g.endOnce.Do(func() {
		g.sendMu.Lock()
		if closeErr := g.stream.CloseSend(); closeErr != nil {
			err = fmt.Errorf("failed to close send stream: %w", closeErr)
		}
		g.sendMu.Unlock()

		timer := time.NewTimer(closeWait)
		defer timer.Stop()
		select {
		case <-g.done:
		case <-timer.C:
			g.logger.Warn("Google transcription did not finish in time")
		}
		g.client.Close()
	})
	return err
}

func (g *GoogleSpeechToTextStream) receiveResults() {
	defer close(g.done)
	defer close(g.results)

	for {
		resp, err := g.stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if g.ctx.Err() == nil {
				g.logger.Warn("Failed to receive transcription", zap.Error(err))
			}
			return
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			// Take the best alternative
			best := result.Alternatives[0]
			t := repositories.Transcription{
				Text:       best.Transcript,
				Confidence: float64(best.Confidence),
				IsFinal:    result.IsFinal,
			}
			if !result.IsFinal {
				t.Confidence = float64(result.Stability)
			}
			select {
			case g.results <- t:
			case <-g.ctx.Done():
				return
			}
		}
	}
}

// googleAudioEncoding converts an audio encoding to the Google Speech API enum
func googleAudioEncoding(encoding entities.AudioEncoding) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case entities.AudioEncodingLinear16:
		return speechpb.RecognitionConfig_LINEAR16, nil
	case entities.AudioEncodingMulaw:
		return speechpb.RecognitionConfig_MULAW, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("%w: unsupported encoding: %s", entities.ErrInvalidConfiguration, encoding)
	}
}
