package synthesis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
	"github.com/satriahrh/arunika/streaming/internal/audio"
	"github.com/satriahrh/arunika/streaming/internal/metrics"
)

// DefaultTimeout bounds a single call to the synthesis backend.
const DefaultTimeout = 5 * time.Second

// Result is the chunked audio of one utterance plus enough bookkeeping to estimate how
// much of the text was heard when playback stops early.
type Result struct {
	Text string

	chunks         *ChunkIterator
	audioBytes     int
	bytesPerSecond int
}

// Next returns the next chunk of audio, or false once all chunks were produced.
func (r *Result) Next() (ChunkResult, bool) {
	return r.chunks.Next()
}

// All ranges over the remaining chunks.
func (r *Result) All() iter.Seq[ChunkResult] {
	return r.chunks.All()
}

// Remaining is the number of chunks not yet produced.
func (r *Result) Remaining() int {
	return r.chunks.Remaining()
}

// Duration is the playback length of the synthesized audio.
func (r *Result) Duration() time.Duration {
	return bytesDuration(r.audioBytes, r.bytesPerSecond)
}

// ChunkDuration is the playback length of a chunk of n bytes in this result's format.
func (r *Result) ChunkDuration(n int) time.Duration {
	return bytesDuration(n, r.bytesPerSecond)
}

// MessageCutoff returns the prefix of Text spoken after seconds of playback.
func (r *Result) MessageCutoff(seconds float64) string {
	return MessageCutoff(r.Text, seconds, r.audioBytes, r.bytesPerSecond)
}

func bytesDuration(n, bytesPerSecond int) time.Duration {
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}

// Pipeline turns text into chunked audio in a synthesizer config's output format.
type Pipeline struct {
	tts     repositories.TextToSpeech
	config  entities.SynthesizerConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithMetrics records synthesis counters and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a synthesis pipeline for one session.
func NewPipeline(tts repositories.TextToSpeech, config entities.SynthesizerConfig, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		tts:     tts,
		config:  config,
		logger:  logger,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OutputAudioConfig is the format of every chunk this pipeline produces.
func (p *Pipeline) OutputAudioConfig() entities.OutputAudioConfig {
	return p.config.Base().OutputAudioConfig()
}

// CreateSpeech synthesizes text and returns its audio split into chunkSize byte chunks.
// A backend failure yields ErrUpstreamFailure and no partial result.
func (p *Pipeline) CreateSpeech(ctx context.Context, text string, chunkSize int) (*Result, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive, got %d", entities.ErrInvalidConfiguration, chunkSize)
	}

	synthesizer := p.config.VariantType()
	start := time.Now()
	if p.metrics != nil {
		p.metrics.SynthesisRequests.WithLabelValues(synthesizer).Inc()
		defer func() {
			p.metrics.SynthesisDuration.Observe(time.Since(start).Seconds())
		}()
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.tts.Synthesize(callCtx, text)
	if err != nil {
		p.recordFailure(synthesizer, "upstream")
		if errors.Is(err, entities.ErrUpstreamFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", entities.ErrUpstreamFailure, synthesizer, err)
	}

	output := p.OutputAudioConfig()
	pcm, err := audio.Convert(raw, output.SamplingRate, output.AudioEncoding)
	if err != nil {
		p.recordFailure(synthesizer, "conversion")
		return nil, err
	}
	audioBytes := len(pcm)

	if p.config.Base().ShouldEncodeAsWav {
		pcm, err = audio.EncodeAsWAV(pcm, output.SamplingRate, output.AudioEncoding)
		if err != nil {
			p.recordFailure(synthesizer, "conversion")
			return nil, err
		}
	}

	chunks, err := NewChunkIterator(pcm, chunkSize)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Synthesized utterance",
		zap.String("synthesizer", synthesizer),
		zap.Int("characters", len(text)),
		zap.Int("bytes", len(pcm)),
		zap.Int("chunks", chunks.Remaining()),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Text:           text,
		chunks:         chunks,
		audioBytes:     audioBytes,
		bytesPerSecond: output.BytesPerSecond(),
	}, nil
}

func (p *Pipeline) recordFailure(synthesizer, reason string) {
	if p.metrics != nil {
		p.metrics.SynthesisFailures.WithLabelValues(synthesizer, reason).Inc()
	}
}
