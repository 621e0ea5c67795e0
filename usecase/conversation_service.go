package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
	"github.com/satriahrh/arunika/streaming/internal/metrics"
	"github.com/satriahrh/arunika/streaming/internal/synthesis"
)

const (
	// DefaultOutputChunkDuration is the playback length of one outbound audio chunk.
	DefaultOutputChunkDuration = 100 * time.Millisecond

	storageTimeout = 5 * time.Second
	replyTimeout   = 60 * time.Second
)

// Backends builds the collaborators of one conversation from its resolved configs
type Backends interface {
	Transcriber(cfg entities.TranscriberConfig) (repositories.SpeechToText, error)
	Synthesizer(cfg entities.SynthesizerConfig) (repositories.TextToSpeech, error)
	Agent(ctx context.Context, cfg entities.AgentConfig) (repositories.Agent, error)
}

// AudioSink delivers synthesized audio chunks to the client
type AudioSink interface {
	SendAudio(chunk []byte) error
}

// ServiceConfig tunes how conversations deliver audio
type ServiceConfig struct {
	// PaceOutput waits each chunk's playback time before sending the next one.
	PaceOutput          bool
	OutputChunkDuration time.Duration
	SynthesisTimeout    time.Duration
}

// ConversationService orchestrates the conversation flow
type ConversationService struct {
	backends Backends
	repo     repositories.ConversationRepository
	config   ServiceConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(
	backends Backends,
	repo repositories.ConversationRepository,
	config ServiceConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ConversationService {
	if config.OutputChunkDuration <= 0 {
		config.OutputChunkDuration = DefaultOutputChunkDuration
	}
	if config.SynthesisTimeout <= 0 {
		config.SynthesisTimeout = synthesis.DefaultTimeout
	}
	return &ConversationService{
		backends: backends,
		repo:     repo,
		config:   config,
		metrics:  m,
		logger:   logger,
	}
}

// Start opens the transcription stream, creates the conversation record and speaks the
// agent's initial message when one is configured.
func (s *ConversationService) Start(ctx context.Context, handshake entities.Handshake, sink AudioSink) (*Conversation, error) {
	logger := s.logger.With(zap.String("conversationID", handshake.ConversationID))

	stt, err := s.backends.Transcriber(handshake.Transcriber)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}
	tts, err := s.backends.Synthesizer(handshake.Synthesizer)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}
	agent, err := s.backends.Agent(ctx, handshake.Agent)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	record := entities.NewConversation(handshake.ConversationID, handshake.Transcriber, handshake.Synthesizer, handshake.Agent)
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create conversation record: %w", err)
	}

	// the stream outlives the handshake request, so it gets its own context
	convCtx, cancel := context.WithCancel(context.Background())
	stream, err := stt.InitTranscribeStreaming(convCtx, handshake.Transcriber)
	if err != nil {
		cancel()
		s.endRecord(handshake.ConversationID, logger)
		return nil, fmt.Errorf("failed to start transcription: %w", err)
	}

	opts := []synthesis.Option{synthesis.WithTimeout(s.config.SynthesisTimeout)}
	if s.metrics != nil {
		opts = append(opts, synthesis.WithMetrics(s.metrics))
	}
	pipeline := synthesis.NewPipeline(tts, handshake.Synthesizer, logger, opts...)

	c := &Conversation{
		service:   s,
		handshake: handshake,
		stream:    stream,
		agent:     agent,
		pipeline:  pipeline,
		sink:      sink,
		chunkSize: outputChunkSize(pipeline.OutputAudioConfig(), s.config.OutputChunkDuration),
		logger:    logger,
		ctx:       convCtx,
		cancel:    cancel,
		loopDone:  make(chan struct{}),
	}
	go c.run()

	if initial := handshake.Agent.Base().InitialMessage; initial != nil && *initial != "" {
		c.startSpeaking(func(context.Context) (string, error) {
			return *initial, nil
		})
	}

	logger.Info("Conversation started",
		zap.String("transcriber", handshake.Transcriber.VariantType()),
		zap.String("synthesizer", handshake.Synthesizer.VariantType()),
		zap.String("agent", handshake.Agent.VariantType()),
		zap.Int("outputChunkSize", c.chunkSize))
	return c, nil
}

func (s *ConversationService) endRecord(id string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := s.repo.End(ctx, id); err != nil {
		logger.Error("Failed to end conversation record", zap.Error(err))
	}
}

func outputChunkSize(output entities.OutputAudioConfig, d time.Duration) int {
	size := int(int64(output.BytesPerSecond()) * int64(d) / int64(time.Second))
	if bps := output.AudioEncoding.BytesPerSample(); size%bps != 0 {
		size -= size % bps
	}
	if size <= 0 {
		return output.AudioEncoding.BytesPerSample()
	}
	return size
}

// speech is one utterance being synthesized and played to the client
type speech struct {
	cancel      context.CancelFunc
	done        chan struct{}
	interrupted atomic.Bool
}

func (sp *speech) active() bool {
	select {
	case <-sp.done:
		return false
	default:
		return true
	}
}

// Conversation is one running voice conversation
type Conversation struct {
	service   *ConversationService
	handshake entities.Handshake
	stream    repositories.SpeechToTextStreaming
	agent     repositories.Agent
	pipeline  *synthesis.Pipeline
	sink      AudioSink
	chunkSize int
	logger    *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	// speeches holds the utterances not yet finished, playing one first
	speechMu sync.Mutex
	speeches []*speech

	closeOnce sync.Once
	closeErr  error
}

// ID returns the conversation ID
func (c *Conversation) ID() string {
	return c.handshake.ConversationID
}

// ReceiveAudio forwards client audio to the transcriber
func (c *Conversation) ReceiveAudio(data []byte) error {
	if c.ctx.Err() != nil {
		return fmt.Errorf("conversation %s is closed", c.ID())
	}
	if err := c.stream.Stream(data); err != nil {
		return fmt.Errorf("%w: failed to stream audio: %v", entities.ErrUpstreamFailure, err)
	}
	return nil
}

// Close stops playback and transcription and ends the stored record. Safe to call twice.
func (c *Conversation) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		if err := c.stream.End(); err != nil {
			c.closeErr = fmt.Errorf("failed to end transcription: %w", err)
		}
		<-c.loopDone

		for _, sp := range c.pendingSpeeches() {
			<-sp.done
		}

		c.service.endRecord(c.ID(), c.logger)
		c.logger.Info("Conversation closed")
	})
	return c.closeErr
}

// run consumes transcriptions until the stream ends or the conversation closes
func (c *Conversation) run() {
	defer close(c.loopDone)

	base := c.handshake.Transcriber.Base()
	policy := base.Endpointing()
	agentBase := c.handshake.Agent.Base()

	var (
		pending []string
		timer   *time.Timer
		timerC  <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timerC = nil
	}
	resetTimer := func(d time.Duration) {
		stopTimer()
		timer = time.NewTimer(d)
		timerC = timer.C
	}
	endTurn := func() {
		stopTimer()
		text := strings.TrimSpace(strings.Join(pending, " "))
		pending = nil
		if text != "" {
			c.handleTurn(text)
		}
	}

	for {
		select {
		case <-c.ctx.Done():
			stopTimer()
			return

		case <-timerC:
			timerC = nil
			endTurn()

		case t, ok := <-c.stream.Transcriptions():
			if !ok {
				endTurn()
				return
			}

			if c.isSpeaking() && shouldInterrupt(agentBase, base.MinInterruptConfidence, t) {
				c.interrupt()
			}

			text := strings.TrimSpace(t.Text)
			if !t.IsFinal {
				// the speaker is still talking, hold off a pending cutoff
				if text != "" && timerC != nil && policy != nil {
					resetTimer(policy.TimeCutoff())
				}
				continue
			}
			if text == "" {
				continue
			}

			pending = append(pending, text)
			decision := endpoint(policy, text)
			if decision.now {
				endTurn()
			} else {
				resetTimer(decision.wait)
			}
		}
	}
}

func (c *Conversation) handleTurn(text string) {
	c.logger.Info("Human turn ended", zap.String("text", text))
	c.recordTurn(entities.TurnRoleHuman, text, false)

	c.startSpeaking(func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, replyTimeout)
		defer cancel()
		return c.agent.Respond(ctx, text)
	})
}

// pendingSpeeches drops finished utterances and returns the rest in queue order
func (c *Conversation) pendingSpeeches() []*speech {
	c.speechMu.Lock()
	defer c.speechMu.Unlock()

	active := c.speeches[:0]
	for _, sp := range c.speeches {
		if sp.active() {
			active = append(active, sp)
		}
	}
	c.speeches = active
	return append([]*speech(nil), active...)
}

func (c *Conversation) isSpeaking() bool {
	return len(c.pendingSpeeches()) > 0
}

// interrupt cuts off the playing utterance and drops every reply queued behind it
func (c *Conversation) interrupt() {
	pending := c.pendingSpeeches()
	if len(pending) == 0 {
		return
	}
	for _, sp := range pending {
		sp.interrupted.Store(true)
		sp.cancel()
	}
	if m := c.service.metrics; m != nil {
		m.Interruptions.Inc()
	}
	c.logger.Info("Bot interrupted", zap.Int("droppedReplies", len(pending)-1))
}

// startSpeaking queues an utterance behind the pending ones. Only one utterance plays at a time.
func (c *Conversation) startSpeaking(reply func(ctx context.Context) (string, error)) {
	ctx, cancel := context.WithCancel(c.ctx)
	sp := &speech{cancel: cancel, done: make(chan struct{})}

	c.speechMu.Lock()
	var previous *speech
	if n := len(c.speeches); n > 0 {
		previous = c.speeches[n-1]
	}
	c.speeches = append(c.speeches, sp)
	c.speechMu.Unlock()

	go func() {
		defer close(sp.done)
		defer cancel()

		if previous != nil {
			<-previous.done
		}

		text, err := reply(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error("Failed to get agent reply", zap.Error(err))
			}
			return
		}
		if strings.TrimSpace(text) == "" || ctx.Err() != nil {
			return
		}
		c.say(ctx, sp, text)
	}()
}

// say synthesizes text and plays it to the client until done or cancelled
func (c *Conversation) say(ctx context.Context, sp *speech, text string) {
	result, err := c.pipeline.CreateSpeech(ctx, text, c.chunkSize)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error("Failed to synthesize reply", zap.Error(err))
		}
		return
	}

	start := time.Now()
	var sent time.Duration
	for chunk := range result.All() {
		if ctx.Err() != nil {
			break
		}
		if err := c.sink.SendAudio(chunk.Chunk); err != nil {
			c.logger.Warn("Failed to send audio chunk", zap.Error(err))
			return
		}
		sent += result.ChunkDuration(len(chunk.Chunk))

		if c.service.config.PaceOutput {
			if wait := sent - time.Since(start); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
				}
			}
		}
	}

	if sp.interrupted.Load() {
		played := sent
		if c.service.config.PaceOutput {
			played = min(time.Since(start), sent)
		}
		spoken := result.MessageCutoff(played.Seconds())
		c.logger.Info("Bot turn cut off", zap.String("spoken", spoken), zap.Duration("played", played))
		c.recordTurn(entities.TurnRoleBot, spoken, true)
		return
	}
	if ctx.Err() != nil {
		return
	}
	c.recordTurn(entities.TurnRoleBot, text, false)
}

func (c *Conversation) recordTurn(role entities.TurnRole, text string, interrupted bool) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	turn := entities.Turn{
		Role:        role,
		Text:        text,
		Interrupted: interrupted,
		At:          time.Now(),
	}
	if err := c.service.repo.AppendTurn(ctx, c.ID(), turn); err != nil {
		c.logger.Error("Failed to store turn", zap.String("role", string(role)), zap.Error(err))
	}
}
