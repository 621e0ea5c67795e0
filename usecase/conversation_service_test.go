package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/arunika/streaming/adapters"
	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
	"github.com/satriahrh/arunika/streaming/internal/audio"
	"github.com/satriahrh/arunika/streaming/internal/metrics"
)

type fakeStream struct {
	mu       sync.Mutex
	received [][]byte
	results  chan repositories.Transcription
	endOnce  sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{results: make(chan repositories.Transcription, 16)}
}

func (f *fakeStream) Stream(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, data)
	return nil
}

func (f *fakeStream) Transcriptions() <-chan repositories.Transcription {
	return f.results
}

func (f *fakeStream) End() error {
	f.endOnce.Do(func() { close(f.results) })
	return nil
}

type fakeSTT struct {
	stream *fakeStream
	err    error
}

func (f *fakeSTT) InitTranscribeStreaming(ctx context.Context, cfg entities.TranscriberConfig) (repositories.SpeechToTextStreaming, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

// fakeTTS returns one second of silence at 8 kHz for any text
type fakeTTS struct{}

func (fakeTTS) Synthesize(ctx context.Context, text string) (entities.SynthesizedAudio, error) {
	return entities.SynthesizedAudio{
		Data:       audio.EncodePCM16(make([]int16, 8000)),
		Container:  entities.AudioContainerPCM16,
		SampleRate: 8000,
	}, nil
}

type fakeAgent struct{}

func (fakeAgent) Respond(ctx context.Context, text string) (string, error) {
	return "you said " + text, nil
}

type fakeBackends struct {
	stt      *fakeSTT
	agentErr error
}

func (f *fakeBackends) Transcriber(cfg entities.TranscriberConfig) (repositories.SpeechToText, error) {
	return f.stt, nil
}

func (f *fakeBackends) Synthesizer(cfg entities.SynthesizerConfig) (repositories.TextToSpeech, error) {
	return fakeTTS{}, nil
}

func (f *fakeBackends) Agent(ctx context.Context, cfg entities.AgentConfig) (repositories.Agent, error) {
	if f.agentErr != nil {
		return nil, f.agentErr
	}
	return fakeAgent{}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	chunks [][]byte
	first  chan struct{}
	once   sync.Once
}

func newRecordingSink() *recordingSink {
	return &recordingSink{first: make(chan struct{})}
}

func (s *recordingSink) SendAudio(chunk []byte) error {
	s.mu.Lock()
	s.chunks = append(s.chunks, chunk)
	s.mu.Unlock()
	s.once.Do(func() { close(s.first) })
	return nil
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.chunks {
		n += len(c)
	}
	return n
}

type fixture struct {
	service *ConversationService
	repo    *adapters.MemoryConversationRepository
	stream  *fakeStream
	sink    *recordingSink
}

func newFixture(t *testing.T, pace bool) *fixture {
	t.Helper()
	stream := newFakeStream()
	repo := adapters.NewMemoryConversationRepository()
	service := NewConversationService(
		&fakeBackends{stt: &fakeSTT{stream: stream}},
		repo,
		ServiceConfig{PaceOutput: pace},
		metrics.NewMetrics(),
		zaptest.NewLogger(t),
	)
	return &fixture{service: service, repo: repo, stream: stream, sink: newRecordingSink()}
}

func testHandshake(t *testing.T, endpointing entities.EndpointingConfig, agent entities.AgentBase, minConfidence *float64) entities.Handshake {
	t.Helper()
	base, err := entities.TelephoneTranscriberBase(endpointing, minConfidence)
	require.NoError(t, err)

	return entities.Handshake{
		ConversationID: "conv-test",
		Transcriber:    &entities.DeepgramTranscriberConfig{TranscriberBase: base},
		Synthesizer: &entities.PlayHTSynthesizerConfig{
			SynthesizerBase: entities.SynthesizerBase{SamplingRate: 8000, AudioEncoding: entities.AudioEncodingMulaw},
			VoiceID:         entities.DefaultPlayHTVoiceID,
		},
		Agent: &entities.EchoAgentConfig{AgentBase: agent},
	}
}

func waitForTurns(t *testing.T, repo *adapters.MemoryConversationRepository, id string, n int) []entities.Turn {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conversation, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		if len(conversation.Turns) >= n {
			return conversation.Turns
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d turns in time", n)
	return nil
}

func TestEndpoint(t *testing.T) {
	zero := &entities.TimeEndpointingConfig{TimeCutoffSeconds: 0}

	tests := []struct {
		name   string
		policy entities.EndpointingConfig
		text   string
		want   turnEnd
	}{
		{"no policy", nil, "hello", turnEnd{now: true}},
		{"time based", entities.NewTimeEndpointingConfig(), "hello.", turnEnd{wait: 400 * time.Millisecond}},
		{"time based zero cutoff", zero, "hello", turnEnd{now: true}},
		{"punctuation ends sentence", entities.NewPunctuationEndpointingConfig(), "how are you?", turnEnd{now: true}},
		{"punctuation trailing space", entities.NewPunctuationEndpointingConfig(), "stop! ", turnEnd{now: true}},
		{"punctuation mid sentence", entities.NewPunctuationEndpointingConfig(), "well I think", turnEnd{wait: 400 * time.Millisecond}},
		{"punctuation by value", entities.PunctuationEndpointingConfig{TimeCutoffSeconds: 0.4}, "done.", turnEnd{now: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, endpoint(tt.policy, tt.text))
		})
	}
}

func TestShouldInterrupt(t *testing.T) {
	half := 0.5
	allow := entities.AgentBase{AllowAgentToBeCutOff: true}
	deny := entities.AgentBase{AllowAgentToBeCutOff: false}

	tests := []struct {
		name  string
		agent entities.AgentBase
		min   *float64
		t     repositories.Transcription
		want  bool
	}{
		{"allowed without threshold", allow, nil, repositories.Transcription{Text: "wait", Confidence: 0.1}, true},
		{"not allowed", deny, nil, repositories.Transcription{Text: "wait", Confidence: 1}, false},
		{"empty text", allow, nil, repositories.Transcription{Text: "  ", Confidence: 1}, false},
		{"below threshold", allow, &half, repositories.Transcription{Text: "wait", Confidence: 0.49}, false},
		{"at threshold", allow, &half, repositories.Transcription{Text: "wait", Confidence: 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldInterrupt(tt.agent, tt.min, tt.t))
		})
	}
}

func TestOutputChunkSize(t *testing.T) {
	tests := []struct {
		name   string
		output entities.OutputAudioConfig
		d      time.Duration
		want   int
	}{
		{"telephone", entities.OutputAudioConfig{SamplingRate: 8000, AudioEncoding: entities.AudioEncodingMulaw}, 100 * time.Millisecond, 800},
		{"wideband", entities.OutputAudioConfig{SamplingRate: 16000, AudioEncoding: entities.AudioEncodingLinear16}, 100 * time.Millisecond, 3200},
		{"keeps whole samples", entities.OutputAudioConfig{SamplingRate: 11025, AudioEncoding: entities.AudioEncodingLinear16}, 100 * time.Millisecond, 2204},
		{"never zero", entities.OutputAudioConfig{SamplingRate: 8000, AudioEncoding: entities.AudioEncodingLinear16}, time.Nanosecond, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outputChunkSize(tt.output, tt.d))
		})
	}
}

func TestConversation_TurnAndReply(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	conversation, err := f.service.Start(ctx, testHandshake(t, nil, entities.NewAgentBase(), nil), f.sink)
	require.NoError(t, err)
	defer conversation.Close()

	require.NoError(t, conversation.ReceiveAudio([]byte{1, 2, 3}))
	f.stream.results <- repositories.Transcription{Text: "hello", IsFinal: false, Confidence: 0.9}
	f.stream.results <- repositories.Transcription{Text: "hello there", IsFinal: true, Confidence: 0.9}

	turns := waitForTurns(t, f.repo, "conv-test", 2)
	assert.Equal(t, entities.TurnRoleHuman, turns[0].Role)
	assert.Equal(t, "hello there", turns[0].Text)
	assert.Equal(t, entities.TurnRoleBot, turns[1].Role)
	assert.Equal(t, "you said hello there", turns[1].Text)
	assert.False(t, turns[1].Interrupted)

	// one second of 8 kHz mu-law
	assert.Equal(t, 8000, f.sink.total())
	f.stream.mu.Lock()
	assert.Equal(t, [][]byte{{1, 2, 3}}, f.stream.received)
	f.stream.mu.Unlock()
}

func TestConversation_InitialMessage(t *testing.T) {
	f := newFixture(t, false)
	agent := entities.NewAgentBase()
	greeting := "Welcome!"
	agent.InitialMessage = &greeting

	conversation, err := f.service.Start(context.Background(), testHandshake(t, nil, agent, nil), f.sink)
	require.NoError(t, err)
	defer conversation.Close()

	turns := waitForTurns(t, f.repo, "conv-test", 1)
	assert.Equal(t, entities.TurnRoleBot, turns[0].Role)
	assert.Equal(t, "Welcome!", turns[0].Text)
}

func TestConversation_TimeEndpointingJoinsFinals(t *testing.T) {
	f := newFixture(t, false)
	policy := &entities.TimeEndpointingConfig{TimeCutoffSeconds: 0.05}

	conversation, err := f.service.Start(context.Background(), testHandshake(t, policy, entities.NewAgentBase(), nil), f.sink)
	require.NoError(t, err)
	defer conversation.Close()

	f.stream.results <- repositories.Transcription{Text: "book a table", IsFinal: true}
	f.stream.results <- repositories.Transcription{Text: "for two", IsFinal: true}

	turns := waitForTurns(t, f.repo, "conv-test", 1)
	assert.Equal(t, "book a table for two", turns[0].Text)
}

func TestConversation_Interruption(t *testing.T) {
	f := newFixture(t, true)
	agent := entities.NewAgentBase()
	greeting := strings.Repeat("word ", 20)
	agent.InitialMessage = &greeting

	conversation, err := f.service.Start(context.Background(), testHandshake(t, nil, agent, nil), f.sink)
	require.NoError(t, err)
	defer conversation.Close()

	select {
	case <-f.sink.first:
	case <-time.After(2 * time.Second):
		t.Fatal("No audio was sent")
	}
	f.stream.results <- repositories.Transcription{Text: "wait", IsFinal: false, Confidence: 0.9}

	turns := waitForTurns(t, f.repo, "conv-test", 1)
	assert.Equal(t, entities.TurnRoleBot, turns[0].Role)
	assert.True(t, turns[0].Interrupted)
	assert.True(t, strings.HasPrefix(greeting, turns[0].Text))
	assert.Less(t, len(turns[0].Text), len(greeting))
	assert.Less(t, f.sink.total(), 8000)
}

func TestConversation_InterruptionWithQueuedReply(t *testing.T) {
	f := newFixture(t, true)
	agent := entities.NewAgentBase()
	greeting := "Welcome to the line, please hold"
	agent.InitialMessage = &greeting
	threshold := 0.8

	conversation, err := f.service.Start(context.Background(), testHandshake(t, nil, agent, &threshold), f.sink)
	require.NoError(t, err)
	defer conversation.Close()

	select {
	case <-f.sink.first:
	case <-time.After(2 * time.Second):
		t.Fatal("No audio was sent")
	}
	// too quiet to interrupt, but ends the turn and queues a reply behind the greeting
	f.stream.results <- repositories.Transcription{Text: "hi", IsFinal: true, Confidence: 0.3}
	f.stream.results <- repositories.Transcription{Text: "stop", IsFinal: false, Confidence: 0.95}

	waitForTurns(t, f.repo, "conv-test", 2)
	require.NoError(t, conversation.Close())

	record, err := f.repo.Get(context.Background(), "conv-test")
	require.NoError(t, err)
	require.Len(t, record.Turns, 2)

	assert.Equal(t, entities.TurnRoleHuman, record.Turns[0].Role)
	assert.Equal(t, "hi", record.Turns[0].Text)

	bot := record.Turns[1]
	assert.Equal(t, entities.TurnRoleBot, bot.Role)
	assert.True(t, bot.Interrupted)
	assert.True(t, strings.HasPrefix(greeting, bot.Text))
	assert.Less(t, len(bot.Text), len(greeting))
	assert.Less(t, f.sink.total(), 8000)
}

func TestConversation_NoInterruptionWhenNotAllowed(t *testing.T) {
	f := newFixture(t, true)
	agent := entities.AgentBase{AllowAgentToBeCutOff: false}
	greeting := "Please hold"
	agent.InitialMessage = &greeting

	conversation, err := f.service.Start(context.Background(), testHandshake(t, nil, agent, nil), f.sink)
	require.NoError(t, err)
	defer conversation.Close()

	<-f.sink.first
	f.stream.results <- repositories.Transcription{Text: "hello?", IsFinal: false, Confidence: 1}

	turns := waitForTurns(t, f.repo, "conv-test", 1)
	assert.False(t, turns[0].Interrupted)
	assert.Equal(t, "Please hold", turns[0].Text)
	assert.Equal(t, 8000, f.sink.total())
}

func TestConversation_LowConfidenceDoesNotInterrupt(t *testing.T) {
	f := newFixture(t, true)
	agent := entities.NewAgentBase()
	greeting := "Please hold"
	agent.InitialMessage = &greeting
	threshold := 0.8

	conversation, err := f.service.Start(context.Background(), testHandshake(t, nil, agent, &threshold), f.sink)
	require.NoError(t, err)
	defer conversation.Close()

	<-f.sink.first
	f.stream.results <- repositories.Transcription{Text: "mm", IsFinal: false, Confidence: 0.3}

	turns := waitForTurns(t, f.repo, "conv-test", 1)
	assert.False(t, turns[0].Interrupted)
}

func TestConversation_Close(t *testing.T) {
	f := newFixture(t, false)

	conversation, err := f.service.Start(context.Background(), testHandshake(t, nil, entities.NewAgentBase(), nil), f.sink)
	require.NoError(t, err)

	require.NoError(t, conversation.Close())
	require.NoError(t, conversation.Close())

	record, err := f.repo.Get(context.Background(), "conv-test")
	require.NoError(t, err)
	assert.Equal(t, entities.ConversationStatusEnded, record.Status)

	assert.Error(t, conversation.ReceiveAudio([]byte{1}))
}

func TestConversationService_StartFailures(t *testing.T) {
	t.Run("agent", func(t *testing.T) {
		service := NewConversationService(
			&fakeBackends{stt: &fakeSTT{stream: newFakeStream()}, agentErr: errors.New("no key")},
			adapters.NewMemoryConversationRepository(),
			ServiceConfig{},
			nil,
			zaptest.NewLogger(t),
		)
		_, err := service.Start(context.Background(), testHandshake(t, nil, entities.NewAgentBase(), nil), newRecordingSink())
		assert.Error(t, err)
	})

	t.Run("transcription stream", func(t *testing.T) {
		repo := adapters.NewMemoryConversationRepository()
		service := NewConversationService(
			&fakeBackends{stt: &fakeSTT{err: entities.ErrUpstreamFailure}},
			repo,
			ServiceConfig{},
			nil,
			zaptest.NewLogger(t),
		)
		_, err := service.Start(context.Background(), testHandshake(t, nil, entities.NewAgentBase(), nil), newRecordingSink())
		assert.ErrorIs(t, err, entities.ErrUpstreamFailure)

		record, err := repo.Get(context.Background(), "conv-test")
		require.NoError(t, err)
		assert.Equal(t, entities.ConversationStatusEnded, record.Status)
	})
}
