package entities

import "fmt"

// AudioEncoding identifies how samples are laid out on the wire.
type AudioEncoding string

const (
	AudioEncodingLinear16 AudioEncoding = "linear16"
	AudioEncodingMulaw    AudioEncoding = "mulaw"
)

// Telephony defaults used when a transcriber is configured for a phone call.
const (
	DefaultTelephoneSamplingRate  = 8000
	DefaultTelephoneAudioEncoding = AudioEncodingMulaw
	DefaultTelephoneChunkSize     = 20 * 160
)

// Validate checks that e is one of the supported encodings.
func (e AudioEncoding) Validate() error {
	switch e {
	case AudioEncodingLinear16, AudioEncodingMulaw:
		return nil
	default:
		return fmt.Errorf("%w: unsupported audio_encoding %q", ErrInvalidConfiguration, e)
	}
}

// BytesPerSample returns the encoded width of one mono sample.
func (e AudioEncoding) BytesPerSample() int {
	if e == AudioEncodingMulaw {
		return 1
	}
	return 2
}

// InputAudioConfig describes the audio a client sends to the server.
type InputAudioConfig struct {
	SamplingRate  int           `json:"sampling_rate"`
	AudioEncoding AudioEncoding `json:"audio_encoding"`
	ChunkSize     int           `json:"chunk_size"`
	Downsampling  *int          `json:"downsampling,omitempty"`
}

// Validate checks that sizes are positive and the encoding is known.
func (c InputAudioConfig) Validate() error {
	if err := validateSamplingRate(c.SamplingRate); err != nil {
		return err
	}
	if err := c.AudioEncoding.Validate(); err != nil {
		return err
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfiguration, c.ChunkSize)
	}
	if c.Downsampling != nil && *c.Downsampling <= 0 {
		return fmt.Errorf("%w: downsampling must be positive, got %d", ErrInvalidConfiguration, *c.Downsampling)
	}
	return nil
}

// OutputAudioConfig describes the audio the server sends back.
type OutputAudioConfig struct {
	SamplingRate  int           `json:"sampling_rate"`
	AudioEncoding AudioEncoding `json:"audio_encoding"`
}

// Validate checks that the sampling rate is positive and the encoding is known.
func (c OutputAudioConfig) Validate() error {
	if err := validateSamplingRate(c.SamplingRate); err != nil {
		return err
	}
	return c.AudioEncoding.Validate()
}

// BytesPerSecond is the byte rate of mono audio in this format.
func (c OutputAudioConfig) BytesPerSecond() int {
	return c.SamplingRate * c.AudioEncoding.BytesPerSample()
}

func validateSamplingRate(rate int) error {
	if rate <= 0 {
		return fmt.Errorf("%w: sampling_rate must be positive, got %d", ErrInvalidConfiguration, rate)
	}
	return nil
}

// AudioContainer is the layout of a buffer returned by a synthesis backend.
type AudioContainer string

const (
	// AudioContainerWAV is a RIFF/WAVE file carrying its own format header.
	AudioContainerWAV AudioContainer = "wav"
	// AudioContainerPCM16 is headerless mono signed 16-bit little-endian PCM.
	AudioContainerPCM16 AudioContainer = "pcm16"
)

// SynthesizedAudio is the complete buffer produced by one synthesis call.
type SynthesizedAudio struct {
	Data      []byte
	Container AudioContainer
	// SampleRate is required for AudioContainerPCM16 and ignored for WAV.
	SampleRate int
}
