package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/satriahrh/arunika/streaming/domain/entities"
)

const (
	wavFormatPCM  = 1
	pcmBitDepth   = 16
	monoChannels  = 1
	stereoChannel = 2
)

// Convert decodes a synthesized buffer and re-encodes it as mono audio at sampleRate in
// the requested encoding.
func Convert(in entities.SynthesizedAudio, sampleRate int, encoding entities.AudioEncoding) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: output sample rate must be positive, got %d", entities.ErrConversionUnsupported, sampleRate)
	}
	if err := encoding.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrConversionUnsupported, err)
	}

	samples, sourceRate, err := decode(in)
	if err != nil {
		return nil, err
	}

	samples = Resample(samples, sourceRate, sampleRate)

	switch encoding {
	case entities.AudioEncodingMulaw:
		return EncodeMulaw(samples), nil
	default:
		return EncodePCM16(samples), nil
	}
}

func decode(in entities.SynthesizedAudio) ([]int16, int, error) {
	switch in.Container {
	case entities.AudioContainerWAV:
		return decodeWAV(in.Data)
	case entities.AudioContainerPCM16:
		if in.SampleRate <= 0 {
			return nil, 0, fmt.Errorf("%w: pcm16 input needs a sample rate", entities.ErrConversionUnsupported)
		}
		return DecodePCM16(in.Data), in.SampleRate, nil
	default:
		return nil, 0, fmt.Errorf("%w: unknown container %q", entities.ErrConversionUnsupported, in.Container)
	}
}

func decodeWAV(data []byte) ([]int16, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: input is not a valid WAV file", entities.ErrConversionUnsupported)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read WAV samples: %v", entities.ErrConversionUnsupported, err)
	}
	if decoder.WavAudioFormat != wavFormatPCM || decoder.BitDepth != pcmBitDepth {
		return nil, 0, fmt.Errorf("%w: WAV format %d with %d-bit samples", entities.ErrConversionUnsupported, decoder.WavAudioFormat, decoder.BitDepth)
	}

	channels := int(decoder.NumChans)
	switch channels {
	case monoChannels:
		return intsToPCM(buf.Data), int(decoder.SampleRate), nil
	case stereoChannel:
		return downmix(buf.Data), int(decoder.SampleRate), nil
	default:
		return nil, 0, fmt.Errorf("%w: %d channel WAV", entities.ErrConversionUnsupported, channels)
	}
}

func intsToPCM(data []int) []int16 {
	out := make([]int16, len(data))
	for i, v := range data {
		out[i] = int16(v)
	}
	return out
}

func downmix(interleaved []int) []int16 {
	out := make([]int16, len(interleaved)/2)
	for i := range out {
		out[i] = int16((interleaved[2*i] + interleaved[2*i+1]) / 2)
	}
	return out
}

// DecodePCM16 reads little-endian signed 16-bit samples. A trailing odd byte is dropped.
func DecodePCM16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out
}

// EncodePCM16 writes samples as little-endian signed 16-bit PCM.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// EncodeAsWAV wraps mono linear16 PCM in a WAV container. Mu-law output cannot be wrapped.
func EncodeAsWAV(pcm []byte, sampleRate int, encoding entities.AudioEncoding) ([]byte, error) {
	if encoding != entities.AudioEncodingLinear16 {
		return nil, fmt.Errorf("%w: cannot wrap %s audio as WAV", entities.ErrConversionUnsupported, encoding)
	}

	samples := DecodePCM16(pcm)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	out := &writeSeeker{}
	encoder := wav.NewEncoder(out, sampleRate, pcmBitDepth, monoChannels, wavFormatPCM)
	err := encoder.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: monoChannels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: pcmBitDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write WAV samples: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	return out.Bytes(), nil
}

// WAVHeaderSize is the size of the canonical header EncodeAsWAV writes.
const WAVHeaderSize = 44
