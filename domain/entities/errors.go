package entities

import "errors"

// Error taxonomy shared by configuration, protocol and synthesis code.
// Callers wrap these with fmt.Errorf("%w: ...") and test them with errors.Is.
var (
	// ErrInvalidConfiguration reports a field outside its allowed range.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrUnknownVariant reports a missing, abstract or unrecognized discriminator.
	ErrUnknownVariant = errors.New("unknown variant")
	// ErrUnexpectedMessage reports a protocol message illegal in the current session state.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrUpstreamFailure reports a failed or timed out call to a transcription or synthesis backend.
	ErrUpstreamFailure = errors.New("upstream failure")
	// ErrConversionUnsupported reports an encoding combination the audio converter cannot produce.
	ErrConversionUnsupported = errors.New("conversion unsupported")
)
