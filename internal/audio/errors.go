package audio

import "errors"

// Sentinel errors for the capture pipeline. Callers match them with
// errors.Is; wrapped variants carry the endpoint/context detail.
var (
	// ErrDeviceUnavailable is returned when no endpoint matches the
	// requested device selector.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrFormatNegotiation is returned when the endpoint rejects the
	// requested capture mode.
	ErrFormatNegotiation = errors.New("audio format negotiation failed")

	// ErrInvalidState is returned for lifecycle calls made outside the
	// state they are allowed in.
	ErrInvalidState = errors.New("invalid capture state")

	// ErrBufferOverrun reports that the ring buffer overwrote unread
	// frames. It is a warning, not a failure: capture keeps going.
	ErrBufferOverrun = errors.New("capture buffer overrun")
)
