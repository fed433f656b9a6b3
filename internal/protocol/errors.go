package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for frame parsing
var (
	// ErrMalformedFrame indicates a frame that can never become valid:
	// bad start marker, overlong varint, or a length that contradicts the payload.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrNeedMore indicates the buffer ends mid-frame; the caller should read
	// more bytes and retry without consuming anything.
	ErrNeedMore = errors.New("need more data")
)

// FrameError wraps ErrMalformedFrame with a human-readable reason.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

// Is allows errors.Is(err, ErrMalformedFrame) to match FrameError values.
func (e *FrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

func malformed(reason string) error {
	return &FrameError{Reason: reason}
}
