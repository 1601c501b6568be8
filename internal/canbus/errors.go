package canbus

import "errors"

// Domain errors for the canbus package.
var (
	// ErrUnknownSource is returned when the configured source type is not recognised.
	ErrUnknownSource = errors.New("canbus: unknown source type")

	// ErrSourceClosed is returned when a source ends without the context being cancelled.
	ErrSourceClosed = errors.New("canbus: source closed")

	// ErrSendFailed is returned when cansend exits with an error.
	ErrSendFailed = errors.New("canbus: cansend failed")
)
