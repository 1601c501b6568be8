package watchdog

import "errors"

// Domain errors for the watchdog package.
var (
	// ErrNoEcho is returned by Probe when the nonce is not echoed in time.
	ErrNoEcho = errors.New("watchdog: no echo on check topic")

	// ErrHandshakeFailed is returned by Start when every startup attempt failed.
	ErrHandshakeFailed = errors.New("watchdog: startup handshake failed")

	// ErrHeartbeatTimeout is returned by Run when a heartbeat round trip fails.
	ErrHeartbeatTimeout = errors.New("watchdog: heartbeat timeout")

	// ErrNotStarted is returned by Run when Start has not succeeded.
	ErrNotStarted = errors.New("watchdog: not started")
)
