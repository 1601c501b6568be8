package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrInvalidCommand is returned when a command payload is not recognised
	// for the target device.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrInvalidBrightness is returned when a brightness payload is not a
	// number in 0..100.
	ErrInvalidBrightness = errors.New("bridge: invalid brightness")

	// ErrUnsupportedDevice is returned when a command targets a device
	// category that cannot be commanded.
	ErrUnsupportedDevice = errors.New("bridge: device does not accept commands")

	// ErrSendFailed is returned when a frame could not be written to the bus.
	ErrSendFailed = errors.New("bridge: frame send failed")

	// ErrNotStarted is returned by operations that need Start to have run.
	ErrNotStarted = errors.New("bridge: not started")

	// ErrStopped is returned when a command arrives after Stop began.
	ErrStopped = errors.New("bridge: stopped")

	// ErrExporterRunning is returned by a second concurrent StatsExporter.Run.
	ErrExporterRunning = errors.New("bridge: stats exporter already running")
)
