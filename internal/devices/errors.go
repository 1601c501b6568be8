package devices

import "errors"

// Domain errors for the device directory.
var (
	// ErrInvalidDirectory is returned when the directory source fails validation.
	ErrInvalidDirectory = errors.New("devices: invalid device directory")

	// ErrDeviceNotFound is returned when a device key is not in the directory.
	ErrDeviceNotFound = errors.New("devices: device not found")

	// ErrNoCommandInstance is returned when a device has no instance to address commands to.
	ErrNoCommandInstance = errors.New("devices: no command instance")
)
