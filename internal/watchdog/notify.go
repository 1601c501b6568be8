package watchdog

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Supervisor notification states.
const (
	StateReady    = daemon.SdNotifyReady
	StateWatchdog = daemon.SdNotifyWatchdog
	StateStopping = daemon.SdNotifyStopping
)

// Notifier delivers a state string to the process supervisor.
type Notifier interface {
	Notify(state string) error
}

// SystemdNotifier notifies systemd through NOTIFY_SOCKET. When the socket is
// not set (not running under systemd) notifications are silently dropped.
type SystemdNotifier struct{}

// Notify sends state to systemd.
func (SystemdNotifier) Notify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

// SystemdInterval returns half the unit's WatchdogSec, the recommended ping
// period, and whether the systemd watchdog is enabled for this process.
func SystemdInterval() (time.Duration, bool) {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d == 0 {
		return 0, false
	}
	return d / 2, true
}
