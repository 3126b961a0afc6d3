// Package systemd talks to the service manager over the notify socket.
// Every call is a no-op when the process is not running under systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

const (
	Ready     = daemon.SdNotifyReady
	Stopping  = daemon.SdNotifyStopping
	Reloading = daemon.SdNotifyReloading
	Watchdog  = daemon.SdNotifyWatchdog
)

// Notify sends state to systemd. sent is false when NOTIFY_SOCKET is unset.
func Notify(state string) (sent bool, err error) {
	return daemon.SdNotify(false, state)
}

// WatchdogInterval returns half of WATCHDOG_USEC, or 0 when the watchdog
// is disabled for this process.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// RunWatchdog pings the watchdog every interval until ctx is done.
// healthy is consulted before each ping; a false result skips the ping so
// systemd can restart a wedged process.
func RunWatchdog(ctx context.Context, interval time.Duration, healthy func() bool) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if healthy != nil && !healthy() {
				continue
			}
			_, _ = Notify(Watchdog)
		}
	}
}
