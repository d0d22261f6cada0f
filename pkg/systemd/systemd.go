// Package systemd reports daemon state to the service manager over the
// sd_notify socket. Every call is a no-op when NOTIFY_SOCKET is unset.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "pewsched/pkg/logx"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

func send(log logx.Logger, state string) bool {
	ok, err := notify(false, state)
	if err != nil {
		log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return ok
}

func Ready(log logx.Logger) bool     { return send(log, daemon.SdNotifyReady) }
func Stopping(log logx.Logger) bool  { return send(log, daemon.SdNotifyStopping) }
func Reloading(log logx.Logger) bool { return send(log, daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func Status(log logx.Logger, status string) bool { return send(log, "STATUS="+status) }

// Watchdog pings the service manager at half the configured watchdog
// interval until ctx is done. It returns at once if no watchdog is set.
// healthy is consulted before every ping; a false result skips it so the
// service manager can restart a wedged daemon.
func Watchdog(ctx context.Context, log logx.Logger, healthy func() bool) {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("sd watchdog config invalid", logx.Err(err))
		return
	}
	if every <= 0 {
		return
	}
	WatchdogEvery(ctx, log, every/2, healthy)
}

func WatchdogEvery(ctx context.Context, log logx.Logger, every time.Duration, healthy func() bool) {
	log.Debug("sd watchdog enabled", logx.Duration("every", every))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if healthy != nil && !healthy() {
				log.Warn("sd watchdog ping skipped (unhealthy)")
				continue
			}
			send(log, daemon.SdNotifyWatchdog)
		}
	}
}
