package shutdown

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady tells systemd the service has started. It does nothing when
// not running under systemd.
func NotifyReady(logger *slog.Logger) {
	notify(logger, daemon.SdNotifyReady)
}

// NotifyStopping tells systemd the service is shutting down
func NotifyStopping(logger *slog.Logger) {
	notify(logger, daemon.SdNotifyStopping)
}

func notify(logger *slog.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("systemd notify failed", "state", state, "error", err)
		return
	}
	if sent {
		logger.Debug("systemd notified", "state", state)
	}
}
