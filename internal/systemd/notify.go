// Package systemd reports service state to systemd when oleppy runs as a
// Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/PZwoodcat/Oleppy-Free/internal/events"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger *slog.Logger
	send   func(state string) (bool, error)
	// watchdog returns the interval systemd expects pings at, 0 if disabled.
	watchdog func() (time.Duration, error)
}

// NewNotifier returns a notifier for the socket in $NOTIFY_SOCKET.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		send: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdog: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

func (n *Notifier) notify(state string) {
	sent, err := n.send(state)
	if err != nil {
		n.logger.Debug("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// Ready reports that startup finished.
func (n *Notifier) Ready() {
	n.notify(daemon.SdNotifyReady)
}

// Stopping reports that shutdown began.
func (n *Notifier) Stopping() {
	n.notify(daemon.SdNotifyStopping)
}

// Status sets the free-form status shown by systemctl status.
func (n *Notifier) Status(msg string) {
	n.notify("STATUS=" + msg)
}

// Follow mirrors session state changes into the unit status until the
// returned function is called.
func (n *Notifier) Follow(bus *events.Bus) func() {
	if bus == nil {
		return func() {}
	}
	return bus.Subscribe(func(e events.SessionStateChangedEvent) {
		n.Status(fmt.Sprintf("%s (segment %d)", e.State, e.Segment))
	})
}

// RunWatchdog pings the watchdog at half the configured interval until ctx
// is cancelled. It returns at once when the unit has no watchdog.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	interval, err := n.watchdog()
	if err != nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
