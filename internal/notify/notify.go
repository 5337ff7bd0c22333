// Package notify sends desktop notifications for failures the user would
// otherwise not see, such as an application that failed to start.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/hopper/internal/logger"
	"github.com/godbus/dbus/v5"
)

const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = "/org/freedesktop/Notifications"
	notificationsInterface = "org.freedesktop.Notifications"

	appName       = "hopper"
	expireTimeout = 5 * time.Second
	callTimeout   = time.Second
)

// Notifier defines the interface for system notifications
type Notifier interface {
	Notify(title, message string) error
}

// SilentNotifier discards notifications
type SilentNotifier struct{}

// NewSilent returns a notifier that does nothing
func NewSilent() Notifier {
	return SilentNotifier{}
}

func (SilentNotifier) Notify(title, message string) error { return nil }

// DBusNotifier posts notifications to the session notification daemon
type DBusNotifier struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// NewDBus connects to the session bus
func NewDBus() (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBusNotifier{
		conn: conn,
		obj:  conn.Object(notificationsService, notificationsPath),
	}, nil
}

// New returns a D-Bus notifier when enabled, falling back to SilentNotifier
func New(enabled bool) Notifier {
	if !enabled {
		return NewSilent()
	}
	n, err := NewDBus()
	if err != nil {
		logger.WithComponent("notify").Warn().Err(err).Msg("Desktop notifications unavailable")
		return NewSilent()
	}
	return n
}

// Notify sends one notification. The server picks placement and styling.
func (n *DBusNotifier) Notify(title, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	call := n.obj.CallWithContext(ctx, notificationsInterface+".Notify", 0,
		appName,
		uint32(0),
		"dialog-error",
		title,
		message,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(1))},
		int32(expireTimeout/time.Millisecond),
	)
	if call.Err != nil {
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}
	return nil
}

// Close closes the bus connection
func (n *DBusNotifier) Close() error {
	return n.conn.Close()
}
