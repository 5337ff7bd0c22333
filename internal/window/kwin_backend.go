package window

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/bryanchriswhite/hopper/internal/logger"
	"github.com/godbus/dbus/v5"
)

// KWin D-Bus constants
const (
	kwinService       = "org.kde.KWin"
	windowsRunnerPath = "/WindowsRunner"
	krunnerInterface  = "org.kde.krunner1"
)

// busObject is the subset of dbus.BusObject used by the backend
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// KWinBackend lists and activates windows through KWin's KRunner
// WindowsRunner plugin on the session bus
type KWinBackend struct {
	conn   *dbus.Conn
	bus    busObject
	runner busObject
	// activeWindow returns the internal UUID of the focused window, or an
	// error when it cannot be determined
	activeWindow func(ctx context.Context) (string, error)
}

// NewKWinBackend connects to the session bus
func NewKWinBackend() (*KWinBackend, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, herrors.Wrap(err, herrors.ErrCodeBackendUnavailable, "failed to connect to session bus")
	}

	b := &KWinBackend{
		conn:   conn,
		bus:    conn.BusObject(),
		runner: conn.Object(kwinService, windowsRunnerPath),
	}
	if _, err := exec.LookPath("kdotool"); err == nil {
		b.activeWindow = kdotoolActiveWindow
	} else {
		logger.WithComponent("kwin-backend").Debug().Msg("kdotool not found, focused window will not be excluded")
	}
	return b, nil
}

// Name returns the backend name
func (b *KWinBackend) Name() string {
	return "kwin"
}

// IsAvailable checks whether KWin owns its name on the session bus
func (b *KWinBackend) IsAvailable(ctx context.Context) bool {
	var names []string
	if err := b.bus.CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		logger.WithComponent("kwin-backend").Debug().Err(err).Msg("Failed to list D-Bus names")
		return false
	}
	for _, name := range names {
		if name == kwinService {
			return true
		}
	}
	return false
}

// ListWindows asks the WindowsRunner for every window by matching ""
func (b *KWinBackend) ListWindows(ctx context.Context) ([]Window, error) {
	call := b.runner.CallWithContext(ctx, krunnerInterface+".Match", 0, "")
	if call.Err != nil {
		return nil, classifyDBusError(ctx, call.Err, "WindowsRunner Match failed")
	}

	// a(sssida{sv}): id, text, iconName, type, relevance, properties
	var rawMatches [][]interface{}
	if err := call.Store(&rawMatches); err != nil {
		return nil, herrors.Wrap(err, herrors.ErrCodeBackendProtocol, "unexpected WindowsRunner reply")
	}
	windows := parseRunnerMatches(rawMatches)

	if b.activeWindow != nil {
		uuid, err := b.activeWindow(ctx)
		if err != nil {
			logger.WithComponent("kwin-backend").Debug().Err(err).Msg("Could not determine active window")
		} else {
			markFocused(windows, uuid)
		}
	}
	return windows, nil
}

// Focus runs the window's match, which activates it
func (b *KWinBackend) Focus(ctx context.Context, id string) error {
	call := b.runner.CallWithContext(ctx, krunnerInterface+".Run", 0, id, "")
	if call.Err != nil {
		return classifyDBusError(ctx, call.Err, "WindowsRunner Run failed")
	}
	return nil
}

// Close closes the D-Bus connection
func (b *KWinBackend) Close() error {
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

func parseRunnerMatches(rawMatches [][]interface{}) []Window {
	windows := make([]Window, 0, len(rawMatches))
	seen := make(map[string]bool)

	for _, rawMatch := range rawMatches {
		if len(rawMatch) < 6 {
			continue
		}
		rawID, ok := rawMatch[0].(string)
		if !ok || rawID == "" {
			continue
		}
		uuid := runnerUUID(rawID)
		if seen[uuid] {
			continue
		}

		text, _ := rawMatch[1].(string)
		iconName, _ := rawMatch[2].(string)

		w := Window{
			ID:    rawID,
			Title: text,
			AppID: iconName,
		}
		if props, ok := rawMatch[5].(map[string]dbus.Variant); ok {
			if sub, ok := props["subtext"]; ok {
				if s, ok := sub.Value().(string); ok {
					w.Workspace = s
				}
			}
		}

		// Common pattern: "Page Title - Application Name"
		if w.AppID == "" && text != "" {
			for _, sep := range []string{" — ", " - "} {
				if idx := strings.LastIndex(text, sep); idx > 0 {
					if candidate := strings.TrimSpace(text[idx+len(sep):]); candidate != "" && len(candidate) <= 30 {
						w.AppID = strings.ToLower(candidate)
						break
					}
				}
			}
		}
		if w.Title == "" && w.AppID == "" {
			continue
		}

		seen[uuid] = true
		windows = append(windows, w)
	}
	return windows
}

// runnerUUID extracts the window UUID from a match ID such as
// "0_{dc80ff04-3245-4d9b-b9a8-1582640d39e1}"
func runnerUUID(rawID string) string {
	start := strings.Index(rawID, "{")
	end := strings.LastIndex(rawID, "}")
	if start >= 0 && end > start {
		return rawID[start+1 : end]
	}
	return rawID
}

func markFocused(windows []Window, uuid string) {
	uuid = strings.Trim(strings.TrimSpace(uuid), "{}")
	if uuid == "" {
		return
	}
	for i := range windows {
		if runnerUUID(windows[i].ID) == uuid {
			windows[i].Focused = true
		}
	}
}

func kdotoolActiveWindow(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "kdotool", "getactivewindow").Output()
	if err != nil {
		return "", fmt.Errorf("kdotool getactivewindow failed: %w", err)
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("no active window")
	}
	return id, nil
}

// classifyDBusError maps bus failures onto backend error codes
func classifyDBusError(ctx context.Context, err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return herrors.Wrap(err, herrors.ErrCodeBackendTimeout, message)
	}

	var name string
	var dbusErr dbus.Error
	var dbusErrPtr *dbus.Error
	switch {
	case errors.As(err, &dbusErr):
		name = dbusErr.Name
	case errors.As(err, &dbusErrPtr):
		name = dbusErrPtr.Name
	default:
		return herrors.Wrap(err, herrors.ErrCodeBackendUnavailable, message)
	}

	switch name {
	case "org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.NameHasNoOwner",
		"org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.UnknownInterface",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.DBus.Error.NoReply",
		"org.freedesktop.DBus.Error.Disconnected":
		return herrors.Wrap(err, herrors.ErrCodeBackendUnavailable, message).WithDetail("dbus_error", name)
	case "org.freedesktop.DBus.Error.Timeout", "org.freedesktop.DBus.Error.TimedOut":
		return herrors.Wrap(err, herrors.ErrCodeBackendTimeout, message).WithDetail("dbus_error", name)
	default:
		return herrors.Wrap(err, herrors.ErrCodeBackendProtocol, message).WithDetail("dbus_error", name)
	}
}
