package window

import (
	"context"
	"fmt"
)

// Window is a snapshot of one top-level window as reported by the compositor
type Window struct {
	// ID is opaque and only meaningful to the backend that produced it
	ID        string `json:"id"`
	Title     string `json:"title"`
	AppID     string `json:"app_id"`
	Workspace string `json:"workspace,omitempty"`
	Focused   bool   `json:"focused"`
	PID       int    `json:"pid,omitempty"`
}

// Description returns the secondary line shown for a window
func (w Window) Description() string {
	switch {
	case w.AppID != "" && w.Workspace != "":
		return fmt.Sprintf("%s on workspace %s", w.AppID, w.Workspace)
	case w.Workspace != "":
		return "workspace " + w.Workspace
	default:
		return w.AppID
	}
}

// Backend defines the interface for compositor backends (Hyprland, KWin, X11)
type Backend interface {
	// Name returns the backend name (e.g., "hyprland", "kwin")
	Name() string

	// IsAvailable reports whether the compositor this backend speaks to is running
	IsAvailable(ctx context.Context) bool

	// ListWindows returns all user-facing windows, most recently used first
	// where the compositor exposes that order
	ListWindows(ctx context.Context) ([]Window, error)

	// Focus raises and focuses the window with the given ID
	Focus(ctx context.Context, id string) error

	// Close releases the connection to the compositor
	Close() error
}
