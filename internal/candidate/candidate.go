// Package candidate builds the searchable list for the active mode.
package candidate

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/hopper/internal/desktop"
	"github.com/bryanchriswhite/hopper/internal/window"
)

// Mode selects what the daemon is searching over
type Mode int

const (
	AppLauncher Mode = iota
	WindowSwitcher
)

func (m Mode) String() string {
	switch m {
	case WindowSwitcher:
		return "windows"
	default:
		return "apps"
	}
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode accepts "apps"/"launcher" and "windows"/"switcher"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "apps", "app", "launcher", "applauncher":
		return AppLauncher, nil
	case "windows", "window", "switcher", "windowswitcher":
		return WindowSwitcher, nil
	default:
		return AppLauncher, fmt.Errorf("unknown mode %q: want apps or windows", s)
	}
}

// Kind tags which variant a Candidate holds
type Kind string

const (
	KindApp    Kind = "app"
	KindWindow Kind = "window"
)

// Candidate is one searchable item: a desktop entry or a window
type Candidate struct {
	Kind   Kind
	App    *desktop.Entry
	Window *window.Window
	// Key is the lower-cased text matched against queries
	Key string
	// Weight orders candidates when the query is empty
	Weight int
	// Index is the position in the store, used as the final tie-break
	Index int
}

// FromEntry builds an application candidate
func FromEntry(e desktop.Entry, index, weight int) Candidate {
	parts := append([]string{e.Name}, e.Keywords...)
	return Candidate{
		Kind:   KindApp,
		App:    &e,
		Key:    searchKey(parts...),
		Weight: weight,
		Index:  index,
	}
}

// FromWindow builds a window candidate
func FromWindow(w window.Window, index int) Candidate {
	return Candidate{
		Kind:   KindWindow,
		Window: &w,
		Key:    searchKey(w.Title, w.AppID),
		Index:  index,
	}
}

func searchKey(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.ToLower(strings.Join(nonEmpty, " "))
}

// ID returns the desktop-file ID or the window ID
func (c Candidate) ID() string {
	if c.Kind == KindWindow {
		return c.Window.ID
	}
	return c.App.ID
}

// Name returns the primary display text
func (c Candidate) Name() string {
	if c.Kind == KindWindow {
		if c.Window.Title != "" {
			return c.Window.Title
		}
		return c.Window.AppID
	}
	return c.App.Name
}

// Description returns the secondary display text
func (c Candidate) Description() string {
	if c.Kind == KindWindow {
		return c.Window.Description()
	}
	return c.App.Description()
}

// Icon returns an icon name for the rendering layer to resolve
func (c Candidate) Icon() string {
	if c.Kind == KindWindow {
		return strings.ToLower(c.Window.AppID)
	}
	return c.App.Icon
}

// Section returns the result group heading
func (c Candidate) Section() string {
	if c.Kind == KindWindow {
		return "Windows"
	}
	return "Applications"
}

// Action returns the label of what activating the candidate does
func (c Candidate) Action() string {
	if c.Kind == KindWindow {
		return "Switch"
	}
	return "Open"
}
