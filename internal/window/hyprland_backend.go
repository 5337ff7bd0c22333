package window

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/bryanchriswhite/hopper/internal/logger"
)

// HyprlandBackend talks to Hyprland's request socket (.socket.sock). Each
// request opens a connection, writes one command and reads until EOF.
type HyprlandBackend struct {
	socketPath string
	dialer     net.Dialer
}

// hyprClient mirrors the fields of `hyprctl -j clients` that are used
type hyprClient struct {
	Address   string `json:"address"`
	Mapped    bool   `json:"mapped"`
	Hidden    bool   `json:"hidden"`
	Workspace struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"workspace"`
	Class          string `json:"class"`
	Title          string `json:"title"`
	InitialClass   string `json:"initialClass"`
	PID            int    `json:"pid"`
	FocusHistoryID int    `json:"focusHistoryID"`
}

// HyprlandSocketPath locates the request socket of the running instance.
// It returns "" when HYPRLAND_INSTANCE_SIGNATURE is not set.
func HyprlandSocketPath() string {
	sig := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if sig == "" {
		return ""
	}
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		path := filepath.Join(runtime, "hypr", sig, ".socket.sock")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	// Hyprland before 0.40 used /tmp
	return filepath.Join("/tmp", "hypr", sig, ".socket.sock")
}

// NewHyprlandBackend creates a backend for the current Hyprland instance
func NewHyprlandBackend() *HyprlandBackend {
	return NewHyprlandBackendAt(HyprlandSocketPath())
}

// NewHyprlandBackendAt creates a backend using an explicit socket path
func NewHyprlandBackendAt(socketPath string) *HyprlandBackend {
	return &HyprlandBackend{socketPath: socketPath}
}

// Name returns the backend name
func (b *HyprlandBackend) Name() string {
	return "hyprland"
}

// IsAvailable checks that the request socket accepts connections
func (b *HyprlandBackend) IsAvailable(ctx context.Context) bool {
	if b.socketPath == "" {
		return false
	}
	conn, err := b.dialer.DialContext(ctx, "unix", b.socketPath)
	if err != nil {
		logger.WithComponent("hyprland-backend").Debug().Err(err).Str("socket", b.socketPath).Msg("Hyprland socket not reachable")
		return false
	}
	conn.Close()
	return true
}

// request sends one command and returns the full reply
func (b *HyprlandBackend) request(ctx context.Context, command string) ([]byte, error) {
	if b.socketPath == "" {
		return nil, herrors.New(herrors.ErrCodeBackendUnavailable, "HYPRLAND_INSTANCE_SIGNATURE is not set")
	}

	conn, err := b.dialer.DialContext(ctx, "unix", b.socketPath)
	if err != nil {
		return nil, classifyNetError(err, "failed to connect to Hyprland")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte(command)); err != nil {
		return nil, classifyNetError(err, "failed to send Hyprland request")
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return nil, classifyNetError(err, "failed to read Hyprland reply")
	}
	return reply, nil
}

func classifyNetError(err error, message string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return herrors.Wrap(err, herrors.ErrCodeBackendTimeout, message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return herrors.Wrap(err, herrors.ErrCodeBackendTimeout, message)
	}
	return herrors.Wrap(err, herrors.ErrCodeBackendUnavailable, message)
}

// ListWindows returns mapped clients, most recently focused first
func (b *HyprlandBackend) ListWindows(ctx context.Context) ([]Window, error) {
	reply, err := b.request(ctx, "j/clients")
	if err != nil {
		return nil, err
	}
	return parseHyprlandClients(reply)
}

func parseHyprlandClients(reply []byte) ([]Window, error) {
	reply = bytes.TrimSpace(reply)
	if len(reply) == 0 {
		return nil, herrors.New(herrors.ErrCodeBackendProtocol, "empty reply to j/clients")
	}

	var clients []hyprClient
	if err := json.Unmarshal(reply, &clients); err != nil {
		return nil, herrors.Wrap(err, herrors.ErrCodeBackendProtocol, "malformed reply to j/clients")
	}

	visible := clients[:0]
	for _, c := range clients {
		if !c.Mapped || c.Hidden || c.Address == "" {
			continue
		}
		visible = append(visible, c)
	}

	// Windows never focused report -1 and go last
	sort.SliceStable(visible, func(i, j int) bool {
		a, b := visible[i].FocusHistoryID, visible[j].FocusHistoryID
		if (a < 0) != (b < 0) {
			return b < 0
		}
		return a < b
	})

	windows := make([]Window, 0, len(visible))
	for _, c := range visible {
		appID := c.Class
		if appID == "" {
			appID = c.InitialClass
		}
		workspace := c.Workspace.Name
		if workspace == "" {
			workspace = fmt.Sprint(c.Workspace.ID)
		}
		windows = append(windows, Window{
			ID:        c.Address,
			Title:     c.Title,
			AppID:     appID,
			Workspace: workspace,
			Focused:   c.FocusHistoryID == 0,
			PID:       c.PID,
		})
	}
	return windows, nil
}

// Focus dispatches focuswindow for the given client address
func (b *HyprlandBackend) Focus(ctx context.Context, id string) error {
	if !strings.HasPrefix(id, "0x") {
		return herrors.Newf(herrors.ErrCodeBackendProtocol, "invalid Hyprland window address %q", id)
	}

	reply, err := b.request(ctx, "dispatch focuswindow address:"+id)
	if err != nil {
		return err
	}
	if answer := strings.TrimSpace(string(reply)); answer != "ok" {
		return herrors.Newf(herrors.ErrCodeBackendProtocol, "focuswindow rejected: %s", answer)
	}
	return nil
}

// Close is a no-op since connections are per request
func (b *HyprlandBackend) Close() error {
	return nil
}
