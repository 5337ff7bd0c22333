package window

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/bryanchriswhite/hopper/internal/logger"
)

// X11Backend implements the Backend interface for EWMH compliant X11
// window managers
type X11Backend struct {
	conn  *xgb.Conn
	root  xproto.Window
	mu    sync.Mutex
	atoms map[string]xproto.Atom
}

// NewX11Backend connects to the X server named by $DISPLAY. Wayland
// sessions are refused: their DISPLAY is XWayland, which only sees X
// clients and may ignore activation requests.
func NewX11Backend() (*X11Backend, error) {
	if os.Getenv("DISPLAY") == "" {
		return nil, herrors.New(herrors.ErrCodeBackendUnavailable, "DISPLAY is not set")
	}
	if waylandSession() {
		return nil, herrors.New(herrors.ErrCodeBackendUnavailable, "DISPLAY belongs to XWayland in a Wayland session")
	}
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, herrors.Wrap(err, herrors.ErrCodeBackendUnavailable, "failed to connect to X server")
	}

	setup := xproto.Setup(conn)
	return &X11Backend{
		conn:  conn,
		root:  setup.DefaultScreen(conn).Root,
		atoms: make(map[string]xproto.Atom),
	}, nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

func waylandSession() bool {
	return os.Getenv("WAYLAND_DISPLAY") != "" || strings.EqualFold(os.Getenv("XDG_SESSION_TYPE"), "wayland")
}

// IsAvailable checks for an EWMH window manager via _NET_SUPPORTING_WM_CHECK
func (b *X11Backend) IsAvailable(ctx context.Context) bool {
	value, err := awaitReply(ctx, func() ([]byte, error) {
		return b.getProperty(b.root, "_NET_SUPPORTING_WM_CHECK", xproto.AtomWindow)
	})
	if err != nil || len(value) < 4 {
		logger.WithComponent("x11-backend").Debug().Err(err).Msg("No EWMH window manager found")
		return false
	}
	return true
}

// awaitReply runs a blocking X request and gives up when ctx ends. xgb
// replies cannot be cancelled; closing the connection unblocks the request.
func awaitReply[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn()
		done <- result{value, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// ListWindows returns managed client windows, topmost first
func (b *X11Backend) ListWindows(ctx context.Context) ([]Window, error) {
	ids, err := b.clientList()
	if err != nil {
		return nil, err
	}

	var active uint32
	if value, err := b.getProperty(b.root, "_NET_ACTIVE_WINDOW", xproto.AtomWindow); err == nil {
		if ws := decodeUint32s(value); len(ws) > 0 {
			active = ws[0]
		}
	}

	windows := make([]Window, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w := b.windowInfo(xproto.Window(id))
		if w.Title == "" && w.AppID == "" {
			continue
		}
		w.Focused = id == active
		windows = append(windows, w)
	}
	return windows, nil
}

// clientList prefers the stacking order so the most recently raised windows
// come first, falling back to _NET_CLIENT_LIST
func (b *X11Backend) clientList() ([]uint32, error) {
	if value, err := b.getProperty(b.root, "_NET_CLIENT_LIST_STACKING", xproto.AtomWindow); err == nil && len(value) >= 4 {
		ids := decodeUint32s(value)
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
		return ids, nil
	}

	value, err := b.getProperty(b.root, "_NET_CLIENT_LIST", xproto.AtomWindow)
	if err != nil {
		return nil, herrors.Wrap(err, herrors.ErrCodeBackendProtocol, "failed to read _NET_CLIENT_LIST")
	}
	return decodeUint32s(value), nil
}

func (b *X11Backend) windowInfo(win xproto.Window) Window {
	w := Window{ID: FormatX11WindowID(uint32(win))}

	if value, err := b.getProperty(win, "_NET_WM_NAME", xproto.GetPropertyTypeAny); err == nil && len(value) > 0 {
		w.Title = string(value)
	} else if value, err := b.getProperty(win, "WM_NAME", xproto.GetPropertyTypeAny); err == nil {
		w.Title = string(value)
	}

	if value, err := b.getProperty(win, "WM_CLASS", xproto.AtomString); err == nil {
		w.AppID = parseWMClass(value)
	}

	if value, err := b.getProperty(win, "_NET_WM_DESKTOP", xproto.AtomCardinal); err == nil {
		if ds := decodeUint32s(value); len(ds) > 0 {
			if ds[0] == 0xFFFFFFFF {
				w.Workspace = "all"
			} else {
				w.Workspace = strconv.Itoa(int(ds[0]) + 1)
			}
		}
	}

	if value, err := b.getProperty(win, "_NET_WM_PID", xproto.AtomCardinal); err == nil {
		if ps := decodeUint32s(value); len(ps) > 0 {
			w.PID = int(ps[0])
		}
	}
	return w
}

// Focus asks the window manager to activate the window
func (b *X11Backend) Focus(ctx context.Context, id string) error {
	win, err := ParseX11WindowID(id)
	if err != nil {
		return herrors.Wrap(err, herrors.ErrCodeBackendProtocol, "invalid X11 window id")
	}
	activeAtom, err := b.atom("_NET_ACTIVE_WINDOW")
	if err != nil {
		return herrors.Wrap(err, herrors.ErrCodeBackendProtocol, "failed to intern _NET_ACTIVE_WINDOW")
	}

	// Source indication 2 marks the request as coming from a pager
	event := xproto.ClientMessageEvent{
		Format: 32,
		Window: xproto.Window(win),
		Type:   activeAtom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{2, xproto.TimeCurrentTime, 0, 0, 0}),
	}
	mask := uint32(xproto.EventMaskSubstructureRedirect | xproto.EventMaskSubstructureNotify)
	if err := xproto.SendEventChecked(b.conn, false, b.root, mask, string(event.Bytes())).Check(); err != nil {
		return herrors.Wrap(err, herrors.ErrCodeBackendProtocol, "failed to send _NET_ACTIVE_WINDOW")
	}
	return nil
}

// Close closes the X connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// atom gets an atom ID by name, caching the result
func (b *X11Backend) atom(name string) (xproto.Atom, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if a, ok := b.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	b.atoms[name] = reply.Atom
	return reply.Atom, nil
}

// getProperty reads a property value
func (b *X11Backend) getProperty(win xproto.Window, name string, typ xproto.Atom) ([]byte, error) {
	a, err := b.atom(name)
	if err != nil {
		return nil, err
	}
	reply, err := xproto.GetProperty(b.conn, false, win, a, typ, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, err
	}
	if reply.ValueLen == 0 {
		return nil, fmt.Errorf("property %s not set", name)
	}
	return reply.Value, nil
}

// decodeUint32s decodes a format-32 property value
func decodeUint32s(value []byte) []uint32 {
	out := make([]uint32, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		out = append(out, binary.LittleEndian.Uint32(value[i:i+4]))
	}
	return out
}

// parseWMClass returns the class part of WM_CLASS ("instance\x00class\x00")
func parseWMClass(value []byte) string {
	parts := strings.Split(strings.TrimRight(string(value), "\x00"), "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return parts[0]
}

// FormatX11WindowID renders a window ID the way xprop does
func FormatX11WindowID(id uint32) string {
	return fmt.Sprintf("0x%08x", id)
}

// ParseX11WindowID parses an ID produced by FormatX11WindowID
func ParseX11WindowID(id string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(id, "0x"), 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
