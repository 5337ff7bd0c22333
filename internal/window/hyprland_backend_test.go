package window

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clientsJSON = `[
  {"address":"0x55a1","mapped":true,"hidden":false,"workspace":{"id":2,"name":"2"},"class":"kitty","title":"~/src","pid":10,"focusHistoryID":1},
  {"address":"0x55a2","mapped":true,"hidden":false,"workspace":{"id":1,"name":"1"},"class":"firefox","title":"Mozilla Firefox","pid":11,"focusHistoryID":0},
  {"address":"0x55a3","mapped":false,"hidden":false,"workspace":{"id":1,"name":"1"},"class":"ghost","title":"unmapped","pid":12,"focusHistoryID":2},
  {"address":"0x55a4","mapped":true,"hidden":false,"workspace":{"id":-98,"name":"special:scratch"},"class":"","initialClass":"obsidian","title":"Notes","pid":13,"focusHistoryID":-1},
  {"address":"0x55a5","mapped":true,"hidden":false,"workspace":{"id":3,"name":"3"},"class":"code","title":"main.go","pid":14,"focusHistoryID":3}
]`

// fakeHyprland serves canned replies on a unix socket
type fakeHyprland struct {
	path string
	ln   net.Listener

	mu       sync.Mutex
	replies  map[string]string
	requests []string
	delay    time.Duration
}

func newFakeHyprland(t *testing.T, replies map[string]string) *fakeHyprland {
	t.Helper()
	dir, err := os.MkdirTemp("", "hypr")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, ".socket.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	f := &fakeHyprland{path: path, ln: ln, replies: replies}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeHyprland) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go func(c net.Conn) {
			defer c.Close()
			buf := make([]byte, 1024)
			n, err := c.Read(buf)
			if err != nil {
				return
			}
			req := string(buf[:n])

			f.mu.Lock()
			f.requests = append(f.requests, req)
			reply := f.replies[req]
			delay := f.delay
			f.mu.Unlock()

			time.Sleep(delay)
			_, _ = c.Write([]byte(reply))
		}(conn)
	}
}

func (f *fakeHyprland) lastRequest() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ""
	}
	return f.requests[len(f.requests)-1]
}

func TestHyprlandListWindows(t *testing.T) {
	fake := newFakeHyprland(t, map[string]string{"j/clients": clientsJSON})
	b := NewHyprlandBackendAt(fake.path)

	assert.True(t, b.IsAvailable(context.Background()))

	windows, err := b.ListWindows(context.Background())
	require.NoError(t, err)
	require.Len(t, windows, 4)

	assert.Equal(t, "0x55a2", windows[0].ID)
	assert.True(t, windows[0].Focused)
	assert.Equal(t, "firefox", windows[0].AppID)
	assert.Equal(t, "1", windows[0].Workspace)

	assert.Equal(t, "0x55a1", windows[1].ID)
	assert.False(t, windows[1].Focused)
	assert.Equal(t, "0x55a5", windows[2].ID)

	assert.Equal(t, "0x55a4", windows[3].ID)
	assert.Equal(t, "obsidian", windows[3].AppID)
	assert.Equal(t, "special:scratch", windows[3].Workspace)
}

func TestHyprlandFocus(t *testing.T) {
	fake := newFakeHyprland(t, map[string]string{
		"dispatch focuswindow address:0x55a1": "ok",
		"dispatch focuswindow address:0xdead": "No such window found",
	})
	b := NewHyprlandBackendAt(fake.path)

	require.NoError(t, b.Focus(context.Background(), "0x55a1"))
	assert.Equal(t, "dispatch focuswindow address:0x55a1", fake.lastRequest())

	err := b.Focus(context.Background(), "0xdead")
	assert.True(t, herrors.Is(err, herrors.ErrCodeBackendProtocol))

	err = b.Focus(context.Background(), "not-an-address")
	assert.True(t, herrors.Is(err, herrors.ErrCodeBackendProtocol))
}

func TestHyprlandProtocolErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"empty", ""},
		{"malformed", "{not json"},
		{"wrong shape", `{"address":"0x1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeHyprland(t, map[string]string{"j/clients": tt.reply})
			_, err := NewHyprlandBackendAt(fake.path).ListWindows(context.Background())
			assert.True(t, herrors.Is(err, herrors.ErrCodeBackendProtocol), "got %v", err)
		})
	}
}

func TestHyprlandUnavailable(t *testing.T) {
	b := NewHyprlandBackendAt(filepath.Join(t.TempDir(), "missing.sock"))
	assert.False(t, b.IsAvailable(context.Background()))

	_, err := b.ListWindows(context.Background())
	assert.True(t, herrors.Is(err, herrors.ErrCodeBackendUnavailable))

	assert.False(t, NewHyprlandBackendAt("").IsAvailable(context.Background()))
}

func TestHyprlandTimeout(t *testing.T) {
	fake := newFakeHyprland(t, map[string]string{"j/clients": clientsJSON})
	fake.delay = 300 * time.Millisecond
	b := NewHyprlandBackendAt(fake.path)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.ListWindows(ctx)
	assert.True(t, herrors.Is(err, herrors.ErrCodeBackendTimeout), "got %v", err)
}

func TestHyprlandSocketPath(t *testing.T) {
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "")
	assert.Equal(t, "", HyprlandSocketPath())

	runtime := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtime)
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "abc_123")
	assert.Equal(t, "/tmp/hypr/abc_123/.socket.sock", HyprlandSocketPath())

	sockDir := filepath.Join(runtime, "hypr", "abc_123")
	require.NoError(t, os.MkdirAll(sockDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sockDir, ".socket.sock"), nil, 0o600))
	assert.Equal(t, filepath.Join(sockDir, ".socket.sock"), HyprlandSocketPath())
}
