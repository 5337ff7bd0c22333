package window

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a scriptable Backend
type fakeBackend struct {
	name      string
	available bool
	windows   []Window
	listErr   error
	focusErr  error
	block     chan struct{}
	panicMsg  string
	focused   atomic.Value
	closed    atomic.Bool
}

func (f *fakeBackend) Name() string                         { return f.name }
func (f *fakeBackend) IsAvailable(ctx context.Context) bool { return f.available }
func (f *fakeBackend) Close() error                         { f.closed.Store(true); return nil }

func (f *fakeBackend) ListWindows(ctx context.Context) ([]Window, error) {
	if f.block != nil {
		<-f.block
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.windows, f.listErr
}

func (f *fakeBackend) Focus(ctx context.Context, id string) error {
	if f.block != nil {
		<-f.block
	}
	f.focused.Store(id)
	return f.focusErr
}

func TestManagerListWindows(t *testing.T) {
	fb := &fakeBackend{name: "fake", windows: []Window{{ID: "1", Title: "one"}}}
	m := NewManager(fb, 0, 0)

	windows, err := m.ListWindows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fb.windows, windows)
	assert.Equal(t, "fake", m.Name())
}

func TestManagerTimesOutHungBackend(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	fb := &fakeBackend{name: "hung", block: block}
	m := NewManager(fb, 30*time.Millisecond, 40*time.Millisecond)

	start := time.Now()
	_, err := m.ListWindows(context.Background())
	assert.True(t, herrors.Is(err, herrors.ErrCodeBackendTimeout), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)

	err = m.Focus(context.Background(), "1")
	assert.True(t, herrors.Is(err, herrors.ErrCodeBackendTimeout), "got %v", err)
}

func TestManagerRecoversPanics(t *testing.T) {
	fb := &fakeBackend{name: "broken", panicMsg: "nil map"}
	m := NewManager(fb, time.Second, time.Second)

	_, err := m.ListWindows(context.Background())
	assert.True(t, herrors.Is(err, herrors.ErrCodeBackendProtocol), "got %v", err)
}

func TestManagerClassifiesErrors(t *testing.T) {
	fb := &fakeBackend{name: "fake", listErr: errors.New("socket closed")}
	m := NewManager(fb, time.Second, time.Second)

	_, err := m.ListWindows(context.Background())
	assert.True(t, herrors.Is(err, herrors.ErrCodeBackendUnavailable))

	fb.listErr = herrors.New(herrors.ErrCodeBackendProtocol, "bad json")
	_, err = m.ListWindows(context.Background())
	assert.True(t, herrors.Is(err, herrors.ErrCodeBackendProtocol))
}

func TestManagerFocus(t *testing.T) {
	fb := &fakeBackend{name: "fake"}
	m := NewManager(fb, time.Second, time.Second)

	require.NoError(t, m.Focus(context.Background(), "0x1"))
	assert.Equal(t, "0x1", fb.focused.Load())

	require.NoError(t, m.Close())
	assert.True(t, fb.closed.Load())
}

func TestNullBackend(t *testing.T) {
	var b Backend = NullBackend{}
	windows, err := b.ListWindows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, windows)

	err = b.Focus(context.Background(), "x")
	assert.True(t, herrors.Is(err, herrors.ErrCodeUnsupportedCompositor))
}

func TestWindowDescription(t *testing.T) {
	assert.Equal(t, "kitty on workspace 2", Window{AppID: "kitty", Workspace: "2"}.Description())
	assert.Equal(t, "workspace 2", Window{Workspace: "2"}.Description())
	assert.Equal(t, "kitty", Window{AppID: "kitty"}.Description())
}
