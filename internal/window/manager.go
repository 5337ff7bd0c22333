package window

import (
	"context"
	"errors"
	"fmt"
	"time"

	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/bryanchriswhite/hopper/internal/logger"
)

const (
	DefaultListTimeout  = 200 * time.Millisecond
	DefaultFocusTimeout = 500 * time.Millisecond
)

// Manager wraps the selected backend and bounds every call with a timeout.
// A call still running at its deadline is abandoned, not waited for.
type Manager struct {
	backend      Backend
	listTimeout  time.Duration
	focusTimeout time.Duration
}

// NewManager creates a new window manager around backend
func NewManager(backend Backend, listTimeout, focusTimeout time.Duration) *Manager {
	if listTimeout <= 0 {
		listTimeout = DefaultListTimeout
	}
	if focusTimeout <= 0 {
		focusTimeout = DefaultFocusTimeout
	}
	return &Manager{
		backend:      backend,
		listTimeout:  listTimeout,
		focusTimeout: focusTimeout,
	}
}

// Name returns the name of the underlying backend
func (m *Manager) Name() string {
	return m.backend.Name()
}

// ListWindows returns the current windows
func (m *Manager) ListWindows(ctx context.Context) ([]Window, error) {
	start := time.Now()
	windows, err := withTimeout(ctx, m.listTimeout, "list windows", m.backend.ListWindows)

	log := logger.WithComponent("window-manager")
	if err != nil {
		log.Warn().Err(err).Str("backend", m.backend.Name()).Msg("Failed to list windows")
		return nil, err
	}
	log.Debug().
		Str("backend", m.backend.Name()).
		Int("windows", len(windows)).
		Dur("took", time.Since(start)).
		Msg("Listed windows")
	return windows, nil
}

// Focus focuses the window with the given ID
func (m *Manager) Focus(ctx context.Context, id string) error {
	_, err := withTimeout(ctx, m.focusTimeout, "focus window", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.backend.Focus(ctx, id)
	})
	if err != nil {
		logger.WithComponent("window-manager").Warn().
			Err(err).
			Str("backend", m.backend.Name()).
			Str("window", id).
			Msg("Failed to focus window")
	}
	return err
}

// Close closes the underlying backend
func (m *Manager) Close() error {
	return m.backend.Close()
}

type result[T any] struct {
	value T
	err   error
}

// withTimeout runs fn on its own goroutine and gives up at the deadline.
// Backend panics are reported as protocol errors.
func withTimeout[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: herrors.Newf(herrors.ErrCodeBackendProtocol, "%s: backend panicked: %v", op, r)}
			}
		}()
		v, err := fn(ctx)
		done <- result[T]{value: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err == nil {
			return r.value, nil
		}
		if herrors.GetCode(r.err) != "" {
			return zero, r.err
		}
		if errors.Is(r.err, context.DeadlineExceeded) {
			return zero, timeoutError(op, timeout, r.err)
		}
		return zero, herrors.Wrap(r.err, herrors.ErrCodeBackendUnavailable, op+" failed")
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, timeoutError(op, timeout, ctx.Err())
		}
		return zero, ctx.Err()
	}
}

func timeoutError(op string, timeout time.Duration, cause error) error {
	return herrors.Wrap(cause, herrors.ErrCodeBackendTimeout, fmt.Sprintf("%s timed out after %s", op, timeout))
}
