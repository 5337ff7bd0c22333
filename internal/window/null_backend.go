package window

import (
	"context"

	herrors "github.com/bryanchriswhite/hopper/internal/errors"
)

// NullBackend is used when no supported compositor is detected. The
// launcher keeps working; the switcher shows nothing.
type NullBackend struct{}

func (NullBackend) Name() string { return "none" }

func (NullBackend) IsAvailable(context.Context) bool { return true }

func (NullBackend) ListWindows(context.Context) ([]Window, error) { return []Window{}, nil }

func (NullBackend) Focus(context.Context, string) error {
	return herrors.New(herrors.ErrCodeUnsupportedCompositor, "no supported compositor detected")
}

func (NullBackend) Close() error { return nil }
