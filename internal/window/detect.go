package window

import (
	"context"
	"time"

	"github.com/bryanchriswhite/hopper/internal/logger"
)

const probeTimeout = 500 * time.Millisecond

// probe opens a candidate backend
type probe struct {
	name string
	open func() (Backend, error)
}

// defaultProbes lists backends in priority order
var defaultProbes = []probe{
	{name: "hyprland", open: func() (Backend, error) { return NewHyprlandBackend(), nil }},
	{name: "kwin", open: func() (Backend, error) { return NewKWinBackend() }},
	{name: "x11", open: func() (Backend, error) { return NewX11Backend() }},
}

// Detect selects the compositor backend once at startup. preference is
// "auto" to probe Hyprland, KWin then X11, a backend name to force it, or
// "none". When nothing answers the NullBackend is returned.
func Detect(ctx context.Context, preference string) Backend {
	return detect(ctx, preference, defaultProbes)
}

func detect(ctx context.Context, preference string, probes []probe) Backend {
	log := logger.WithComponent("window-detect")

	if preference == "none" {
		return NullBackend{}
	}

	for _, p := range probes {
		if preference != "" && preference != "auto" && preference != p.name {
			continue
		}

		b, err := p.open()
		if err != nil {
			log.Debug().Err(err).Str("backend", p.name).Msg("Backend unavailable")
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		ok := b.IsAvailable(pctx)
		cancel()
		if ok {
			log.Info().Str("backend", b.Name()).Msg("Using compositor backend")
			return b
		}
		_ = b.Close()
		log.Debug().Str("backend", p.name).Msg("Backend probe failed")
	}

	if preference != "" && preference != "auto" {
		log.Warn().Str("backend", preference).Msg("Configured backend not available, window switching disabled")
	} else {
		log.Warn().Msg("No supported compositor detected, window switching disabled")
	}
	return NullBackend{}
}
