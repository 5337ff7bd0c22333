package candidate

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/hopper/internal/desktop"
	"github.com/bryanchriswhite/hopper/internal/logger"
	"github.com/bryanchriswhite/hopper/internal/window"
)

// EntrySource provides the indexed desktop entries
type EntrySource interface {
	Entries() []desktop.Entry
}

// WindowLister provides the current windows
type WindowLister interface {
	ListWindows(ctx context.Context) ([]window.Window, error)
}

// WeightSource provides frequency weights for desktop entries
type WeightSource interface {
	Weight(id string) int
}

// Store holds the candidate list of exactly one mode at a time
type Store struct {
	entries        EntrySource
	windows        WindowLister
	weights        WeightSource
	excludeFocused bool

	mu      sync.RWMutex
	mode    Mode
	current []Candidate
}

// NewStore creates a store. weights may be nil.
func NewStore(entries EntrySource, windows WindowLister, weights WeightSource, excludeFocused bool) *Store {
	return &Store{
		entries:        entries,
		windows:        windows,
		weights:        weights,
		excludeFocused: excludeFocused,
	}
}

// Rebuild replaces the store contents with fresh candidates for mode. When
// the window list cannot be fetched the store is left empty and the error
// is returned for logging; callers still get a usable (empty) list.
func (s *Store) Rebuild(ctx context.Context, mode Mode) ([]Candidate, error) {
	var candidates []Candidate
	var err error

	switch mode {
	case WindowSwitcher:
		candidates, err = s.buildWindows(ctx)
	default:
		candidates = s.buildApps()
	}

	s.mu.Lock()
	s.mode = mode
	s.current = candidates
	s.mu.Unlock()

	return append([]Candidate(nil), candidates...), err
}

func (s *Store) buildApps() []Candidate {
	entries := s.entries.Entries()
	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		weight := 0
		if s.weights != nil {
			weight = s.weights.Weight(e.ID)
		}
		candidates = append(candidates, FromEntry(e, len(candidates), weight))
	}
	return candidates
}

func (s *Store) buildWindows(ctx context.Context) ([]Candidate, error) {
	windows, err := s.windows.ListWindows(ctx)
	if err != nil {
		logger.WithComponent("candidate-store").Debug().Err(err).Msg("Window list unavailable, switcher will be empty")
		return []Candidate{}, err
	}

	candidates := make([]Candidate, 0, len(windows))
	for _, w := range windows {
		if s.excludeFocused && w.Focused {
			continue
		}
		candidates = append(candidates, FromWindow(w, len(candidates)))
	}
	return candidates, nil
}

// Current returns the mode and candidates of the last rebuild
func (s *Store) Current() (Mode, []Candidate) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, append([]Candidate(nil), s.current...)
}
