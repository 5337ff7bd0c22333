// Package history keeps per-candidate launch counts used to order results
// when the query is empty.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/hopper/internal/logger"
)

// Usage holds the launch statistics of one candidate
type Usage struct {
	Count    int       `json:"count"`
	LastUsed time.Time `json:"last_used"`
}

type file struct {
	Entries map[string]*Usage `json:"entries"`
}

// Store persists usage counts to a JSON file
type Store struct {
	path    string
	entries map[string]*Usage
	mu      sync.Mutex
	now     func() time.Time
}

// Open loads the store at path. A missing or unreadable file starts empty.
// An empty path keeps counts in memory only.
func Open(path string) *Store {
	s := &Store{
		path:    path,
		entries: make(map[string]*Usage),
		now:     time.Now,
	}
	if path == "" {
		return s
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		logger.WithComponent("history").Warn().Err(err).Str("path", path).Msg("Could not load frequency cache, starting fresh")
	}
	return s
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse frequency cache: %w", err)
	}
	for id, u := range f.Entries {
		if u != nil && u.Count > 0 {
			s.entries[id] = u
		}
	}
	return nil
}

// Record counts one use of id and persists the store
func (s *Store) Record(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.entries[id]
	if !ok {
		u = &Usage{}
		s.entries[id] = u
	}
	u.Count++
	u.LastUsed = s.now()

	return s.save()
}

// Weight returns the ranking weight of id; zero when never used
func (s *Store) Weight(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.entries[id]; ok {
		return u.Count
	}
	return 0
}

// Usage returns a copy of the statistics for id
func (s *Store) Usage(id string) (Usage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.entries[id]
	if !ok {
		return Usage{}, false
	}
	return *u, true
}

// save writes the store through a temporary file so a crash never leaves
// a truncated cache. Caller holds s.mu.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(file{Entries: s.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal frequency cache: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write frequency cache: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace frequency cache: %w", err)
	}
	return nil
}
