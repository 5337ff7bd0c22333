package desktop

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/bryanchriswhite/hopper/internal/logger"
	"github.com/sourcegraph/conc"
)

// ApplicationDirs returns the applications directories in priority order,
// highest first: $XDG_DATA_HOME, each $XDG_DATA_DIRS element, then extra.
func ApplicationDirs(extra []string) []string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataHome = filepath.Join(home, ".local", "share")
		}
	}
	dataDirs := os.Getenv("XDG_DATA_DIRS")
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}

	var dirs []string
	if dataHome != "" {
		dirs = append(dirs, filepath.Join(dataHome, "applications"))
	}
	for _, d := range strings.Split(dataDirs, ":") {
		if d != "" {
			dirs = append(dirs, filepath.Join(d, "applications"))
		}
	}
	dirs = append(dirs, extra...)

	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		d = filepath.Clean(d)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// Index holds the current set of launchable entries
type Index struct {
	dirs     []string
	lookPath func(string) (string, error)

	mu      sync.RWMutex
	entries []Entry
	byID    map[string]Entry
}

// NewIndex creates an index over dirs, given in priority order
func NewIndex(dirs []string) *Index {
	return &Index{
		dirs:     dirs,
		lookPath: exec.LookPath,
		byID:     make(map[string]Entry),
	}
}

// Dirs returns the scanned directories in priority order
func (idx *Index) Dirs() []string {
	return append([]string(nil), idx.dirs...)
}

// Scan re-reads every directory and replaces the entry set. Unreadable or
// malformed files are logged and skipped. On cancellation the previous set
// is kept.
func (idx *Index) Scan(ctx context.Context) ([]Entry, error) {
	log := logger.WithComponent("desktop-index")

	perDir := make([][]Entry, len(idx.dirs))
	wg := conc.NewWaitGroup()
	for i, dir := range idx.dirs {
		wg.Go(func() {
			perDir[i] = idx.scanDir(ctx, dir)
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return idx.Entries(), err
	}

	// Highest priority directory wins for a given ID, including Hidden
	// entries which mask lower ones.
	winners := make(map[string]Entry)
	for _, entries := range perDir {
		for _, e := range entries {
			if _, ok := winners[e.ID]; !ok {
				winners[e.ID] = e
			}
		}
	}

	entries := make([]Entry, 0, len(winners))
	byID := make(map[string]Entry, len(winners))
	for id, e := range winners {
		if !e.Launchable() {
			continue
		}
		entries = append(entries, e)
		byID[id] = e
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	idx.mu.Lock()
	idx.entries = entries
	idx.byID = byID
	idx.mu.Unlock()

	log.Info().
		Int("entries", len(entries)).
		Int("dirs", len(idx.dirs)).
		Msg("Desktop entries indexed")

	return append([]Entry(nil), entries...), nil
}

func (idx *Index) scanDir(ctx context.Context, dir string) []Entry {
	log := logger.WithComponent("desktop-index")

	var entries []Entry
	seen := make(map[string]bool)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fs.SkipDir
			}
			log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable path")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(path, desktopExt) {
			return nil
		}

		id, err := EntryID(dir, path)
		if err != nil || seen[id] {
			return nil
		}

		entry, err := ParseFile(id, path)
		if err != nil {
			if IsSkip(err) {
				log.Debug().Str("path", path).Str("reason", err.Error()).Msg("Skipping non-application entry")
			} else {
				log.Warn().Err(err).Str("path", path).Msg("Skipping malformed desktop entry")
			}
			return nil
		}
		if entry.TryExec != "" && !idx.tryExec(entry.TryExec) {
			log.Debug().Str("id", id).Str("try_exec", entry.TryExec).Msg("TryExec binary missing, skipping entry")
			return nil
		}

		seen[id] = true
		entries = append(entries, entry)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Failed to walk applications directory")
	}
	return entries
}

func (idx *Index) tryExec(bin string) bool {
	if filepath.IsAbs(bin) {
		info, err := os.Stat(bin)
		return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
	}
	_, err := idx.lookPath(bin)
	return err == nil
}

// Entries returns the current entry set, sorted by name
func (idx *Index) Entries() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]Entry(nil), idx.entries...)
}

// Lookup returns the entry with the given desktop-file ID
func (idx *Index) Lookup(id string) (Entry, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, ok := idx.byID[id]
	if !ok {
		return Entry{}, herrors.Newf(herrors.ErrCodeNotFound, "no desktop entry %q", id)
	}
	return e, nil
}
