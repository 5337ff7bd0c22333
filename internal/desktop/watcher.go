package desktop

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/hopper/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watcher triggers a callback when desktop files change on disk. Bursts of
// events, such as a package install, collapse into one callback once the
// directories have been quiet for the debounce interval.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches every existing directory in dirs, recursively
func NewWatcher(dirs []string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	w := &Watcher{
		watcher:  fw,
		debounce: debounce,
		onChange: onChange,
	}
	for _, dir := range dirs {
		w.addTree(dir)
	}
	return w, nil
}

func (w *Watcher) addTree(root string) {
	log := logger.WithComponent("desktop-watcher")

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			log.Debug().Err(err).Str("dir", path).Msg("Failed to watch directory")
		}
		return nil
	})
}

// Run delivers change notifications until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	log := logger.WithComponent("desktop-watcher")
	defer w.stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addTree(event.Name)
					w.schedule()
					continue
				}
			}
			if strings.HasSuffix(event.Name, desktopExt) {
				log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Desktop file changed")
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Watcher error")
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	_ = w.watcher.Close()
}

// Close stops watching without waiting for Run to return
func (w *Watcher) Close() error {
	w.stop()
	return nil
}
