package lexicon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/observability"
)

// Watcher reloads the lexicon when its source files change. It never mutates
// a live Store: each successful reload produces a new Store handed to the owner.
type Watcher struct {
	sources  []string
	files    map[string]struct{} // explicit file sources
	opts     []LoadOption
	debounce time.Duration
	logger   *observability.Logger
	fw       *fsnotify.Watcher
}

// NewWatcher watches the given lexicon sources (files or directories).
func NewWatcher(sources []string, logger *observability.Logger, debounce time.Duration, opts ...LoadOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	w := &Watcher{
		sources:  sources,
		files:    make(map[string]struct{}),
		opts:     opts,
		debounce: debounce,
		logger:   logger.WithComponent("lexicon_watcher"),
		fw:       fw,
	}

	dirs := make(map[string]struct{})
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("stat %s: %w", src, err)
		}
		dir := src
		if !info.IsDir() {
			w.files[filepath.Clean(src)] = struct{}{}
			dir = filepath.Dir(src)
		}
		dirs[dir] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	return w, nil
}

// Run blocks until ctx is done, calling onReload with each successfully
// reloaded store. Invalid datasets are logged and the current store is kept.
func (w *Watcher) Run(ctx context.Context, onReload func(*Store)) error {
	defer w.fw.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("lexicon source changed")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("lexicon watcher error")

		case <-fire:
			fire = nil
			store, err := Load(w.sources, w.opts...)
			if err != nil {
				w.logger.Error().Err(err).Msg("lexicon reload rejected; keeping current store")
				continue
			}
			st := store.Stats()
			w.logger.Info().
				Str("version", st.Version).
				Int("active_dialects", st.ActiveDialects).
				Msg("lexicon reloaded")
			onReload(store)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	if _, ok := w.files[name]; ok {
		return true
	}
	if !strings.HasSuffix(name, ".json") {
		return false
	}
	// Files next to an explicit file source are ignored unless their directory is itself a source.
	for _, src := range w.sources {
		if _, isFile := w.files[filepath.Clean(src)]; isFile {
			continue
		}
		if filepath.Dir(name) == filepath.Clean(src) {
			return true
		}
	}
	return false
}
