package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// GenerationWatcher reloads the engine whenever a rebuild publishes a new
// CURRENT pointer in the index directory.
type GenerationWatcher struct {
	watcher       *fsnotify.Watcher
	store         *GenerationStore
	engine        *Engine
	debounceDelay time.Duration
	logger        zerolog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	stopCh  chan struct{}
	stopped bool
	loaded  string
}

// NewGenerationWatcher starts watching store's directory. Reload failures are
// logged and the engine keeps serving its current generation.
func NewGenerationWatcher(store *GenerationStore, engine *Engine, logger zerolog.Logger) (*GenerationWatcher, error) {
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(store.Dir()); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", store.Dir(), err)
	}

	gw := &GenerationWatcher{
		watcher:       w,
		store:         store,
		engine:        engine,
		debounceDelay: 200 * time.Millisecond,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
	if gen := engine.Generation(); gen != nil {
		gw.loaded = gen.ID()
	}
	logger.Debug().Str("dir", store.Dir()).Msg("generation_watcher: watching index dir")

	go gw.loop()
	return gw, nil
}

func (gw *GenerationWatcher) loop() {
	for {
		select {
		case event, ok := <-gw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != CurrentFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			gw.schedule()

		case err, ok := <-gw.watcher.Errors:
			if !ok {
				return
			}
			gw.logger.Error().Err(err).Msg("generation_watcher: watcher error")

		case <-gw.stopCh:
			return
		}
	}
}

// schedule resets the debounce timer.
func (gw *GenerationWatcher) schedule() {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.stopped {
		return
	}
	if gw.timer != nil {
		gw.timer.Stop()
	}
	gw.timer = time.AfterFunc(gw.debounceDelay, gw.reload)
}

func (gw *GenerationWatcher) reload() {
	id, err := gw.store.CurrentID()
	if err != nil {
		gw.logger.Warn().Err(err).Msg("generation_watcher: read CURRENT failed")
		return
	}

	gw.mu.Lock()
	same := id == gw.loaded
	gw.mu.Unlock()
	if same {
		return
	}

	gen, err := gw.store.Load(id)
	if err != nil {
		gw.logger.Error().Err(err).Str("generation", id).Msg("generation_watcher: load failed, keeping current generation")
		return
	}
	if _, err := gw.engine.Swap(gen); err != nil {
		gw.logger.Error().Err(err).Str("generation", id).Msg("generation_watcher: swap refused")
		return
	}

	gw.mu.Lock()
	gw.loaded = id
	gw.mu.Unlock()
}

// SetDebounceDelay sets the debounce delay.
func (gw *GenerationWatcher) SetDebounceDelay(d time.Duration) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.debounceDelay = d
}

// Close stops the watcher.
func (gw *GenerationWatcher) Close() error {
	gw.mu.Lock()
	if gw.stopped {
		gw.mu.Unlock()
		return nil
	}
	gw.stopped = true
	if gw.timer != nil {
		gw.timer.Stop()
	}
	gw.mu.Unlock()

	close(gw.stopCh)
	return gw.watcher.Close()
}
