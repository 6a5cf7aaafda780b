package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Reloader watches the settings file and swaps the Store's configuration
// when it changes. It watches the parent directory since editors replace
// files rather than writing them in place.
type Reloader struct {
	path     string
	store    *Store
	watcher  *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	running  bool
	debounce time.Duration
}

// NewReloader creates a Reloader for the settings file at path.
func NewReloader(path string, store *Store) (*Reloader, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Reloader{
		path:     path,
		store:    store,
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
		debounce: 250 * time.Millisecond,
	}, nil
}

// Start begins watching for settings changes.
func (r *Reloader) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	if err := r.watcher.Add(filepath.Dir(r.path)); err != nil {
		log.Warn().Err(err).Str("path", r.path).Msg("Failed to watch settings directory")
		// Continue; reload just stays inactive
	}

	go r.watchLoop()
	return nil
}

// Stop stops the watcher.
func (r *Reloader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	r.running = false
	r.cancel()
	return r.watcher.Close()
}

func (r *Reloader) watchLoop() {
	var (
		debounceTimer *time.Timer
		pending       bool
	)

	fire := func() {
		if !pending {
			return
		}
		pending = false
		r.reload()
	}

	for {
		var timerCh <-chan time.Time
		if debounceTimer != nil {
			timerCh = debounceTimer.C
		}

		select {
		case <-r.ctx.Done():
			return

		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(r.debounce)

		case <-timerCh:
			debounceTimer = nil
			fire()

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Settings watcher error")
		}
	}
}

func (r *Reloader) reload() {
	cfg, err := Load(r.path)
	if err != nil {
		log.Warn().Err(err).Str("path", r.path).Msg("Settings reload failed, keeping previous configuration")
		return
	}
	r.store.Replace(cfg)
	log.Info().Str("path", r.path).Msg("Settings reloaded")
}
