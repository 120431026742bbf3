// Package watcher provides debounced file system watching for the
// directories bb-auth needs to react to without a restart: provider
// manifest drop-ins (§4.4) and desktop-entry directories used by the
// actor resolver's desktop index (§4.6).
package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonyhab/bb-auth/internal/log"
	"github.com/fsnotify/fsnotify"
)

// Watcher debounces fsnotify events across one or more directories,
// emitting a single signal per burst of matching changes rather than one
// per underlying inotify event.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dirs      []string
	debounce  time.Duration
	relevant  func(fsnotify.Event) bool
	onChange  chan struct{}
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	Dirs     []string
	Debounce time.Duration
	// Relevant decides whether an fsnotify event should count toward the
	// debounced signal. A nil Relevant accepts every Write/Create/Remove/
	// Rename event.
	Relevant func(fsnotify.Event) bool
}

// defaultDebounce matches the teacher's own debounce window.
const defaultDebounce = 100 * time.Millisecond

// NewManifestWatcher watches dirs (the provider manifest search path,
// §4.4) for *.json drop-ins, triggering re-discovery.
func NewManifestWatcher(dirs []string) (*Watcher, error) {
	return New(Config{
		Dirs:     dirs,
		Debounce: defaultDebounce,
		Relevant: extensionRelevant(".json"),
	})
}

// NewDesktopEntryWatcher watches dirs (XDG application directories) for
// *.desktop changes, triggering an incremental desktop-index refresh
// instead of a full rescan per actor-resolver lookup.
func NewDesktopEntryWatcher(dirs []string) (*Watcher, error) {
	return New(Config{
		Dirs:     dirs,
		Debounce: defaultDebounce,
		Relevant: extensionRelevant(".desktop"),
	})
}

func extensionRelevant(ext string) func(fsnotify.Event) bool {
	return func(event fsnotify.Event) bool {
		if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
			return false
		}
		return strings.EqualFold(filepath.Ext(event.Name), ext)
	}
}

// New creates a Watcher over cfg's directories.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	log.Debug(log.CatWatcher, "creating watcher", "dirs", cfg.Dirs, "debounce", cfg.Debounce)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.ErrorErr(log.CatWatcher, "failed to create fsnotify watcher", err)
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		dirs:      cfg.Dirs,
		debounce:  cfg.Debounce,
		relevant:  cfg.Relevant,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching every configured directory. Returns a channel
// that receives a signal (debounced, coalesced, non-blocking) whenever a
// relevant change occurs. A directory that doesn't exist yet is logged
// and skipped rather than treated as fatal, matching manifest
// discovery's own "missing dir is not an error" stance (§4.4) — it is
// picked up on the next process restart once created.
func (w *Watcher) Start() (<-chan struct{}, error) {
	watched := 0
	for _, dir := range w.dirs {
		if err := w.fsWatcher.Add(dir); err != nil {
			log.Warn(log.CatWatcher, "directory not watchable, skipping", "dir", dir, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 {
		log.Warn(log.CatWatcher, "no directories watched", "configured", len(w.dirs))
	}

	log.Info(log.CatWatcher, "started watching", "dirs", w.dirs)
	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	log.Debug(log.CatWatcher, "stopping watcher")
	close(w.done)
	return w.fsWatcher.Close()
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if w.relevant != nil && !w.relevant(event) {
				continue
			}

			log.Debug(log.CatWatcher, "file event received", "file", event.Name, "op", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = true
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
				pending = true
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				log.Debug(log.CatWatcher, "debounce complete, signaling change")
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "file watcher error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
