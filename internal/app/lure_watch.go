package app

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// lureSubdirs are the lure-content directories named in §6's persisted
// state layout: ftp/ holds the FTP banner, mail/ the SMTP greeting,
// mysql/ the server-version string sent in the handshake.
var lureSubdirs = []string{"ftp", "mail", "mysql"}

// LureWatcher hot-reloads the cosmetic banner text every protocol
// listener's lure content draws from, so an operator can edit
// ftp/banner.txt (say) and have the next session see it immediately,
// without restarting the process. Grounded on the ambient codebase's
// HotReloadConfig/fsnotify.Watcher wiring, repurposed: that watcher
// reloaded detection thresholds and rebuilt detectors, a much riskier
// hot-swap than this one, since lure content never touches detection
// state, only what attackers are shown.
type LureWatcher struct {
	root string

	mu      sync.RWMutex
	content map[string]string

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLureWatcher builds a watcher rooted at root (the LURE_DIR config
// value); ftp/, mail/, and mysql/ are resolved relative to it.
func NewLureWatcher(root string) *LureWatcher {
	return &LureWatcher{root: root, content: make(map[string]string)}
}

// Start performs the initial load of every lure file present and begins
// watching each subdirectory for edits. Missing subdirectories are
// skipped rather than treated as an error: lure content is optional
// cosmetic dressing, not a required asset.
func (w *LureWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	w.stopCh = make(chan struct{})

	for _, sub := range lureSubdirs {
		dir := filepath.Join(w.root, sub)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		w.loadDir(sub, dir)
		if err := watcher.Add(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("lure watcher: failed to watch directory")
		}
	}

	go w.watchLoop()
	log.Info().Str("root", w.root).Msg("lure content watcher started")
	return nil
}

func (w *LureWatcher) loadDir(sub, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("lure watcher: failed to read directory")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.loadFile(sub, filepath.Join(dir, entry.Name()))
	}
}

func (w *LureWatcher) loadFile(sub, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("lure watcher: failed to read file")
		return
	}
	key := sub + "/" + filepath.Base(path)
	w.mu.Lock()
	w.content[key] = strings.TrimRight(string(data), "\r\n")
	w.mu.Unlock()
	log.Debug().Str("key", key).Msg("lure content (re)loaded")
}

func (w *LureWatcher) watchLoop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			sub := filepath.Base(filepath.Dir(event.Name))
			w.loadFile(sub, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("lure watcher: fsnotify error")
		}
	}
}

// Get returns the current content of the lure file at "<subdir>/<name>"
// (e.g. "ftp/banner.txt"), and whether it has been loaded at all.
func (w *LureWatcher) Get(key string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.content[key]
	return v, ok
}

// BannerFunc returns a closure suitable for a listener's SetBannerFunc
// hook: it reads the current content for key on every call, falling back
// to fallback when no lure file has been loaded for it.
func (w *LureWatcher) BannerFunc(key, fallback string) func() string {
	return func() string {
		if v, ok := w.Get(key); ok && v != "" {
			return v
		}
		return fallback
	}
}

// Stop closes the underlying fsnotify watcher. Idempotent.
func (w *LureWatcher) Stop() {
	w.stopOnce.Do(func() {
		if w.stopCh != nil {
			close(w.stopCh)
		}
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}
