package rules

import (
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// SeedWatcher reloads the catalog provider when the YAML seed file changes,
// so rule edits take effect without a server restart. Rules reloaded this
// way carry whatever embeddings the seed file has; matching skips rules
// without one until the next offline embed pass.
type SeedWatcher struct {
	path     string
	provider *Provider
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewSeedWatcher creates a watcher for the given seed file.
func NewSeedWatcher(path string, provider *Provider) *SeedWatcher {
	return &SeedWatcher{
		path:     path,
		provider: provider,
		done:     make(chan struct{}),
	}
}

// Start begins watching. The parent directory is watched rather than the
// file itself because editors typically replace files by rename, which
// drops a direct file watch. Call Stop to clean up.
func (sw *SeedWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(sw.path)); err != nil {
		_ = w.Close()
		return err
	}
	sw.watcher = w

	go sw.loop()
	log.Printf("rules: watching %s for catalog changes", sw.path)
	return nil
}

// Stop shuts down the watcher.
func (sw *SeedWatcher) Stop() {
	if sw.watcher != nil {
		_ = sw.watcher.Close()
	}
	<-sw.done
}

func (sw *SeedWatcher) loop() {
	defer close(sw.done)
	for {
		select {
		case evt, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !sw.matches(evt.Name) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			sw.reload()
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("rules: watcher error: %v", err)
		}
	}
}

func (sw *SeedWatcher) matches(name string) bool {
	return strings.EqualFold(filepath.Clean(name), filepath.Clean(sw.path))
}

// reload parses and validates the seed, keeping the current snapshot when
// the new file is broken.
func (sw *SeedWatcher) reload() {
	cat, err := LoadSeedFile(sw.path)
	if err != nil {
		log.Printf("rules: reload %s: %v (keeping current catalog)", sw.path, err)
		return
	}
	sw.provider.Swap(cat)
	nRules, nCategories, nInteractions := cat.Counts()
	log.Printf("rules: reloaded catalog (%d rules, %d categories, %d interactions)",
		nRules, nCategories, nInteractions)
}
