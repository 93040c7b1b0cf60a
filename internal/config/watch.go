package config

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/vx-daniel/barf/internal/event"
)

// Watcher watches a project's config files and issuesDir for external
// edits and republishes them on the event bus, so the status server and
// orchestrator notice a human editing an issue file, or a config value
// changing, without needing to poll. Grounded on go-opencode's
// internal/vcs branch watcher (the same fsnotify-on-a-directory
// idiom), generalized from watching .git/HEAD to watching config files
// and issue markdown. Events are not debounced: every qualifying
// write, create or rename publishes one event.
type Watcher struct {
	watcher   *fsnotify.Watcher
	directory string
	issuesDir string

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher builds a Watcher for directory's config files and
// issuesDir. Call Start to begin watching; Stop to tear down.
func NewWatcher(directory, issuesDir string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	globalDir := GetPaths().Config
	for _, dir := range []string{globalDir, filepath.Join(directory, ".barf"), issuesDir} {
		if dir == "" {
			continue
		}
		if err := w.Add(dir); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("config: watch target unavailable, skipping")
		}
	}

	return &Watcher{
		watcher:   w,
		directory: directory,
		issuesDir: issuesDir,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins watching in the background. Safe to call once; repeat
// calls are no-ops.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

// Stop tears down the underlying fsnotify watcher and waits for the
// background goroutine to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config: watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	switch {
	case isConfigFile(ev.Name):
		event.Publish(event.Event{
			Type: event.ConfigChanged,
			Data: event.ConfigChangedData{Path: ev.Name},
		})
	case w.issuesDir != "" && strings.HasSuffix(ev.Name, ".md") && filepath.Dir(ev.Name) == w.issuesDir:
		id := strings.TrimSuffix(filepath.Base(ev.Name), ".md")
		event.Publish(event.Event{
			Type: event.IssueExternalEdit,
			Data: event.IssueExternalEditData{IssueID: id},
		})
	}
}

func isConfigFile(path string) bool {
	base := filepath.Base(path)
	return base == "barf.json" || base == "barf.jsonc" || base == "config.json" || base == "config.jsonc"
}
