package store

import (
	"os"
	"sort"
	"sync"
	"time"
)

type fileState struct {
	modTime time.Time
	size    int64
}

// Watcher keeps track of store files and detects modifications between
// polls. Hosts poll Check between runs to decide whether configurations or
// mapping sets need to be reloaded.
type Watcher struct {
	mu    sync.Mutex
	files map[string]fileState
}

// NewWatcher builds a watcher tracking the store's files.
func NewWatcher(s *Store) *Watcher {
	watcher := &Watcher{}
	watcher.Update(s.ConfigsPath(), s.MappingsPath())
	return watcher
}

// Update rebuilds the tracked file list from the provided paths. Paths that
// do not exist yet are tracked with a zero state so their creation is
// reported as a change.
func (w *Watcher) Update(paths ...string) {
	states := make(map[string]fileState, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		state := fileState{}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			state = fileState{modTime: info.ModTime(), size: info.Size()}
		}
		states[path] = state
	}
	w.mu.Lock()
	w.files = states
	w.mu.Unlock()
}

// Check reports the files that changed since the last snapshot and refreshes
// the snapshot for the changed entries.
func (w *Watcher) Check() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0)
	for path, state := range w.files {
		info, err := os.Stat(path)
		if err != nil {
			if !state.modTime.IsZero() || state.size != 0 {
				changed = append(changed, path)
				w.files[path] = fileState{}
			}
			continue
		}
		if info.IsDir() {
			continue
		}
		if info.ModTime().After(state.modTime) || info.Size() != state.size {
			changed = append(changed, path)
			w.files[path] = fileState{modTime: info.ModTime(), size: info.Size()}
		}
	}
	sort.Strings(changed)
	return changed
}
