package agent

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// WorkspaceWatcher records files created or modified under a directory
// tree while an agent invocation runs. It supplements the event stream:
// tools that write files without reporting them still show up here.
type WorkspaceWatcher struct {
	watcher *fsnotify.Watcher
	root    string

	mu      sync.Mutex
	touched map[string]struct{}
	done    chan struct{}
}

// ignoredDirs are never watched; they churn constantly without carrying
// agent work.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".duet":        true,
}

// NewWorkspaceWatcher starts watching the tree rooted at dir.
func NewWorkspaceWatcher(dir string) (*WorkspaceWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &WorkspaceWatcher{
		watcher: fsw,
		root:    dir,
		touched: make(map[string]struct{}),
		done:    make(chan struct{}),
	}

	if err := w.addRecursive(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *WorkspaceWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if ignoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *WorkspaceWatcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are ignored; the stream-reported file list
			// remains authoritative.
		}
	}
}

func (w *WorkspaceWatcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	info, err := os.Stat(ev.Name)
	if err == nil && info.IsDir() {
		// New directories are added so writes inside them are seen.
		if ev.Op&fsnotify.Create != 0 && !ignoredDirs[filepath.Base(ev.Name)] {
			_ = w.watcher.Add(ev.Name)
		}
		return
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	if strings.HasPrefix(rel, ".") && strings.Contains(rel, string(filepath.Separator)) {
		// Hidden trees like .git that appeared after startup.
		return
	}

	w.mu.Lock()
	w.touched[rel] = struct{}{}
	w.mu.Unlock()
}

// Touched returns the sorted relative paths seen so far.
func (w *WorkspaceWatcher) Touched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.touched) == 0 {
		return nil
	}
	out := make([]string, 0, len(w.touched))
	for f := range w.touched {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Close stops watching and waits for the event loop to drain.
func (w *WorkspaceWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
