package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports file changes under the watched paths to a callback, for
// the tracker process, which runs continuously (unlike the enforcement
// pipeline, which reads its config fresh on every invocation). It does not
// parse or reload any configuration itself; the onChange callback decides
// what a change means.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// NewWatcher starts watching paths (typically the profiles and registry
// YAML files' containing directory — fsnotify watches directories more
// reliably than individual files across editors that write-then-rename).
func NewWatcher(paths ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := fsw.Add(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return &Watcher{fsw: fsw}, nil
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run invokes onChange whenever a watched path reports a write, create, or
// rename event, until ctx is canceled. Errors from fsnotify itself are
// passed to onErr rather than stopping the loop — a transient watcher error
// must not kill the tracker's config reload path.
func (w *Watcher) Run(ctx context.Context, onChange func(path string), onErr func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				onChange(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if onErr != nil {
				onErr(err)
			}
		}
	}
}
