// Package watch monitors session roots for log changes and reports
// them per root, debounced so a burst of writes collapses into one
// notification.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Zuo-Peng/ai-session-hub/internal/log"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher follows every directory under the configured roots. New
// subdirectories are picked up as they appear, which matters for the
// date-sharded codex layout.
type Watcher struct {
	fsw      *fsnotify.Watcher
	roots    []string
	debounce time.Duration
	onChange func(root string)
	fired    chan string
	done     chan struct{}
}

func New(roots []string, debounce time.Duration, onChange func(root string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fsw:      fsw,
		roots:    roots,
		debounce: debounce,
		onChange: onChange,
		fired:    make(chan string, 16),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the roots and begins delivering notifications.
// Missing roots are skipped; an agent the user never ran is normal.
func (w *Watcher) Start() error {
	watching := 0
	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			log.Warn(log.CatWatch, "root not watchable", "root", root, "err", err.Error())
			continue
		}
		watching++
	}
	if watching == 0 {
		return fmt.Errorf("no watchable session roots")
	}
	go w.loop()
	return nil
}

func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			log.Debug(log.CatWatch, "watch add failed", "dir", path, "err", err.Error())
		}
		return nil
	})
}

func (w *Watcher) loop() {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev, timers)
		case root := <-w.fired:
			if t, ok := timers[root]; ok {
				t.Stop()
				delete(timers, root)
			}
			w.onChange(root)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatch, "watch error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event, timers map[string]*time.Timer) {
	// a new directory may receive session files immediately; register
	// it and anything already created beneath it before any land
	if ev.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				log.Debug(log.CatWatch, "watch add failed", "dir", ev.Name, "err", err.Error())
			}
			return
		}
	}

	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	if !strings.HasSuffix(ev.Name, ".jsonl") {
		return
	}
	root := w.rootFor(ev.Name)
	if root == "" {
		return
	}

	// per-root debounce: restart the window on every event; firing
	// routes back through the loop so the timer map stays single-owner
	if t, ok := timers[root]; ok {
		t.Reset(w.debounce)
		return
	}
	timers[root] = time.AfterFunc(w.debounce, func() {
		select {
		case w.fired <- root:
		case <-w.done:
		}
	})
}

func (w *Watcher) rootFor(path string) string {
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return root
		}
	}
	return ""
}
