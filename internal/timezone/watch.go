package timezone

import (
	"errors"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Reload re-reads the overlay file and swaps in the new mapping.
// On error the current mapping stays in place.
func (t *Table) Reload() error {
	data, err := t.load()
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.data = data
	t.mu.Unlock()
	return nil
}

// Watch reloads the table whenever the overlay file is written or recreated.
// onReload, if non-nil, is called after every attempt with the resulting
// version or the error. Call the returned stop function to clean up.
func (t *Table) Watch(onReload func(version string, err error)) (stop func(), err error) {
	if t.overlayPath == "" {
		return nil, errors.New("zone table watcher: no overlay file configured")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("zone table watcher: %w", err)
	}
	if err := w.Add(t.overlayPath); err != nil {
		w.Close()
		return nil, fmt.Errorf("zone table watcher add %s: %w", t.overlayPath, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				err := t.Reload()
				if onReload != nil {
					onReload(t.Version(), err)
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				if onReload != nil {
					onReload(t.Version(), werr)
				}
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}
