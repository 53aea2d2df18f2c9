package watcher

import (
	"os"
	"time"
)

func stat(path string) (time.Time, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, 0, err
	}
	return info.ModTime(), info.Size(), nil
}

// detect posts a Change if the file differs from the last one seen. A
// missing file is ignored: editors briefly remove it while saving.
func (w *Watcher) detect() {
	w.mu.RLock()
	path := w.path
	lastMod := w.lastMod
	lastSize := w.lastSize
	w.mu.RUnlock()

	mod, size, err := stat(path)
	if err != nil {
		w.log.Debug("config file %s: %v", path, err)
		return
	}
	if mod.Equal(lastMod) && size == lastSize {
		return
	}

	w.mu.Lock()
	w.lastMod = mod
	w.lastSize = size
	w.mu.Unlock()

	w.log.Debug("config file %s changed", path)
	w.mb.Put(Change{Path: path, At: time.Now()})
}
