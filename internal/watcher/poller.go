package watcher

import (
	"context"
	"time"
)

// StartPolling checks the config file once right away, then every poll
// interval, so an edit made between New and the first tick is not lost.
func (w *Watcher) StartPolling(ctx context.Context) {
	w.mu.RLock()
	interval := w.interval
	path := w.path
	w.mu.RUnlock()

	w.log.Debug("polling %s every %s", path, interval)
	w.detect()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.detect()
		}
	}
}
