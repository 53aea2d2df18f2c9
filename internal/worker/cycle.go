package worker

import (
	"time"

	"github.com/raoulx24/snapmirror/internal/snapshot"
)

// Cycle is the outcome of one RunCycle call.
type Cycle struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	// Snapshot is nil when the snapshot root could not be created.
	Snapshot *snapshot.Snapshot
	// Removed lists the snapshot paths pruned after a successful build.
	Removed []string
	Err     error
}

// OK reports whether the cycle completed, pruning included.
func (c Cycle) OK() bool {
	return c.Err == nil
}
