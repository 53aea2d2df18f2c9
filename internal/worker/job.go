package worker

import (
	"time"
)

// Job is one trigger delivered to the worker through the mailbox.
type Job struct {
	// At is when the trigger fired.
	At time.Time
	// Reason says who fired it, for the log: "schedule", "signal", ...
	Reason string
}
