package worker

import (
	"context"

	"github.com/raoulx24/snapmirror/internal/config"
	"github.com/raoulx24/snapmirror/internal/mailbox"
)

// Start takes triggers from mb and runs one cycle per trigger until ctx is
// done. Triggers that arrive during a cycle coalesce into one follow-up
// run. Under the exit policy the first failed cycle ends the loop with its
// error; under continue the loop waits for the next trigger. A cycle
// interrupted by shutdown is not a failure.
func (w *Worker) Start(ctx context.Context, mb *mailbox.Mailbox[Job]) error {
	w.log.Debug("starting worker")
	for {
		job, err := mb.Take(ctx)
		if err != nil {
			w.log.Debug("worker stopped")
			return nil
		}
		w.log.Debug("trigger from %s at %s", job.Reason, job.At.Format("2006-01-02 15:04:05"))

		if _, err := w.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				w.log.Warn("cycle interrupted by shutdown")
				return nil
			}
			if w.Settings().OnFailure != config.FailContinue {
				return err
			}
			w.log.Warn("continuing with the next scheduled run")
		}
	}
}
