// Package errors defines the error kinds shared by snapmirror components and
// the process exit codes they map to.
//
// Kinds are attached with cockroachdb/errors marks, so they survive any
// amount of wrapping and are checked with errors.Is:
//
//	if errors.Is(err, snaperrors.ErrMirrorFailed) {
//	    // the external mirror tool returned non-zero or could not start
//	}
//
// # Exit Codes
//
//   - ExitSuccess (0): clean shutdown or successful one-shot cycle
//   - ExitConfig (1): configuration rejected before scheduling
//   - ExitCycle (2): a cycle failed under the "exit" failure policy
//   - ExitLocked (3): another process holds the destination lock
package errors
