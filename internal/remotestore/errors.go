package remotestore

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced through the sync engine callbacks. Matching
// pkg/model/errors.go's convention, these wrap the underlying transport
// status via fmt.Errorf("...: %w") rather than defining a bespoke error
// hierarchy.
var (
	// ErrTargetRejected is wrapped into RejectListen when the server
	// removes a target with a non-OK cause.
	ErrTargetRejected = errors.New("remotestore: target rejected by server")

	// ErrWriteRejected is wrapped into RejectFailedWrite on a permanent
	// write error.
	ErrWriteRejected = errors.New("remotestore: mutation batch permanently rejected")

	// ErrNotRunning is returned by RemoteStore methods called before
	// Start() or after Shutdown().
	ErrNotRunning = errors.New("remotestore: not running")
)

func targetRejectedError(cause Status) error {
	return fmt.Errorf("%w: %s", ErrTargetRejected, cause.String())
}

func writeRejectedError(cause Status) error {
	return fmt.Errorf("%w: %s", ErrWriteRejected, cause.String())
}

// assertf panics with a descriptive message. Per spec §7, an invariant
// violation is a programming error and must be fatal; Go's idiomatic analog
// of a fatal assertion in application code is a panic, recovered only at
// the worker's top level (see remote_store.go) so it surfaces as a crash
// with a stack trace instead of being silently swallowed.
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("remotestore: assertion failed: "+format, args...))
	}
}
