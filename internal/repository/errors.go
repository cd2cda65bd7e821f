// Package repository persists sales and their tickets.  Sale transitions
// are conditional updates guarded on the current status; a guard that
// matches no row is reported as ErrStaleUpdate so callers can re-read the
// sale and decide what happened.
package repository

import "errors"

// ErrStaleUpdate is returned when a guarded update matched no row: the
// sale no longer exists in the expected state.  Callers should reload the
// sale rather than retry blindly.
var ErrStaleUpdate = errors.New("stale update")
