package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrClosed is returned when a write is submitted after Close.
var ErrClosed = errors.New("store: engine is closed")

// InitError is a fatal failure to open the database or apply the schema.
// Callers must not proceed with a partially initialized engine.
type InitError struct {
	Path string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("store: initialize %s: %v", e.Path, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// BusyError is returned once the busy-retry budget is exhausted.
// Transient lock contention is retried internally and never reaches the
// caller before that point.
type BusyError struct {
	Attempts int
	Err      error
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("store: database busy after %d attempts: %v", e.Attempts, e.Err)
}

func (e *BusyError) Unwrap() error { return e.Err }

// isBusy reports whether err is a transient SQLite lock-contention error.
// Only these are retried; everything else propagates immediately.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
