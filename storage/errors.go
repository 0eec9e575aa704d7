package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a missing project, column, task, application or
	// notification. Callers match with errors.Is.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports a state clash: duplicate application,
	// self-application, already-a-member, or exhausted write contention.
	ErrConflict = errors.New("conflict")

	// ErrForbidden reports an authenticated caller acting on a resource it
	// does not own.
	ErrForbidden = errors.New("forbidden")
)

// ErrStaleRevision is a conflict raised when a mutation carries an expected
// revision that no longer matches the stored document.
var ErrStaleRevision = fmt.Errorf("stale revision: %w", ErrConflict)
