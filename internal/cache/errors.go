package cache

import "errors"

var (
	// ErrNotFound is returned by Get when no entry exists for (kind, key).
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedSchema is returned when a stored entry carries a schema
	// version newer than this reader understands. The bytes are never
	// reinterpreted under the old layout.
	ErrUnsupportedSchema = errors.New("unsupported schema version")
)
