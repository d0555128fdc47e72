// Package strata implements a single-writer, append-only time-series
// storage engine: period-aligned archive shards, a sparse in-file index,
// and a catalog tying shards to a schema.
//
// Recoverable cases (a corrupt catalog) are handled locally by Load, which
// falls back to the .old backup and then to rebuild. Everything else
// surfaces to the caller: there is no retry logic in the write path, so a
// partially persisted batch is the caller's responsibility to reconcile by
// consulting the next successful query result.
package strata

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by database operations.
var (
	// ErrDatabaseNotFound is returned when Load cannot find db.strdr.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrDatabaseExists is returned when New targets a directory that already exists.
	ErrDatabaseExists = errors.New("database already exists")

	// ErrDatabaseCorrupt is returned when the catalog cannot be parsed and no
	// recovery path (backup, rebuild) succeeded.
	ErrDatabaseCorrupt = errors.New("database catalog is corrupt")

	// ErrArchiveNotFound is returned when an archive's .strdridx file is missing.
	ErrArchiveNotFound = errors.New("archive not found")

	// ErrSequenceViolation is returned when an appended record's timestamp is
	// earlier than the shard's lastEntryTimestamp.
	ErrSequenceViolation = errors.New("record timestamp precedes last written record")

	// ErrKeyAlreadyExists is returned when a column name is already registered.
	ErrKeyAlreadyExists = errors.New("column already exists")

	// ErrInvalidValue is returned when a field value does not fit its column's physical type.
	ErrInvalidValue = errors.New("value does not fit column type")

	// ErrEmptyPayload is returned when Add is called with an empty field map.
	ErrEmptyPayload = errors.New("field map is empty")

	// ErrClosed is returned when operating on a closed Session.
	ErrClosed = errors.New("session is closed")

	// ErrLocked is returned when another session already holds the
	// database directory's advisory lock.
	ErrLocked = errors.New("database directory is locked by another session")

	// ErrCorrupt is the sentinel a CorruptError wraps, so callers can match
	// with errors.Is(err, ErrCorrupt) without caring about the offset.
	ErrCorrupt = errors.New("corrupt")
)

// CorruptError reports a binary decode failure together with the byte
// offset at which it occurred (the "Corrupt(offset)" error kind of §7).
type CorruptError struct {
	Offset int64
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt data at offset %d: %s", e.Offset, e.Reason)
}

func (e *CorruptError) Unwrap() error { return ErrCorrupt }

func corruptf(offset int64, format string, args ...any) error {
	return &CorruptError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
