// Package repository persists tables, sales and reservations to MySQL.
// It is a write-behind journal: the in-memory aggregates are the source
// of truth while the process runs, and the journal is read back once at
// boot to restore them.
package repository

import (
	"errors"
	"fmt"
)

// ErrCorruptRow is returned when a stored row cannot be mapped back to a
// model value, for example an unknown status string.
var ErrCorruptRow = errors.New("corrupt row")

// wrap prefixes err with the failing operation.  A nil err stays nil.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("repository: %s: %w", op, err)
}
