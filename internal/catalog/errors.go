package catalog

import (
	"errors"
	"fmt"
)

// ErrConflict reports a concurrent reconciliation of the same entity type.
// The whole snapshot was rolled back; the caller may retry.
var ErrConflict = errors.New("catalog: concurrent reconciliation in progress")

// ValidationError rejects a snapshot before any mutation happens.
type ValidationError struct {
	Entity EntityType
	ID     int64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog: invalid %s snapshot (id=%d): %s", e.Entity, e.ID, e.Reason)
}
