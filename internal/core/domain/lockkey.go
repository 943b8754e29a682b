package domain

import (
	"fmt"
	"time"
)

const lockKeyNamespace = "lock"

// LockKey identifies a reservable resource span in the lock store.
// Grammar: lock:{category}:{resourceID}:{start}[:{end}].
type LockKey string

// NewLockKey builds the lock key for a resource over a date span. Dates are
// rendered as calendar days; a zero end date produces the single-day form.
func NewLockKey(category, resourceID string, start, end time.Time) LockKey {
	s := start.Format(time.DateOnly)
	if end.IsZero() || end.Equal(start) {
		return LockKey(fmt.Sprintf("%s:%s:%s:%s", lockKeyNamespace, category, resourceID, s))
	}
	return LockKey(fmt.Sprintf("%s:%s:%s:%s:%s", lockKeyNamespace, category, resourceID, s, end.Format(time.DateOnly)))
}

func (k LockKey) String() string {
	return string(k)
}
