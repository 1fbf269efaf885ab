package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// QuotaError reports an exhausted usage window for an API key. Windows are
// checked hour first, then day, then month; the first exhausted one wins.
type QuotaError struct {
	Window string // "hour", "day", or "month"
	Limit  int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded (limit %d)", e.Window, e.Limit)
}
