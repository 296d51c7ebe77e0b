package interfaces

import "time"

// Clock abstracts wall-clock time so record timestamps and cache TTLs are
// testable.
type Clock interface {
	Now() time.Time
}
