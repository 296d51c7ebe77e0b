package common

import (
	"time"

	"github.com/adhil-payingalil/resumatch/internal/interfaces"
)

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

var _ interfaces.Clock = SystemClock{}
