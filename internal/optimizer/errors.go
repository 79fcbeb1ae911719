package optimizer

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptySearchSpace is returned when a run starts with no dimensions
// declared.
var ErrEmptySearchSpace = errors.New("no search dimensions declared")

// ErrNoValidParameters is returned when the constraints reject every
// assignment in the grid. The run fails before any trial executes.
var ErrNoValidParameters = errors.New("no valid parameter combination satisfies the constraints")

// TimeoutError reports a run cut short by its deadline. Every trial that
// completed before the deadline was already appended to the streaming
// destination, so the error carries diagnostics, not the data.
type TimeoutError struct {
	Timeout   time.Duration
	Completed int
	Total     int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("optimization timed out after %v: completed %d of %d trials", e.Timeout, e.Completed, e.Total)
}
