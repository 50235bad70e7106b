package scheduler

import (
	"errors"
)

// ErrCanceled is the result of a Job that was canceled before it ran.
var ErrCanceled = errors.New("job canceled")
