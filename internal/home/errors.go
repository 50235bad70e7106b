package home

import (
	"errors"
	"fmt"
	"github.com/clambin/home-controller/internal/notifier"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrInvalidMode is returned when a mode name is not recognised.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrInvalidProfile is returned when a morning profile is not "work" or "day_off".
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrDisabled is returned by operations that are ignored while the controller is disabled.
	ErrDisabled = errors.New("controller disabled")
)

// An OperationError is returned by a Controller operation that failed. It records the state of the home at the time
// of the failure.
type OperationError struct {
	Op       string
	Args     []any
	Mode     Mode
	Presence map[string]string
	Err      error
}

func (e *OperationError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("op", e.Op),
		slog.Any("args", e.Args),
		slog.String("mode", e.Mode.String()),
		slog.Any("presence", e.Presence),
		slog.String("err", e.Err.Error()),
	)
}

func (e *OperationError) details() string {
	var b strings.Builder
	b.WriteString("Operation: " + e.Op)
	if len(e.Args) > 0 {
		b.WriteString(fmt.Sprintf("\nArguments: %v", e.Args))
	}
	b.WriteString("\nError: " + e.Err.Error())
	b.WriteString("\nMode: " + e.Mode.String())
	for _, tracker := range slices.Sorted(maps.Keys(e.Presence)) {
		b.WriteString("\n" + tracker + ": " + e.Presence[tracker])
	}
	return b.String()
}

// guard runs a public operation. On failure, it sends an alert and returns the error to the caller.
// Must be called with c.lock held.
func (c *Controller) guard(op string, args []any, f func() error) error {
	err := protect(f)
	if err == nil {
		return nil
	}
	if rejected(err) || errors.Is(err, ErrDisabled) {
		c.logger.Error("operation rejected", "op", op, "args", args, "err", err)
		return err
	}
	opErr := c.operationError(op, args, err)
	c.alert(opErr)
	return opErr
}

// trigger runs a scheduled or event-driven entry point. On failure, it sends an alert and drops the error, so one
// failing job does not stop the others. Must be called with c.lock held.
func (c *Controller) trigger(op string, f func() error) {
	err := protect(f)
	switch {
	case err == nil, errors.Is(err, ErrDisabled):
	case rejected(err):
		c.logger.Error("operation rejected", "op", op, "err", err)
	default:
		c.alert(c.operationError(op, nil, err))
	}
}

func rejected(err error) bool {
	return errors.Is(err, ErrInvalidMode) || errors.Is(err, ErrInvalidProfile)
}

func (c *Controller) operationError(op string, args []any, err error) *OperationError {
	return &OperationError{
		Op:       op,
		Args:     args,
		Mode:     c.mode(),
		Presence: c.presence(),
		Err:      err,
	}
}

func (c *Controller) alert(err *OperationError) {
	c.logger.Error("operation failed", "err", err)
	c.metrics.failed(err.Op)
	c.notifier.Notify(notifier.Notification{
		ID:      notifier.ErrorID(),
		Title:   "Home controller error in " + err.Op,
		Message: err.details(),
	})
}

func protect(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f()
}
