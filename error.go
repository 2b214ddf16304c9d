package match

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParam    = errors.New("the param is invalid")
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", ErrInvalidParam)
	ErrInvalidPrice    = fmt.Errorf("%w: limit price must be positive", ErrInvalidParam)
	ErrInvalidSide     = fmt.Errorf("%w: unknown side", ErrInvalidParam)
	ErrOrderNotFound   = errors.New("order not found")
	ErrTimeout         = errors.New("timeout")
	ErrShutdown        = errors.New("engine is shutting down")
	ErrHalted          = errors.New("engine halted after invariant violation")
)

// InvariantViolation signals a defect in the book itself. It is raised with panic
// and must never be recovered into normal operation.
type InvariantViolation struct {
	Op     string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation after %s: %s", e.Op, e.Detail)
}
