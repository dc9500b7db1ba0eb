package sanitizer

import (
	"errors"
	"fmt"
)

// ErrBudgetExceeded is wrapped by the IncompleteError returned when the
// worklist did not converge within the iteration budget.
var ErrBudgetExceeded = errors.New("iteration budget exceeded")

// IncompleteError reports that a function's analysis stopped before reaching
// a fixed point. No partial result accompanies it.
type IncompleteError struct {
	Func       string
	Iterations int
	Budget     int
	// Err is ErrBudgetExceeded or the context error that stopped the solver.
	Err error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("analysis of %s incomplete after %d of %d iterations: %v", e.Func, e.Iterations, e.Budget, e.Err)
}

func (e *IncompleteError) Unwrap() error { return e.Err }
