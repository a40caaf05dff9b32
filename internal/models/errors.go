package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned for operations on a nonexistent movement, register,
// account, or denomination unit.
var ErrNotFound = errors.New("not found")

// InvalidMovementError rejects a movement descriptor or patch before any
// mutation. Rule names the violated check.
type InvalidMovementError struct {
	Rule string
}

func (e *InvalidMovementError) Error() string {
	return fmt.Sprintf("invalid movement: %s", e.Rule)
}

// BreakdownMismatchError rejects a breakdown whose net value does not equal
// the movement amount under strict mode.
type BreakdownMismatchError struct {
	Expected decimal.Decimal
	Got      decimal.Decimal
}

func (e *BreakdownMismatchError) Error() string {
	return fmt.Sprintf("breakdown mismatch: breakdown sums to %s, movement amount is %s",
		e.Got.StringFixed(2), e.Expected.StringFixed(2))
}
