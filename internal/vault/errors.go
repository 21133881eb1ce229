package vault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/elys-network/alm/internal/fullmath"
)

// Error definitions for zero-tolerance error handling. Every failure aborts the whole
// call: no state is written and the environment is reverted.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrSlippageExceeded   = errors.New("slippage exceeded")
	ErrLocked             = errors.New("vault is locked")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrInvalidState       = errors.New("invalid vault state")
)

// overflowErr maps numeric failures from the math packages onto ErrArithmeticOverflow.
func overflowErr(op string, err error) error {
	if errors.Is(err, fullmath.ErrOverflow) || errors.Is(err, fullmath.ErrDivideByZero) {
		return fmt.Errorf("%s: %w: %w", op, ErrArithmeticOverflow, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// recoverOverflow turns a 256-bit overflow panic raised by sdkmath.Int into
// ErrArithmeticOverflow. Any other panic is re-raised.
func recoverOverflow(err *error) {
	r := recover()
	if r == nil {
		return
	}
	msg := fmt.Sprint(r)
	if strings.Contains(strings.ToLower(msg), "overflow") {
		*err = fmt.Errorf("%w: %s", ErrArithmeticOverflow, msg)
		return
	}
	panic(r)
}
