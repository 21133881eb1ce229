/*

Package fullmath provides exact multiply-then-divide over 256-bit unsigned amounts.

Every share, inventory and price computation in the vault multiplies two 256-bit values
before dividing; the intermediate product is carried at 512 bits so nothing is lost or
silently wrapped.

*/

package fullmath

import (
	"errors"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"
)

// Error definitions for zero-tolerance error handling
var (
	ErrDivideByZero = errors.New("division by zero")
	ErrOverflow     = errors.New("result exceeds 256 bits")
	ErrNegative     = errors.New("negative operand")
	ErrNilOperand   = errors.New("nil operand")
)

// Q96 is 2^96, the fixed-point scale of sqrt prices.
var Q96 = sdkmath.NewIntFromBigInt(new(uint256.Int).Lsh(uint256.NewInt(1), 96).ToBig())

// ToU256 converts a non-negative Int into a uint256.
func ToU256(x sdkmath.Int) (*uint256.Int, error) {
	if x.IsNil() {
		return nil, ErrNilOperand
	}
	if x.IsNegative() {
		return nil, ErrNegative
	}
	z, overflow := uint256.FromBig(x.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// FromU256 converts a uint256 back into an Int.
func FromU256(z *uint256.Int) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(z.ToBig())
}

func operands(a, b, d sdkmath.Int) (x, y, z *uint256.Int, err error) {
	if x, err = ToU256(a); err != nil {
		return
	}
	if y, err = ToU256(b); err != nil {
		return
	}
	if z, err = ToU256(d); err != nil {
		return
	}
	if z.IsZero() {
		err = ErrDivideByZero
	}
	return
}

// MulDiv returns floor(a*b/d) using a 512-bit intermediate product.
func MulDiv(a, b, d sdkmath.Int) (sdkmath.Int, error) {
	x, y, z, err := operands(a, b, d)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	res, overflow := new(uint256.Int).MulDivOverflow(x, y, z)
	if overflow {
		return sdkmath.ZeroInt(), ErrOverflow
	}
	return FromU256(res), nil
}

// MulDivRoundingUp returns ceil(a*b/d) using a 512-bit intermediate product.
func MulDivRoundingUp(a, b, d sdkmath.Int) (sdkmath.Int, error) {
	x, y, z, err := operands(a, b, d)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	res, overflow := new(uint256.Int).MulDivOverflow(x, y, z)
	if overflow {
		return sdkmath.ZeroInt(), ErrOverflow
	}
	if !new(uint256.Int).MulMod(x, y, z).IsZero() {
		if res.Eq(maxU256) {
			return sdkmath.ZeroInt(), ErrOverflow
		}
		res.AddUint64(res, 1)
	}
	return FromU256(res), nil
}

// DivRoundingUp returns ceil(a/d).
func DivRoundingUp(a, d sdkmath.Int) (sdkmath.Int, error) {
	return MulDivRoundingUp(a, sdkmath.OneInt(), d)
}

// Add returns a+b, failing when the sum leaves the 256-bit domain.
func Add(a, b sdkmath.Int) (sdkmath.Int, error) {
	x, err := ToU256(a)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	y, err := ToU256(b)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return sdkmath.ZeroInt(), ErrOverflow
	}
	return FromU256(sum), nil
}

// Mul returns a*b, failing when the product leaves the 256-bit domain.
func Mul(a, b sdkmath.Int) (sdkmath.Int, error) {
	x, err := ToU256(a)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	y, err := ToU256(b)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	prod, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return sdkmath.ZeroInt(), ErrOverflow
	}
	return FromU256(prod), nil
}

// SubFloor returns max(a-b, 0).
func SubFloor(a, b sdkmath.Int) sdkmath.Int {
	if a.LTE(b) {
		return sdkmath.ZeroInt()
	}
	return a.Sub(b)
}

var maxU256 = new(uint256.Int).SetAllOne()
