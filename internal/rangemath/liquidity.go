package rangemath

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/fullmath"
)

var ErrEmptyRange = errors.New("range has no width")

func ordered(sqrtA, sqrtB sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if sqrtA.GT(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.Equal(sqrtB) {
		return sqrtA, sqrtB, ErrEmptyRange
	}
	return sqrtA, sqrtB, nil
}

// LiquidityForAmount0 returns the liquidity that amount0 buys across [sqrtA, sqrtB].
func LiquidityForAmount0(sqrtA, sqrtB, amount0 sdkmath.Int) (sdkmath.Int, error) {
	sqrtA, sqrtB, err := ordered(sqrtA, sqrtB)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	intermediate, err := fullmath.MulDiv(sqrtA, sqrtB, fullmath.Q96)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return fullmath.MulDiv(amount0, intermediate, sqrtB.Sub(sqrtA))
}

// LiquidityForAmount1 returns the liquidity that amount1 buys across [sqrtA, sqrtB].
func LiquidityForAmount1(sqrtA, sqrtB, amount1 sdkmath.Int) (sdkmath.Int, error) {
	sqrtA, sqrtB, err := ordered(sqrtA, sqrtB)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return fullmath.MulDiv(amount1, fullmath.Q96, sqrtB.Sub(sqrtA))
}

// LiquidityForAmounts returns the largest liquidity that fits inside both amounts at
// the current price.
func LiquidityForAmounts(sqrtPrice, sqrtA, sqrtB, amount0, amount1 sdkmath.Int) (sdkmath.Int, error) {
	sqrtA, sqrtB, err := ordered(sqrtA, sqrtB)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	switch {
	case sqrtPrice.LTE(sqrtA):
		return LiquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtPrice.LT(sqrtB):
		l0, err := LiquidityForAmount0(sqrtPrice, sqrtB, amount0)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		l1, err := LiquidityForAmount1(sqrtA, sqrtPrice, amount1)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		return sdkmath.MinInt(l0, l1), nil
	default:
		return LiquidityForAmount1(sqrtA, sqrtB, amount1)
	}
}

func amount0ForLiquidity(sqrtA, sqrtB, liquidity sdkmath.Int, roundUp bool) (sdkmath.Int, error) {
	numerator, err := fullmath.Mul(liquidity, fullmath.Q96)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !roundUp {
		inner, err := fullmath.MulDiv(numerator, sqrtB.Sub(sqrtA), sqrtB)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		return inner.Quo(sqrtA), nil
	}
	inner, err := fullmath.MulDivRoundingUp(numerator, sqrtB.Sub(sqrtA), sqrtB)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return fullmath.DivRoundingUp(inner, sqrtA)
}

func amount1ForLiquidity(sqrtA, sqrtB, liquidity sdkmath.Int, roundUp bool) (sdkmath.Int, error) {
	if roundUp {
		return fullmath.MulDivRoundingUp(liquidity, sqrtB.Sub(sqrtA), fullmath.Q96)
	}
	return fullmath.MulDiv(liquidity, sqrtB.Sub(sqrtA), fullmath.Q96)
}

func amountsForLiquidity(sqrtPrice, sqrtA, sqrtB, liquidity sdkmath.Int, roundUp bool) (sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	sqrtA, sqrtB, err := ordered(sqrtA, sqrtB)
	if err != nil {
		return zero, zero, err
	}
	if liquidity.IsZero() {
		return zero, zero, nil
	}

	switch {
	case sqrtPrice.LTE(sqrtA):
		a0, err := amount0ForLiquidity(sqrtA, sqrtB, liquidity, roundUp)
		return a0, zero, err
	case sqrtPrice.LT(sqrtB):
		a0, err := amount0ForLiquidity(sqrtPrice, sqrtB, liquidity, roundUp)
		if err != nil {
			return zero, zero, err
		}
		a1, err := amount1ForLiquidity(sqrtA, sqrtPrice, liquidity, roundUp)
		if err != nil {
			return zero, zero, err
		}
		return a0, a1, nil
	default:
		a1, err := amount1ForLiquidity(sqrtA, sqrtB, liquidity, roundUp)
		return zero, a1, err
	}
}

// AmountsForLiquidity returns the token amounts a position of the given liquidity is
// worth at sqrtPrice, rounded down.
func AmountsForLiquidity(sqrtPrice, sqrtA, sqrtB, liquidity sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	return amountsForLiquidity(sqrtPrice, sqrtA, sqrtB, liquidity, false)
}

// AmountsForLiquidityRoundingUp returns what minting the given liquidity consumes.
func AmountsForLiquidityRoundingUp(sqrtPrice, sqrtA, sqrtB, liquidity sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	return amountsForLiquidity(sqrtPrice, sqrtA, sqrtB, liquidity, true)
}
