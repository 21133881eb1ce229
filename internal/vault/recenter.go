package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/fullmath"
	"github.com/elys-network/alm/internal/position"
	"github.com/elys-network/alm/internal/rangemath"
	"github.com/elys-network/alm/internal/types"
)

// NextWidth maps a daily volatility estimate (scaled by 1e18) to a main range width in
// ticks. Inside the thresholds the width is the tick distance spanned by a price factor
// of 1 / (1 - SigmaConfidence*sigma).
func NextWidth(sigma sdkmath.Int) (int32, error) {
	if sigma.IsNil() || sigma.IsNegative() {
		return 0, fmt.Errorf("%w: volatility must be non-negative", ErrInvalidInput)
	}
	if sigma.LTE(sdkmath.NewInt(SigmaLow)) {
		return MinWidth, nil
	}
	if sigma.GTE(sdkmath.NewInt(SigmaHigh)) {
		return MaxWidth, nil
	}

	one := sdkmath.NewInt(sigmaOne)
	denom := one.Sub(sigma.MulRaw(SigmaConfidence))
	ratio, err := fullmath.MulDiv(fullmath.Q96, one, denom)
	if err != nil {
		return 0, overflowErr("range width", err)
	}
	width, err := rangemath.TickAtSqrtRatio(ratio)
	if err != nil {
		return 0, fmt.Errorf("range width: %w", err)
	}
	if width < MinWidth {
		return MinWidth, nil
	}
	if width > MaxWidth {
		return MaxWidth, nil
	}
	return width, nil
}

// MagicAmounts returns how much of each token a new main range should hold. The fraction
// 1 - sqrt(1.0001^(-halfWidth)) is taken of the scarcer side's inventory and the other
// side is matched to it at priceX96, so a range centred on the price can be funded
// without swapping.
func MagicAmounts(inventory0, inventory1, priceX96 sdkmath.Int, halfWidth int32) (sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	sqrtLow, err := rangemath.SqrtRatioAtTick(-halfWidth)
	if err != nil {
		return zero, zero, err
	}
	magic := fullmath.Q96.Sub(sqrtLow)

	value0, err := fullmath.MulDiv(inventory0, priceX96, fullmath.Q96)
	if err != nil {
		return zero, zero, overflowErr("magic amounts", err)
	}

	var amount0, amount1 sdkmath.Int
	if value0.GT(inventory1) {
		if amount1, err = fullmath.MulDiv(inventory1, magic, fullmath.Q96); err == nil {
			amount0, err = fullmath.MulDiv(amount1, fullmath.Q96, priceX96)
		}
	} else {
		if amount0, err = fullmath.MulDiv(inventory0, magic, fullmath.Q96); err == nil {
			amount1, err = fullmath.MulDiv(amount0, priceX96, fullmath.Q96)
		}
	}
	if err != nil {
		return zero, zero, overflowErr("magic amounts", err)
	}
	return amount0, amount1, nil
}

// mainBounds centres a range of 2*halfWidth ticks on tick, snapped outward to spacing.
// When outward snapping would exceed MaxWidth the bounds are snapped inward instead.
func mainBounds(tick, halfWidth, spacing int32) types.Range {
	lower := rangemath.Floor(tick-halfWidth, spacing)
	upper := rangemath.Ceil(tick+halfWidth, spacing)
	if upper-lower > MaxWidth {
		lower = rangemath.Ceil(tick-halfWidth, spacing)
	}
	if upper-lower > MaxWidth {
		upper = rangemath.Floor(tick+halfWidth, spacing)
	}
	return types.Range{
		Lower: rangemath.ClampToSpacing(lower, spacing),
		Upper: rangemath.ClampToSpacing(upper, spacing),
	}
}

// recenter withdraws the main range and redeploys it around the current price, sized by
// the oracle's volatility estimate. Whatever is left idle afterwards is lent out.
func (v *Vault) recenter(c *call, inventory types.Inventory) error {
	old := v.main(c)
	liquidity, err := old.Liquidity(c.ctx)
	if err != nil {
		return fmt.Errorf("failed to read main liquidity: %w", err)
	}
	if !old.Range.IsEmpty() {
		_, _, earned0, earned1, err := old.Withdraw(c.ctx, liquidity)
		if err != nil {
			return fmt.Errorf("failed to withdraw main position: %w", err)
		}
		c.ledger.Skim(earned0, earned1)
	}

	sigma, err := v.oracle.Estimate24H(c.ctx, v.market.Name(), c.sqrtPrice, c.tick)
	if err != nil {
		return fmt.Errorf("failed to estimate volatility: %w", err)
	}
	width, err := NextWidth(sigma)
	if err != nil {
		return err
	}
	halfWidth := width / 2

	amount0, amount1, err := MagicAmounts(inventory.Amount0, inventory.Amount1, c.priceX96, halfWidth/2)
	if err != nil {
		return err
	}
	if amount0, err = v.fund(c, types.Token0, amount0); err != nil {
		return err
	}
	if amount1, err = v.fund(c, types.Token1, amount1); err != nil {
		return err
	}

	bounds := mainBounds(c.tick, halfWidth, v.market.TickSpacing())
	if bounds.IsEmpty() || bounds.Lower > bounds.Upper {
		return fmt.Errorf("%w: cannot centre a range on tick %d", ErrInvalidState, c.tick)
	}
	next := position.New(v.market, bounds)
	size, err := next.SizeForAmounts(c.sqrtPrice, amount0, amount1)
	if err != nil {
		return overflowErr("size main position", err)
	}
	if _, _, err := next.Deposit(c.ctx, size); err != nil {
		return err
	}
	c.state.Main = bounds

	for _, i := range []types.TokenIndex{types.Token0, types.Token1} {
		excess, err := v.idleBalance(c, i)
		if err != nil {
			return err
		}
		if err := v.pushToReserve(c, i, excess); err != nil {
			return err
		}
	}

	v.logger.Debug().
		Str("sigma", sigma.String()).
		Int32("width", width).
		Str("range", bounds.String()).
		Str("liquidity", size.String()).
		Msg("Main range recentered")
	return nil
}
