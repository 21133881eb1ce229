/*

Package position wraps one concentrated-liquidity range held by the vault.

The vault only ever tracks a range's bounds; the liquidity, owed fees and token movements
live in the pool. A Position pairs the two so callers can size, fund, harvest and value a
range without repeating the tick math.

*/

package position

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/rangemath"
	"github.com/elys-network/alm/internal/types"
)

// Pool is the position primitive of a concentrated-liquidity market. Every call is
// scoped to the caller's own position at the given range.
type Pool interface {
	// PositionLiquidity returns the liquidity currently held at r.
	PositionLiquidity(ctx context.Context, r types.Range) (sdkmath.Int, error)
	// PositionOwed returns fees credited to r as of the last poke.
	PositionOwed(ctx context.Context, r types.Range) (sdkmath.Int, sdkmath.Int, error)
	// Poke credits fees earned since the last poke without moving liquidity.
	Poke(ctx context.Context, r types.Range) error
	// Mint adds liquidity at r and pulls the required tokens from the caller.
	Mint(ctx context.Context, r types.Range, liquidity sdkmath.Int) (sdkmath.Int, sdkmath.Int, error)
	// Burn removes liquidity at r and pays out the principal plus every owed fee.
	Burn(ctx context.Context, r types.Range, liquidity sdkmath.Int) (burned0, burned1, earned0, earned1 sdkmath.Int, err error)
}

// Position is a range plus the pool it lives in.
type Position struct {
	pool  Pool
	Range types.Range
}

// New binds a range to its pool.
func New(pool Pool, r types.Range) Position {
	return Position{pool: pool, Range: r}
}

func (p Position) sqrtBounds() (sdkmath.Int, sdkmath.Int, error) {
	sqrtA, err := rangemath.SqrtRatioAtTick(p.Range.Lower)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	sqrtB, err := rangemath.SqrtRatioAtTick(p.Range.Upper)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return sqrtA, sqrtB, nil
}

// Liquidity returns the liquidity held at the range; zero for an empty range.
func (p Position) Liquidity(ctx context.Context) (sdkmath.Int, error) {
	if p.Range.IsEmpty() {
		return sdkmath.ZeroInt(), nil
	}
	return p.pool.PositionLiquidity(ctx, p.Range)
}

// Poke refreshes the position's owed fees. Positions without liquidity are skipped.
func (p Position) Poke(ctx context.Context) error {
	liquidity, err := p.Liquidity(ctx)
	if err != nil {
		return err
	}
	if liquidity.IsZero() {
		return nil
	}
	return p.pool.Poke(ctx, p.Range)
}

// Deposit adds liquidity and returns the token amounts the pool consumed.
func (p Position) Deposit(ctx context.Context, liquidity sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if p.Range.IsEmpty() || liquidity.IsZero() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), nil
	}
	used0, used1, err := p.pool.Mint(ctx, p.Range, liquidity)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("failed to mint %s at %s: %w", liquidity, p.Range, err)
	}
	return used0, used1, nil
}

// Withdraw removes liquidity. The burned amounts are principal; the earned amounts are
// every fee the position had accumulated, which the pool pays out on any burn. A zero
// liquidity withdrawal only harvests fees.
func (p Position) Withdraw(ctx context.Context, liquidity sdkmath.Int) (burned0, burned1, earned0, earned1 sdkmath.Int, err error) {
	zero := sdkmath.ZeroInt()
	if p.Range.IsEmpty() {
		return zero, zero, zero, zero, nil
	}
	held, err := p.pool.PositionLiquidity(ctx, p.Range)
	if err != nil {
		return zero, zero, zero, zero, err
	}
	if held.IsZero() {
		owed0, owed1, err := p.pool.PositionOwed(ctx, p.Range)
		if err != nil {
			return zero, zero, zero, zero, err
		}
		if owed0.IsZero() && owed1.IsZero() {
			return zero, zero, zero, zero, nil
		}
	}
	if liquidity.GT(held) {
		return zero, zero, zero, zero, fmt.Errorf("cannot burn %s from %s holding %s", liquidity, p.Range, held)
	}
	return p.pool.Burn(ctx, p.Range, liquidity)
}

// SizeForAmount0 returns the liquidity amount0 buys across the range.
func (p Position) SizeForAmount0(amount0 sdkmath.Int) (sdkmath.Int, error) {
	if p.Range.IsEmpty() {
		return sdkmath.ZeroInt(), nil
	}
	sqrtA, sqrtB, err := p.sqrtBounds()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return rangemath.LiquidityForAmount0(sqrtA, sqrtB, amount0)
}

// SizeForAmount1 returns the liquidity amount1 buys across the range.
func (p Position) SizeForAmount1(amount1 sdkmath.Int) (sdkmath.Int, error) {
	if p.Range.IsEmpty() {
		return sdkmath.ZeroInt(), nil
	}
	sqrtA, sqrtB, err := p.sqrtBounds()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return rangemath.LiquidityForAmount1(sqrtA, sqrtB, amount1)
}

// SizeForAmounts returns the largest liquidity both amounts can fund at sqrtPrice.
func (p Position) SizeForAmounts(sqrtPrice, amount0, amount1 sdkmath.Int) (sdkmath.Int, error) {
	if p.Range.IsEmpty() {
		return sdkmath.ZeroInt(), nil
	}
	sqrtA, sqrtB, err := p.sqrtBounds()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return rangemath.LiquidityForAmounts(sqrtPrice, sqrtA, sqrtB, amount0, amount1)
}

// CollectableAmounts values the position at sqrtPrice: principal plus fees owed as of
// the last poke.
func (p Position) CollectableAmounts(ctx context.Context, sqrtPrice sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	if p.Range.IsEmpty() {
		return zero, zero, nil
	}
	liquidity, err := p.pool.PositionLiquidity(ctx, p.Range)
	if err != nil {
		return zero, zero, err
	}
	owed0, owed1, err := p.pool.PositionOwed(ctx, p.Range)
	if err != nil {
		return zero, zero, err
	}
	sqrtA, sqrtB, err := p.sqrtBounds()
	if err != nil {
		return zero, zero, err
	}
	amount0, amount1, err := rangemath.AmountsForLiquidity(sqrtPrice, sqrtA, sqrtB, liquidity)
	if err != nil {
		return zero, zero, err
	}
	return amount0.Add(owed0), amount1.Add(owed1), nil
}
