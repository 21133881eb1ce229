package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/fullmath"
	"github.com/elys-network/alm/internal/position"
	"github.com/elys-network/alm/internal/rangemath"
	"github.com/elys-network/alm/internal/types"
)

// ComputeSharesForDeposit sizes a deposit so that it preserves the vault's inventory
// ratio and returns the shares it mints together with the amounts to pull.
//
// The first deposit is priced 50/50 by value at sqrtPrice and mints shares equal to the
// binding amount. Every later deposit mints totalSupply * amount / inventory on whichever
// side binds. Amounts are rounded down, so a deposit never takes more than its maxima.
func ComputeSharesForDeposit(totalSupply, inventory0, inventory1, max0, max1, sqrtPrice sdkmath.Int) (shares, amount0, amount1 sdkmath.Int, err error) {
	zero := sdkmath.ZeroInt()
	fail := func(e error) (sdkmath.Int, sdkmath.Int, sdkmath.Int, error) {
		return zero, zero, zero, e
	}
	inventoryEmpty := inventory0.IsZero() && inventory1.IsZero()

	if totalSupply.IsZero() {
		if !inventoryEmpty {
			return fail(fmt.Errorf("%w: inventory (%s, %s) without outstanding shares", ErrInvalidState, inventory0, inventory1))
		}
		price, err := rangemath.PriceX96(sqrtPrice)
		if err != nil {
			return fail(overflowErr("deposit price", err))
		}
		if price.IsZero() {
			return fail(fmt.Errorf("%w: price rounds to zero", ErrArithmeticOverflow))
		}
		amount0, err = fullmath.MulDiv(max1, fullmath.Q96, price)
		if err != nil {
			return fail(overflowErr("first deposit", err))
		}
		if amount0.LT(max0) {
			return max1, amount0, max1, nil
		}
		amount1, err = fullmath.MulDiv(max0, price, fullmath.Q96)
		if err != nil {
			return fail(overflowErr("first deposit", err))
		}
		return max0, max0, amount1, nil
	}

	if inventoryEmpty {
		return fail(fmt.Errorf("%w: %s shares outstanding against an empty inventory", ErrInvalidState, totalSupply))
	}

	switch {
	case inventory0.IsZero():
		amount1 = max1
		shares, err = fullmath.MulDiv(amount1, totalSupply, inventory1)
	case inventory1.IsZero():
		amount0 = max0
		shares, err = fullmath.MulDiv(amount0, totalSupply, inventory0)
	default:
		var token1Binds bool
		token1Binds, err = token1Binding(inventory0, inventory1, max0, max1)
		if err != nil {
			break
		}
		if token1Binds {
			amount1 = max1
			if amount0, err = fullmath.MulDiv(amount1, inventory0, inventory1); err != nil {
				break
			}
			shares, err = fullmath.MulDiv(amount1, totalSupply, inventory1)
		} else {
			amount0 = max0
			if amount1, err = fullmath.MulDiv(amount0, inventory1, inventory0); err != nil {
				break
			}
			shares, err = fullmath.MulDiv(amount0, totalSupply, inventory0)
		}
	}
	if err != nil {
		return fail(overflowErr("deposit shares", err))
	}
	if amount0.IsNil() {
		amount0 = zero
	}
	if amount1.IsNil() {
		amount1 = zero
	}
	return shares, amount0, amount1, nil
}

// token1Binding reports whether max1 is the limiting side, i.e. max1/inventory1 <
// max0/inventory0. The smaller inventory is always the divisor so the intermediate
// product stays small.
func token1Binding(inventory0, inventory1, max0, max1 sdkmath.Int) (bool, error) {
	if inventory0.LT(inventory1) {
		scaled, err := fullmath.MulDiv(max1, inventory0, inventory1)
		if err != nil {
			return false, err
		}
		return scaled.LT(max0), nil
	}
	scaled, err := fullmath.MulDiv(max0, inventory1, inventory0)
	if err != nil {
		return false, err
	}
	return max1.LT(scaled), nil
}

// withdrawShare moves the shares/totalSupply slice of every pool of capital into the
// vault's idle balance and returns its size per token.
func (v *Vault) withdrawShare(c *call, shares, totalSupply sdkmath.Int) ([2]sdkmath.Int, error) {
	var amounts [2]sdkmath.Int

	for _, i := range []types.TokenIndex{types.Token0, types.Token1} {
		if _, err := v.skimReserve(c, i); err != nil {
			return amounts, err
		}
		idle, err := v.idleBalance(c, i)
		if err != nil {
			return amounts, err
		}
		reserve, err := v.reserves[i].BalanceOf(c.ctx)
		if err != nil {
			return amounts, fmt.Errorf("failed to read reserve%d balance: %w", i, err)
		}
		held, err := fullmath.Add(idle, reserve)
		if err != nil {
			return amounts, overflowErr("withdraw", err)
		}
		amount, err := fullmath.MulDiv(held, shares, totalSupply)
		if err != nil {
			return amounts, overflowErr("withdraw", err)
		}
		if amount.GT(idle) {
			shortfall := amount.Sub(idle)
			pulled, err := v.pullFromReserve(c, i, shortfall)
			if err != nil {
				return amounts, err
			}
			if pulled.LT(shortfall) {
				return amounts, fmt.Errorf("%w: reserve%d returned %s of %s", ErrInvalidState, i, pulled, shortfall)
			}
		}
		amounts[i] = amount
	}

	for _, held := range []struct {
		name string
		pos  position.Position
	}{{"main", v.main(c)}, {"tilt", v.tilt(c)}} {
		name, pos := held.name, held.pos
		liquidity, err := pos.Liquidity(c.ctx)
		if err != nil {
			return amounts, fmt.Errorf("failed to read %s liquidity: %w", name, err)
		}
		slice, err := fullmath.MulDiv(liquidity, shares, totalSupply)
		if err != nil {
			return amounts, overflowErr("withdraw", err)
		}
		if slice.IsZero() {
			continue
		}
		burned0, burned1, earned0, earned1, err := pos.Withdraw(c.ctx, slice)
		if err != nil {
			return amounts, fmt.Errorf("failed to withdraw from %s position: %w", name, err)
		}
		net0, net1 := c.ledger.Skim(earned0, earned1)
		for i, part := range [2][2]sdkmath.Int{{burned0, net0}, {burned1, net1}} {
			feeShare, err := fullmath.MulDiv(part[1], shares, totalSupply)
			if err != nil {
				return amounts, overflowErr("withdraw", err)
			}
			amounts[i] = amounts[i].Add(part[0]).Add(feeShare)
		}
	}

	return amounts, nil
}
