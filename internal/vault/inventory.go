package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/fullmath"
	"github.com/elys-network/alm/internal/types"
)

// idleBalance is what the vault holds directly for shareholders: its token balance minus
// the maintenance budget, which is custodied alongside but never counted as inventory.
func (v *Vault) idleBalance(c *call, i types.TokenIndex) (sdkmath.Int, error) {
	balance, err := v.tokens[i].BalanceOf(c.ctx, v.account)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read %s balance: %w", v.tokens[i].Symbol(), err)
	}
	return fullmath.SubFloor(balance, c.ledger.Budgets[i]), nil
}

// computeInventory values everything shareholders own at c.sqrtPrice. Position values
// include fees owed as of the last poke.
func (v *Vault) computeInventory(c *call, includeTilt bool) (types.Inventory, types.InventoryBreakdown, error) {
	var b types.InventoryBreakdown

	main0, main1, err := v.main(c).CollectableAmounts(c.ctx, c.sqrtPrice)
	if err != nil {
		return types.Inventory{}, b, fmt.Errorf("failed to value main position: %w", err)
	}
	b.Main = [2]sdkmath.Int{main0, main1}

	b.Tilt = [2]sdkmath.Int{sdkmath.ZeroInt(), sdkmath.ZeroInt()}
	if includeTilt {
		tilt0, tilt1, err := v.tilt(c).CollectableAmounts(c.ctx, c.sqrtPrice)
		if err != nil {
			return types.Inventory{}, b, fmt.Errorf("failed to value tilt order: %w", err)
		}
		b.Tilt = [2]sdkmath.Int{tilt0, tilt1}
	}

	for _, i := range []types.TokenIndex{types.Token0, types.Token1} {
		reserve, err := v.reserves[i].BalanceOf(c.ctx)
		if err != nil {
			return types.Inventory{}, b, fmt.Errorf("failed to read reserve%d balance: %w", i, err)
		}
		b.Reserves[i] = reserve

		idle, err := v.idleBalance(c, i)
		if err != nil {
			return types.Inventory{}, b, err
		}
		b.Idle[i] = idle
	}

	var inv types.Inventory
	var available [2]sdkmath.Int
	var total [2]sdkmath.Int
	for i := range total {
		available[i], err = fullmath.Add(b.Reserves[i], b.Idle[i])
		if err != nil {
			return types.Inventory{}, b, overflowErr("inventory", err)
		}
		positions, err := fullmath.Add(b.Main[i], b.Tilt[i])
		if err != nil {
			return types.Inventory{}, b, overflowErr("inventory", err)
		}
		total[i], err = fullmath.Add(available[i], positions)
		if err != nil {
			return types.Inventory{}, b, overflowErr("inventory", err)
		}
	}
	inv.Amount0, inv.Amount1 = total[0], total[1]
	inv.AvailableForTilt0, inv.AvailableForTilt1 = available[0], available[1]
	return inv, b, nil
}

// InventoryRatio returns token0's share of total inventory value in basis points. An
// empty inventory counts as balanced.
func InventoryRatio(inventory0, inventory1, priceX96 sdkmath.Int) (uint64, error) {
	value1, err := fullmath.MulDiv(inventory1, fullmath.Q96, priceX96)
	if err != nil {
		return 0, overflowErr("inventory ratio", err)
	}
	total, err := fullmath.Add(inventory0, value1)
	if err != nil {
		return 0, overflowErr("inventory ratio", err)
	}
	if total.IsZero() {
		return RatioScale / 2, nil
	}
	ratio, err := fullmath.MulDiv(sdkmath.NewInt(RatioScale), inventory0, total)
	if err != nil {
		return 0, overflowErr("inventory ratio", err)
	}
	return ratio.Uint64(), nil
}

// pokeAll refreshes fee and interest accrual on every position and reserve.
func (v *Vault) pokeAll(c *call) error {
	if err := v.main(c).Poke(c.ctx); err != nil {
		return fmt.Errorf("failed to poke main position: %w", err)
	}
	if err := v.tilt(c).Poke(c.ctx); err != nil {
		return fmt.Errorf("failed to poke tilt order: %w", err)
	}
	for i, r := range v.reserves {
		if err := r.Poke(c.ctx); err != nil {
			return fmt.Errorf("failed to poke reserve%d: %w", i, err)
		}
	}
	return nil
}
