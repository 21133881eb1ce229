package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/types"
)

// skimReserve withdraws the maintenance cut of interest reserve i has accrued above its
// basis and books it into the budget.
func (v *Vault) skimReserve(c *call, i types.TokenIndex) (sdkmath.Int, error) {
	balance, err := v.reserves[i].BalanceOf(c.ctx)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read reserve%d balance: %w", i, err)
	}
	fee := c.ledger.ReserveInterestFee(i, balance)
	if fee.IsZero() {
		return fee, nil
	}
	if err := v.reserves[i].Withdraw(c.ctx, fee); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to withdraw reserve%d interest fee: %w", i, err)
	}
	if err := c.ledger.RecordReserveSkim(i, balance, fee); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return fee, nil
}

// pullFromReserve withdraws up to amount from reserve i into the idle balance and
// returns what it actually moved.
func (v *Vault) pullFromReserve(c *call, i types.TokenIndex, amount sdkmath.Int) (sdkmath.Int, error) {
	if !amount.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	balance, err := v.reserves[i].BalanceOf(c.ctx)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read reserve%d balance: %w", i, err)
	}
	pulled := sdkmath.MinInt(amount, balance)
	if pulled.IsZero() {
		return pulled, nil
	}
	if err := v.reserves[i].Withdraw(c.ctx, pulled); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to withdraw %s from reserve%d: %w", pulled, i, err)
	}
	if err := c.ledger.RecordReserveWithdraw(i, pulled); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return pulled, nil
}

// fund makes sure amount of token i is idle, pulling the shortfall from the reserve. It
// returns the amount actually available, which is less than requested only when the
// reserve runs dry.
func (v *Vault) fund(c *call, i types.TokenIndex, amount sdkmath.Int) (sdkmath.Int, error) {
	idle, err := v.idleBalance(c, i)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if idle.GTE(amount) {
		return amount, nil
	}
	pulled, err := v.pullFromReserve(c, i, amount.Sub(idle))
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return idle.Add(pulled), nil
}

// pushToReserve lends amount of idle token i.
func (v *Vault) pushToReserve(c *call, i types.TokenIndex, amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return nil
	}
	if err := v.reserves[i].Deposit(c.ctx, amount); err != nil {
		return fmt.Errorf("failed to deposit %s into reserve%d: %w", amount, i, err)
	}
	return c.ledger.RecordReserveDeposit(i, amount)
}
