/*

Package fees keeps the vault's maintenance books: the per-token budget that pays
rebalance callers, the principal basis of each reserve, and the rolling reward-per-gas
windows that price those payments.

A Ledger is a plain value. The vault copies it at the start of a call, mutates the copy
and writes it back only if the whole call succeeds.

*/

package fees

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/types"
)

const (
	// MaintenanceFee is the divisor applied to every earning: 1/MaintenanceFee of it
	// funds the maintenance budget.
	MaintenanceFee = 10
)

var ErrInvalidToken = errors.New("token index must be 0 or 1")

// Ledger is the persisted maintenance bookkeeping for both tokens.
type Ledger struct {
	Budgets [2]sdkmath.Int  `json:"budgets"`
	Basis   [2]sdkmath.Int  `json:"basis"` // principal deposited into each reserve
	Windows [2]RewardWindow `json:"windows"`
	Epoch   uint64          `json:"epoch"` // last epoch a reward rate was pushed for
}

// NewLedger returns a ledger with every counter at zero.
func NewLedger() Ledger {
	var l Ledger
	l.Normalize()
	return l
}

// Normalize replaces unset amounts with zero, e.g. after decoding an older record, and
// rebuilds each window accumulator from its slots.
func (l *Ledger) Normalize() {
	for i := range l.Budgets {
		l.Budgets[i] = orZero(l.Budgets[i])
		l.Basis[i] = orZero(l.Basis[i])
		l.Windows[i].normalize()
	}
}

func orZero(x sdkmath.Int) sdkmath.Int {
	if x.IsNil() {
		return sdkmath.ZeroInt()
	}
	return x
}

func checkToken(i types.TokenIndex) error {
	if !i.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidToken, i)
	}
	return nil
}

// Budget returns the maintenance budget for token i, zero if unset.
func (l Ledger) Budget(i types.TokenIndex) sdkmath.Int {
	return orZero(l.Budgets[i])
}

// Skim moves 1/MaintenanceFee of each earning into the budgets and returns what is left
// for shareholders.
func (l *Ledger) Skim(earned0, earned1 sdkmath.Int) (sdkmath.Int, sdkmath.Int) {
	fee0 := earned0.QuoRaw(MaintenanceFee)
	fee1 := earned1.QuoRaw(MaintenanceFee)
	l.Budgets[types.Token0] = l.Budgets[types.Token0].Add(fee0)
	l.Budgets[types.Token1] = l.Budgets[types.Token1].Add(fee1)
	return earned0.Sub(fee0), earned1.Sub(fee1)
}

// ReserveInterestFee returns the maintenance share of interest a reserve has accrued
// above its basis. A reserve that has lost principal yields zero, never a negative fee.
func (l *Ledger) ReserveInterestFee(i types.TokenIndex, reserveBalance sdkmath.Int) sdkmath.Int {
	basis := l.Basis[i]
	if reserveBalance.LTE(basis) {
		return sdkmath.ZeroInt()
	}
	return reserveBalance.Sub(basis).QuoRaw(MaintenanceFee)
}

// RecordReserveSkim books a fee that was withdrawn from reserve i. The remaining
// balance, interest included, becomes the new principal so the same interest is never
// charged twice.
func (l *Ledger) RecordReserveSkim(i types.TokenIndex, reserveBalance, fee sdkmath.Int) error {
	if err := checkToken(i); err != nil {
		return err
	}
	if fee.IsZero() {
		return nil
	}
	if fee.GT(reserveBalance) {
		return fmt.Errorf("reserve fee %s exceeds balance %s", fee, reserveBalance)
	}
	l.Budgets[i] = l.Budgets[i].Add(fee)
	l.Basis[i] = reserveBalance.Sub(fee)
	return nil
}

// RecordReserveDeposit adds newly lent principal to the basis.
func (l *Ledger) RecordReserveDeposit(i types.TokenIndex, amount sdkmath.Int) error {
	if err := checkToken(i); err != nil {
		return err
	}
	l.Basis[i] = l.Basis[i].Add(amount)
	return nil
}

// RecordReserveWithdraw removes principal pulled out of the reserve, flooring at zero.
func (l *Ledger) RecordReserveWithdraw(i types.TokenIndex, amount sdkmath.Int) error {
	if err := checkToken(i); err != nil {
		return err
	}
	if amount.GTE(l.Basis[i]) {
		l.Basis[i] = sdkmath.ZeroInt()
		return nil
	}
	l.Basis[i] = l.Basis[i].Sub(amount)
	return nil
}
