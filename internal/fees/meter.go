package fees

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/fullmath"
	"github.com/elys-network/alm/internal/types"
)

const (
	// RewardWindowSize is the number of epochs averaged into the reward-per-gas rate.
	RewardWindowSize = 10
	// BudgetCapMultiplier bounds each budget at this many full-block rewards.
	BudgetCapMultiplier = 10
	// UrgencyScale is the urgency of a call made exactly one recentering interval late.
	UrgencyScale = 10_000
)

var ErrIncentiveOverflow = errors.New("incentive computation overflow")

// RewardWindow is a ring of recent reward-per-gas observations, each stored pre-divided
// by the window size so the accumulator is their average.
type RewardWindow struct {
	Slots       [RewardWindowSize]sdkmath.Int `json:"slots"`
	Accumulator sdkmath.Int                   `json:"accumulator"`
}

func (w *RewardWindow) normalize() {
	for i := range w.Slots {
		w.Slots[i] = orZero(w.Slots[i])
	}
	if sum := w.Sum(); !orZero(w.Accumulator).Equal(sum) {
		w.Accumulator = sum
	}
}

// Sum recomputes the accumulator from the slots.
func (w RewardWindow) Sum() sdkmath.Int {
	sum := sdkmath.ZeroInt()
	for _, s := range w.Slots {
		sum = sum.Add(s)
	}
	return sum
}

// AdvanceEpoch starts the next epoch and returns its number.
func (l *Ledger) AdvanceEpoch() uint64 {
	l.Epoch++
	return l.Epoch
}

// PushRewardRate records rate for epoch, evicting whatever the slot held
// RewardWindowSize epochs ago.
func (l *Ledger) PushRewardRate(i types.TokenIndex, epoch uint64, rate sdkmath.Int) error {
	if err := checkToken(i); err != nil {
		return err
	}
	if rate.IsNegative() {
		return fmt.Errorf("reward rate cannot be negative: %s", rate)
	}
	w := &l.Windows[i]
	slot := epoch % RewardWindowSize
	value := rate.QuoRaw(RewardWindowSize)
	acc, err := fullmath.Add(w.Accumulator.Sub(w.Slots[slot]), value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncentiveOverflow, err)
	}
	w.Accumulator = acc
	w.Slots[slot] = value
	return nil
}

// RewardPerGas scales the averaged rate by urgency.
func (l *Ledger) RewardPerGas(i types.TokenIndex, urgency uint64) (sdkmath.Int, error) {
	if err := checkToken(i); err != nil {
		return sdkmath.ZeroInt(), err
	}
	rpg, err := fullmath.MulDiv(l.Windows[i].Accumulator, sdkmath.NewIntFromUint64(urgency), sdkmath.NewInt(UrgencyScale))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrIncentiveOverflow, err)
	}
	return rpg, nil
}

// ObservedRate is the reward per gas the budget could fund if it were spent over
// BudgetCapMultiplier full blocks. It is what each epoch pushes into the window.
func (l *Ledger) ObservedRate(i types.TokenIndex, gasLimit uint64) sdkmath.Int {
	if gasLimit == 0 {
		return sdkmath.ZeroInt()
	}
	denom := sdkmath.NewIntFromUint64(gasLimit).MulRaw(BudgetCapMultiplier)
	return l.Budgets[i].Quo(denom)
}

// PayIncentive debits the caller's reward for gasUsed at the current urgency, capped at
// the budget. An empty budget or a zero rate pays nothing and is not an error.
func (l *Ledger) PayIncentive(i types.TokenIndex, gasUsed, urgency uint64) (sdkmath.Int, error) {
	rpg, err := l.RewardPerGas(i, urgency)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if rpg.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	amount, err := fullmath.Mul(rpg, sdkmath.NewIntFromUint64(gasUsed))
	if err != nil || amount.GT(l.Budgets[i]) {
		amount = l.Budgets[i]
	}
	l.Budgets[i] = l.Budgets[i].Sub(amount)
	return amount, nil
}

// ClampBudget enforces budget <= BudgetCapMultiplier * rewardPerGas * gasLimit and
// returns how much was released back to shareholders.
func (l *Ledger) ClampBudget(i types.TokenIndex, rewardPerGas sdkmath.Int, gasLimit uint64) (sdkmath.Int, error) {
	if err := checkToken(i); err != nil {
		return sdkmath.ZeroInt(), err
	}
	limit, err := fullmath.Mul(rewardPerGas, sdkmath.NewIntFromUint64(gasLimit).MulRaw(BudgetCapMultiplier))
	if err != nil {
		// A cap beyond 2^256 cannot bind.
		return sdkmath.ZeroInt(), nil
	}
	if l.Budgets[i].LTE(limit) {
		return sdkmath.ZeroInt(), nil
	}
	trimmed := l.Budgets[i].Sub(limit)
	l.Budgets[i] = limit
	return trimmed, nil
}
