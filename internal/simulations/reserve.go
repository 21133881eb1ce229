package simulations

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

const secondsPerYear = 365 * 24 * 60 * 60

// Reserve is a lending market for one token. Interest accrues continuously but only
// shows up in BalanceOf once the reserve is poked.
type Reserve struct {
	world *World
	name  string
	denom string
	owner string
}

// NewReserve creates a lending market for token whose depositor is owner.
func (w *World) NewReserve(name, owner string, token *Token) *Reserve {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.state.reserves[name]; !ok {
		w.state.reserves[name] = &reserveState{
			balances: make(map[string]sdkmath.Int),
			pending:  make(map[string]sdkmath.Int),
		}
	}
	return &Reserve{world: w, name: name, denom: token.Denom(), owner: owner}
}

func (r *Reserve) state() *reserveState {
	return r.world.state.reserves[r.name]
}

func amountOf(m map[string]sdkmath.Int, account string) sdkmath.Int {
	if v, ok := m[account]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (r *Reserve) Poke(_ context.Context) error {
	r.world.mu.Lock()
	defer r.world.mu.Unlock()

	r.world.charge(gasPoke)
	s := r.state()
	s.balances[r.owner] = amountOf(s.balances, r.owner).Add(amountOf(s.pending, r.owner))
	delete(s.pending, r.owner)
	return nil
}

func (r *Reserve) Deposit(_ context.Context, amount sdkmath.Int) error {
	if err := checkPositive(amount); err != nil {
		return err
	}
	r.world.mu.Lock()
	defer r.world.mu.Unlock()

	r.world.charge(gasReserve)
	if err := r.world.debit(r.denom, r.owner, amount); err != nil {
		return fmt.Errorf("reserve %s deposit: %w", r.name, err)
	}
	s := r.state()
	s.balances[r.owner] = amountOf(s.balances, r.owner).Add(amount)
	return nil
}

func (r *Reserve) Withdraw(_ context.Context, amount sdkmath.Int) error {
	if err := checkPositive(amount); err != nil {
		return err
	}
	r.world.mu.Lock()
	defer r.world.mu.Unlock()

	r.world.charge(gasReserve)
	s := r.state()
	held := amountOf(s.balances, r.owner)
	if held.LT(amount) {
		return fmt.Errorf("%w: reserve %s holds %s, withdraw %s", ErrInsufficientBalance, r.name, held, amount)
	}
	s.balances[r.owner] = held.Sub(amount)
	r.world.credit(r.denom, r.owner, amount)
	return nil
}

func (r *Reserve) BalanceOf(_ context.Context) (sdkmath.Int, error) {
	r.world.mu.Lock()
	defer r.world.mu.Unlock()

	r.world.charge(gasRead)
	return amountOf(r.state().balances, r.owner), nil
}

// Accrue earns interest at aprBps per year over elapsed, pending until the next poke.
func (r *Reserve) Accrue(aprBps int64, elapsed time.Duration) {
	r.world.mu.Lock()
	defer r.world.mu.Unlock()

	s := r.state()
	principal := amountOf(s.balances, r.owner)
	interest := principal.MulRaw(aprBps).MulRaw(int64(elapsed / time.Second)).QuoRaw(10_000 * secondsPerYear)
	s.pending[r.owner] = amountOf(s.pending, r.owner).Add(interest)
}

// AddInterest credits amount of interest directly, as if the reserve had been poked.
func (r *Reserve) AddInterest(amount sdkmath.Int) {
	r.world.mu.Lock()
	defer r.world.mu.Unlock()

	s := r.state()
	s.balances[r.owner] = amountOf(s.balances, r.owner).Add(amount)
}

// InjectLoss writes down the owner's balance, e.g. after a bad debt event.
func (r *Reserve) InjectLoss(amount sdkmath.Int) {
	r.world.mu.Lock()
	defer r.world.mu.Unlock()

	s := r.state()
	held := amountOf(s.balances, r.owner)
	if amount.GT(held) {
		amount = held
	}
	s.balances[r.owner] = held.Sub(amount)
}
