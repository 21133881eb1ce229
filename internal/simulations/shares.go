package simulations

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

const supplyAccount = "\x00supply"

// ShareLedger is the vault's share token, kept in the bank under its own denom with the
// total supply tracked alongside.
type ShareLedger struct {
	world *World
	denom string
}

// NewShareLedger registers a share token with the world.
func (w *World) NewShareLedger(denom string) *ShareLedger {
	return &ShareLedger{world: w, denom: denom}
}

func (s *ShareLedger) TotalSupply(_ context.Context) (sdkmath.Int, error) {
	s.world.mu.Lock()
	defer s.world.mu.Unlock()

	s.world.charge(gasRead)
	return s.world.balance(s.denom, supplyAccount), nil
}

func (s *ShareLedger) BalanceOf(_ context.Context, owner string) (sdkmath.Int, error) {
	s.world.mu.Lock()
	defer s.world.mu.Unlock()

	s.world.charge(gasRead)
	return s.world.balance(s.denom, owner), nil
}

func (s *ShareLedger) Mint(_ context.Context, to string, amount sdkmath.Int) error {
	if err := checkPositive(amount); err != nil {
		return err
	}
	s.world.mu.Lock()
	defer s.world.mu.Unlock()

	s.world.charge(gasShares)
	s.world.credit(s.denom, to, amount)
	s.world.credit(s.denom, supplyAccount, amount)
	return nil
}

func (s *ShareLedger) Burn(_ context.Context, from string, amount sdkmath.Int) error {
	if err := checkPositive(amount); err != nil {
		return err
	}
	s.world.mu.Lock()
	defer s.world.mu.Unlock()

	s.world.charge(gasShares)
	if err := s.world.debit(s.denom, from, amount); err != nil {
		return fmt.Errorf("burn shares: %w", err)
	}
	return s.world.debit(s.denom, supplyAccount, amount)
}
