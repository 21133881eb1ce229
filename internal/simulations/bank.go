package simulations

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Token is a fungible token held in the world's bank.
type Token struct {
	world  *World
	symbol string
	denom  string
}

// NewToken registers a token with the world.
func (w *World) NewToken(symbol, denom string) *Token {
	return &Token{world: w, symbol: symbol, denom: denom}
}

func (t *Token) Symbol() string { return t.symbol }
func (t *Token) Denom() string  { return t.denom }

// BalanceOf returns account's balance.
func (t *Token) BalanceOf(_ context.Context, account string) (sdkmath.Int, error) {
	t.world.mu.Lock()
	defer t.world.mu.Unlock()

	t.world.charge(gasRead)
	return t.world.balance(t.denom, account), nil
}

// Transfer moves amount from one account to another.
func (t *Token) Transfer(_ context.Context, from, to string, amount sdkmath.Int) error {
	if err := checkPositive(amount); err != nil {
		return err
	}
	t.world.mu.Lock()
	defer t.world.mu.Unlock()

	t.world.charge(gasTransfer)
	if err := t.world.debit(t.denom, from, amount); err != nil {
		return fmt.Errorf("transfer %s: %w", t.symbol, err)
	}
	t.world.credit(t.denom, to, amount)
	return nil
}

// Mint creates amount out of thin air for account. It is not metered.
func (t *Token) Mint(account string, amount sdkmath.Int) {
	t.world.mu.Lock()
	defer t.world.mu.Unlock()

	t.world.credit(t.denom, account, amount)
}

// Burn destroys up to amount of account's balance. It is not metered.
func (t *Token) Burn(account string, amount sdkmath.Int) error {
	t.world.mu.Lock()
	defer t.world.mu.Unlock()

	return t.world.debit(t.denom, account, amount)
}
