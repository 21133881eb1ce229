package main

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/alm/internal/simulations"
	"github.com/elys-network/alm/internal/types"
	"github.com/elys-network/alm/internal/vault"
)

func newGuardedVault(t *testing.T) (*guardedVault, *simulations.Market) {
	t.Helper()
	pair := [2]types.Token{
		{Symbol: "ATOM", Denom: "uatom", Precision: 6},
		{Symbol: "USDC", Denom: "uusdc", Precision: 6},
	}
	market, err := simulations.NewMarket(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), pair, types.SimulationParameters{
		TickSpacing:    60,
		StepInterval:   time.Hour,
		TickVolatility: 25,
		Seed:           42,
		VolumePerStep:  10_000_000,
		SwapFeeBps:     30,
		ReserveAPRBps:  400,
		GasLimit:       100_000,
		Sigma:          0.05,
	})
	require.NoError(t, err)

	v, err := vault.New(vault.Config{
		Account:  simulations.VaultAccount,
		Market:   market.Pool,
		Tokens:   [2]vault.Token{market.Tokens[0], market.Tokens[1]},
		Reserves: [2]vault.Reserve{market.Reserves[0], market.Reserves[1]},
		Oracle:   market.Oracle,
		Shares:   market.Shares,
		Env:      market.World,
	})
	require.NoError(t, err)
	return &guardedVault{vault: v}, market
}

func TestGuardedVault_RejectsWhileBusy(t *testing.T) {
	ctx := context.Background()
	g, market := newGuardedVault(t)
	amount := sdkmath.NewInt(1_000_000)
	market.Tokens[0].Mint("alice", amount)
	market.Tokens[1].Mint("alice", amount)

	// Simulates a market step holding the guard.
	g.mu.Lock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := g.Deposit(ctx, "alice", amount, amount, sdkmath.ZeroInt(), sdkmath.ZeroInt())
		assert.ErrorIs(t, err, vault.ErrLocked)
		_, err = g.Withdraw(ctx, "alice", amount, sdkmath.ZeroInt(), sdkmath.ZeroInt())
		assert.ErrorIs(t, err, vault.ErrLocked)
		_, err = g.Rebalance(ctx, "keeper", types.Token0)
		assert.ErrorIs(t, err, vault.ErrLocked)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		g.mu.Unlock()
		t.Fatal("guarded calls queued behind the held guard instead of failing")
	}
	g.mu.Unlock()

	receipt, err := g.Deposit(ctx, "alice", amount, amount, sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.True(t, receipt.Shares.IsPositive())
	assert.False(t, g.State().State.Locked)
}
