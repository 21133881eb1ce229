package vault

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/position"
	"github.com/elys-network/alm/internal/types"
)

// Market is the concentrated-liquidity pool the vault provides liquidity to.
// It abstracts away the venue so the engine can run against a live pool or a simulation.
type Market interface {
	position.Pool

	// Name identifies the pool, e.g. for the volatility oracle.
	Name() string

	// Slot0 returns the current sqrt price (Q64.96) and tick.
	Slot0(ctx context.Context) (sdkmath.Int, int32, error)

	// TickSpacing returns the granularity position bounds must align to.
	TickSpacing() int32
}

// Reserve is a yield-bearing lending market holding one of the vault's tokens.
type Reserve interface {
	// Poke accrues interest so BalanceOf is current.
	Poke(ctx context.Context) error

	// Deposit lends amount of the vault's idle balance.
	Deposit(ctx context.Context, amount sdkmath.Int) error

	// Withdraw returns amount to the vault's idle balance.
	Withdraw(ctx context.Context, amount sdkmath.Int) error

	// BalanceOf returns principal plus accrued interest owned by the vault.
	BalanceOf(ctx context.Context) (sdkmath.Int, error)
}

// VolatilityOracle estimates how far price is likely to move over one day.
type VolatilityOracle interface {
	// Estimate24H returns the daily standard deviation of returns scaled by 1e18.
	Estimate24H(ctx context.Context, pool string, sqrtPriceX96 sdkmath.Int, tick int32) (sdkmath.Int, error)
}

// Token is a fungible balance ledger for one asset.
type Token interface {
	Symbol() string
	Denom() string
	BalanceOf(ctx context.Context, account string) (sdkmath.Int, error)
	Transfer(ctx context.Context, from, to string, amount sdkmath.Int) error
}

// ShareLedger issues the vault's fungible shares.
type ShareLedger interface {
	TotalSupply(ctx context.Context) (sdkmath.Int, error)
	BalanceOf(ctx context.Context, owner string) (sdkmath.Int, error)
	Mint(ctx context.Context, to string, amount sdkmath.Int) error
	Burn(ctx context.Context, from string, amount sdkmath.Int) error
}

// Env is the execution environment: clock, gas accounting and a journal that can roll
// back every collaborator's state to a snapshot.
type Env interface {
	Now() time.Time
	GasConsumed() uint64
	GasLimit() uint64
	Snapshot() int
	RevertToSnapshot(id int)
}

// EventSink receives a record of every committed state change.
type EventSink interface {
	OnDeposit(ctx context.Context, event types.LiquidityEvent)
	OnWithdraw(ctx context.Context, event types.LiquidityEvent)
	OnRebalance(ctx context.Context, event types.RebalanceEvent)
}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) OnDeposit(ctx context.Context, event types.LiquidityEvent) {
	for _, s := range m {
		s.OnDeposit(ctx, event)
	}
}

func (m MultiSink) OnWithdraw(ctx context.Context, event types.LiquidityEvent) {
	for _, s := range m {
		s.OnWithdraw(ctx, event)
	}
}

func (m MultiSink) OnRebalance(ctx context.Context, event types.RebalanceEvent) {
	for _, s := range m {
		s.OnRebalance(ctx, event)
	}
}
