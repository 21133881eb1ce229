package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/alm/internal/fullmath"
	"github.com/elys-network/alm/internal/simulations"
	"github.com/elys-network/alm/internal/types"
)

var errOracleDown = errors.New("oracle unavailable")

type failingOracle struct{}

func (failingOracle) Estimate24H(context.Context, string, sdkmath.Int, int32) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), errOracleDown
}

// recentered returns a fixture holding 1e6 of each token, recentered at tick 0.
func recentered(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	f := newFixture(t, opts...)
	f.fund("alice", 1_000_000, 1_000_000)
	f.deposit(t, "alice", 1_000_000, 1_000_000)
	event, err := f.vault.Rebalance(f.ctx, "keeper", types.Token0)
	require.NoError(t, err)
	require.Equal(t, types.BranchRecenter, event.Branch)
	return f
}

func TestRebalance_RecenterDeploysMainRange(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1_000_000, 1_000_000)
	f.deposit(t, "alice", 1_000_000, 1_000_000)
	f.market.World.Advance(time.Hour)

	event, err := f.vault.Rebalance(f.ctx, "keeper", types.Token0)
	require.NoError(t, err)

	assert.Equal(t, types.BranchRecenter, event.Branch)
	assert.Equal(t, uint64(5_000), event.Ratio)
	assert.Equal(t, uint64(416), event.Urgency)
	assert.Equal(t, types.Range{Lower: -1080, Upper: 1080}, event.Main)
	assert.True(t, event.Tilt.IsEmpty())
	assert.Equal(t, uint64(1), event.Epoch)
	assert.True(t, event.Reward.IsZero())

	state := f.vault.State()
	assert.Equal(t, event.Main, state.State.Main)
	assert.Equal(t, uint32(f.market.World.Now().Unix()), state.State.LastRecenterTime)
	assert.False(t, state.State.Locked)

	liquidity, err := f.market.Pool.PositionLiquidity(f.ctx, event.Main)
	require.NoError(t, err)
	assert.True(t, liquidity.IsPositive())

	// Everything not in the range is lent out.
	_, breakdown, err := f.vault.Inventory(f.ctx)
	require.NoError(t, err)
	for _, i := range []types.TokenIndex{types.Token0, types.Token1} {
		assert.True(t, breakdown.Idle[i].IsZero(), "idle token%d", i)
		assert.True(t, breakdown.Main[i].IsPositive(), "main token%d", i)
		assert.True(t, breakdown.Reserves[i].GT(breakdown.Main[i]), "reserve token%d", i)
		assert.True(t, breakdown.Total(i).LTE(sdkmath.NewInt(1_000_000)))
		assert.True(t, breakdown.Total(i).GTE(sdkmath.NewInt(999_990)))
	}
	assert.Len(t, f.sink.rebalances, 1)

	// The fresh range leaves the vault balanced.
	inventory, _, err := f.vault.Inventory(f.ctx)
	require.NoError(t, err)
	ratio, err := InventoryRatio(inventory.Amount0, inventory.Amount1, fullmath.Q96)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ratio, uint64(RatioLow))
	assert.LessOrEqual(t, ratio, uint64(RatioHigh))
}

func TestRebalance_TiltsTowardsBalance(t *testing.T) {
	tests := []struct {
		name   string
		tick   int32
		branch types.RebalanceBranch
		tilt   types.Range
		sold   types.TokenIndex
	}{
		{"token0 heavy sells above", 2000, types.BranchTiltAbove, types.Range{Lower: 2040, Upper: 2100}, types.Token0},
		{"token1 heavy sells below", -2000, types.BranchTiltBelow, types.Range{Lower: -2100, Upper: -2040}, types.Token1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := recentered(t)
			main := f.vault.State().State.Main
			require.NoError(t, f.market.Pool.SetTick(tt.tick))
			f.market.World.Advance(12 * time.Hour)

			event, err := f.vault.Rebalance(f.ctx, "keeper", types.Token0)
			require.NoError(t, err)

			assert.Equal(t, tt.branch, event.Branch)
			assert.Equal(t, tt.tilt, event.Tilt)
			assert.Equal(t, main, event.Main, "a tilt leaves the main range alone")
			assert.Equal(t, uint64(5_000), event.Urgency)

			_, breakdown, err := f.vault.Inventory(f.ctx)
			require.NoError(t, err)
			assert.True(t, breakdown.Tilt[tt.sold].IsPositive())
			assert.True(t, breakdown.Tilt[1-tt.sold].IsZero())

			// Same price, same order: nothing new was achieved.
			again, err := f.vault.Rebalance(f.ctx, "keeper", types.Token0)
			require.NoError(t, err)
			assert.Equal(t, tt.branch, again.Branch)
			assert.Equal(t, tt.tilt, again.Tilt)
			assert.Zero(t, again.Urgency)
		})
	}
}

func TestRebalance_PaysIncentiveFromBudget(t *testing.T) {
	f := recentered(t)
	main := f.vault.State().State.Main
	require.NoError(t, f.market.Pool.AccrueFees(sdkmath.NewInt(1_000_000_000), sdkmath.NewInt(1_000_000_000)))
	f.market.World.Advance(24 * time.Hour)

	event, err := f.vault.Rebalance(f.ctx, "keeper", types.Token0)
	require.NoError(t, err)

	require.Equal(t, main, event.Main)
	assert.Equal(t, uint64(10_000), event.Urgency)
	assert.Equal(t, uint64(2), event.Epoch)
	require.True(t, event.Reward.IsPositive())
	// 1e8 budget over 10 blocks of 1e5 gas, averaged over a 10-epoch window.
	assert.Equal(t, sdkmath.NewIntFromUint64(10*event.GasUsed).String(), event.Reward.String())
	assert.True(t, event.GasUsed > BaseTxGas)

	assert.Equal(t, sdkmath.NewInt(100_000_000).Sub(event.Reward).String(), event.Budgets[types.Token0].String())
	assert.Equal(t, "100000000", event.Budgets[types.Token1].String())
	assert.Equal(t, event.Budgets[types.Token0].String(), f.vault.State().Ledger.Budgets[types.Token0].String())
	assert.Equal(t, event.Reward.String(), f.balance(t, types.Token0, "keeper").String())
	assert.True(t, f.balance(t, types.Token1, "keeper").IsZero())
}

func TestRebalance_ClampsBudgetOnceWindowIsFull(t *testing.T) {
	f := recentered(t)
	require.NoError(t, f.market.Pool.AccrueFees(sdkmath.NewInt(1_234_567_890), sdkmath.NewInt(1_234_567_890)))

	for epoch := 2; epoch < 10; epoch++ {
		event, err := f.vault.Rebalance(f.ctx, "keeper", types.Token1)
		require.NoError(t, err)
		assert.Equal(t, "123456789", event.Budgets[types.Token0].String(), "epoch %d", epoch)
	}
	assert.False(t, f.vault.State().State.Sustainable)

	event, err := f.vault.Rebalance(f.ctx, "keeper", types.Token1)
	require.NoError(t, err)

	// Nine epochs observed 123 per gas, stored as 12 each; the first saw an empty budget.
	assert.Equal(t, uint64(10), event.Epoch)
	assert.Equal(t, "108000000", event.Budgets[types.Token0].String())
	assert.Equal(t, "108000000", event.Budgets[types.Token1].String())
	assert.True(t, f.vault.State().State.Sustainable)
}

func TestRebalance_FailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Oracle = failingOracle{} })
	f.fund("alice", 1_000_000, 1_000_000)
	f.deposit(t, "alice", 1_000_000, 1_000_000)
	before := f.vault.State()

	_, err := f.vault.Rebalance(f.ctx, "keeper", types.Token0)
	require.ErrorIs(t, err, errOracleDown)

	after := f.vault.State()
	assert.Equal(t, before.State, after.State)
	assert.Zero(t, after.Ledger.Epoch)
	assert.True(t, f.balance(t, types.Token0, "alice").IsZero())
	for _, i := range []types.TokenIndex{types.Token0, types.Token1} {
		assert.Equal(t, "1000000", f.balance(t, i, "alm-vault").String())
		reserve, err := f.market.Reserves[i].BalanceOf(f.ctx)
		require.NoError(t, err)
		assert.True(t, reserve.IsZero())
	}
	assert.Empty(t, f.sink.rebalances)

	// The lock was released.
	f.deposit(t, "alice", 10, 10)
}

func TestRebalance_RejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.vault.Rebalance(f.ctx, "", types.Token0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.vault.Rebalance(f.ctx, "keeper", types.TokenIndex(2))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRebalance_EmptyVaultRecenters(t *testing.T) {
	f := newFixture(t)

	event, err := f.vault.Rebalance(f.ctx, "keeper", types.Token0)
	require.NoError(t, err)

	assert.Equal(t, types.BranchRecenter, event.Branch)
	assert.Equal(t, uint64(RatioScale/2), event.Ratio)
	assert.True(t, event.TotalSupply.IsZero())
}

func TestWithdraw_AfterRecenterReturnsProRataSlice(t *testing.T) {
	f := recentered(t)
	f.fund("bob", 1_000_000, 1_000_000)
	receipt := f.deposit(t, "bob", 500_000, 500_000)
	require.True(t, receipt.Shares.IsPositive())

	out, err := f.vault.Withdraw(f.ctx, "alice", sdkmath.NewInt(500_000), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.NoError(t, err)
	for _, amount := range []sdkmath.Int{out.Amount0, out.Amount1} {
		assert.True(t, amount.LTE(sdkmath.NewInt(500_000)), amount.String())
		assert.True(t, amount.GTE(sdkmath.NewInt(499_990)), amount.String())
	}

	out, err = f.vault.Withdraw(f.ctx, "bob", receipt.Shares, sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.True(t, out.Amount0.LTE(receipt.Amount0.AddRaw(5)))
	assert.True(t, out.Amount0.GTE(receipt.Amount0.SubRaw(10)))
}

func TestWithdraw_SkimsReserveInterest(t *testing.T) {
	f := recentered(t)
	f.market.Reserves[types.Token0].AddInterest(sdkmath.NewInt(50_000))

	out, err := f.vault.Withdraw(f.ctx, "alice", sdkmath.NewInt(1_000_000), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.NoError(t, err)

	ledger := f.vault.State().Ledger
	assert.Equal(t, "5000", ledger.Budgets[types.Token0].String())
	assert.True(t, ledger.Budgets[types.Token1].IsZero())
	assert.True(t, out.Amount0.LTE(sdkmath.NewInt(1_045_000)), out.Amount0.String())
	assert.True(t, out.Amount0.GTE(sdkmath.NewInt(1_044_990)), out.Amount0.String())

	// The budget stays in the vault, outside every shareholder's claim.
	assert.Equal(t, "5000", f.balance(t, types.Token0, "alm-vault").String())
}

// flakyPriceMarket fails Slot0 while down is set.
type flakyPriceMarket struct {
	*simulations.Pool
	down bool
}

func (m *flakyPriceMarket) Slot0(ctx context.Context) (sdkmath.Int, int32, error) {
	if m.down {
		return sdkmath.ZeroInt(), 0, errors.New("price feed unavailable")
	}
	return m.Pool.Slot0(ctx)
}

func TestWithdraw_DoesNotDependOnPrice(t *testing.T) {
	t.Run("price at the bottom of the domain", func(t *testing.T) {
		f := recentered(t)
		require.NoError(t, f.market.Pool.SetTick(-887_000))

		f.fund("bob", 1_000, 1_000)
		_, err := f.vault.Deposit(f.ctx, "bob", sdkmath.NewInt(1_000), sdkmath.NewInt(1_000), sdkmath.ZeroInt(), sdkmath.ZeroInt())
		assert.ErrorIs(t, err, ErrArithmeticOverflow)

		out, err := f.vault.Withdraw(f.ctx, "alice", sdkmath.NewInt(1_000_000), sdkmath.ZeroInt(), sdkmath.ZeroInt())
		require.NoError(t, err)
		assert.True(t, f.shares(t, "alice").IsZero())
		// Below the range the main position is all token0.
		assert.True(t, out.Amount0.GTE(sdkmath.NewInt(999_000)), out.Amount0.String())
		assert.False(t, f.vault.State().State.Locked)
	})

	t.Run("price unreadable", func(t *testing.T) {
		var market *flakyPriceMarket
		f := recentered(t, func(cfg *Config) {
			market = &flakyPriceMarket{Pool: cfg.Market.(*simulations.Pool)}
			cfg.Market = market
		})
		market.down = true

		_, err := f.vault.Rebalance(f.ctx, "keeper", types.Token0)
		assert.Error(t, err)

		out, err := f.vault.Withdraw(f.ctx, "alice", sdkmath.NewInt(400_000), sdkmath.ZeroInt(), sdkmath.ZeroInt())
		require.NoError(t, err)
		assert.True(t, out.Amount0.IsPositive())
		assert.True(t, out.Amount1.IsPositive())
		assert.Equal(t, "600000", f.shares(t, "alice").String())
	})
}
