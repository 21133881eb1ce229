package position_test

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/alm/internal/fullmath"
	"github.com/elys-network/alm/internal/position"
	"github.com/elys-network/alm/internal/rangemath"
	"github.com/elys-network/alm/internal/simulations"
	"github.com/elys-network/alm/internal/types"
)

const owner = "owner"

func newPool(t *testing.T) *simulations.Pool {
	t.Helper()
	w := simulations.NewWorld(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	token0 := w.NewToken("ATOM", "uatom")
	token1 := w.NewToken("USDC", "uusdc")
	token0.Mint(owner, sdkmath.NewInt(1_000_000_000))
	token1.Mint(owner, sdkmath.NewInt(1_000_000_000))
	pool, err := w.NewPool("ATOM/USDC", owner, token0, token1, 60, 0)
	require.NoError(t, err)
	return pool
}

func TestPosition_EmptyRangeIsInert(t *testing.T) {
	ctx := context.Background()
	p := position.New(newPool(t), types.Range{})

	liquidity, err := p.Liquidity(ctx)
	require.NoError(t, err)
	assert.True(t, liquidity.IsZero())

	require.NoError(t, p.Poke(ctx))

	used0, used1, err := p.Deposit(ctx, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	assert.True(t, used0.IsZero())
	assert.True(t, used1.IsZero())

	burned0, _, earned0, _, err := p.Withdraw(ctx, sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.True(t, burned0.IsZero())
	assert.True(t, earned0.IsZero())

	size, err := p.SizeForAmount0(sdkmath.NewInt(1_000))
	require.NoError(t, err)
	assert.True(t, size.IsZero())
}

func TestPosition_DepositValueWithdraw(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)
	p := position.New(pool, types.Range{Lower: -600, Upper: 600})

	size, err := p.SizeForAmounts(fullmath.Q96, sdkmath.NewInt(100_000), sdkmath.NewInt(100_000))
	require.NoError(t, err)
	require.True(t, size.IsPositive())

	used0, used1, err := p.Deposit(ctx, size)
	require.NoError(t, err)
	assert.True(t, used0.LTE(sdkmath.NewInt(100_000)))
	assert.True(t, used1.LTE(sdkmath.NewInt(100_000)))

	sqrtPrice, _, err := pool.Slot0(ctx)
	require.NoError(t, err)
	value0, value1, err := p.CollectableAmounts(ctx, sqrtPrice)
	require.NoError(t, err)
	assert.True(t, value0.LTE(used0) && value0.GTE(used0.SubRaw(1)))
	assert.True(t, value1.LTE(used1) && value1.GTE(used1.SubRaw(1)))

	require.NoError(t, pool.AccrueFees(sdkmath.NewInt(300), sdkmath.NewInt(700)))
	require.NoError(t, p.Poke(ctx))
	value0, value1, err = p.CollectableAmounts(ctx, sqrtPrice)
	require.NoError(t, err)
	assert.True(t, value0.GTE(used0.AddRaw(299)))
	assert.True(t, value1.GTE(used1.AddRaw(699)))

	// A zero-liquidity withdrawal only harvests.
	burned0, burned1, earned0, earned1, err := p.Withdraw(ctx, sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.True(t, burned0.IsZero())
	assert.True(t, burned1.IsZero())
	assert.Equal(t, "300", earned0.String())
	assert.Equal(t, "700", earned1.String())

	liquidity, err := p.Liquidity(ctx)
	require.NoError(t, err)
	assert.Equal(t, size.String(), liquidity.String())

	_, _, _, _, err = p.Withdraw(ctx, liquidity.AddRaw(1))
	assert.Error(t, err)

	burned0, burned1, _, _, err = p.Withdraw(ctx, liquidity)
	require.NoError(t, err)
	assert.True(t, burned0.GTE(used0.SubRaw(2)))
	assert.True(t, burned1.GTE(used1.SubRaw(2)))

	liquidity, err = p.Liquidity(ctx)
	require.NoError(t, err)
	assert.True(t, liquidity.IsZero())
}

func TestPosition_SingleSidedSizing(t *testing.T) {
	above := position.New(newPool(t), types.Range{Lower: 60, Upper: 120})

	size, err := above.SizeForAmount0(sdkmath.NewInt(1_000_000))
	require.NoError(t, err)
	assert.True(t, size.IsPositive())

	sqrtA, err := rangemath.SqrtRatioAtTick(60)
	require.NoError(t, err)
	sqrtB, err := rangemath.SqrtRatioAtTick(120)
	require.NoError(t, err)
	amount0, amount1, err := rangemath.AmountsForLiquidity(sqrtA, sqrtA, sqrtB, size)
	require.NoError(t, err)
	assert.True(t, amount1.IsZero())
	assert.True(t, amount0.LTE(sdkmath.NewInt(1_000_000)))
	assert.True(t, amount0.GTE(sdkmath.NewInt(999_990)))
}
