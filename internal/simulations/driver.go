package simulations

import (
	"fmt"
	"math"
	"math/rand"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/fullmath"
	"github.com/elys-network/alm/internal/rangemath"
	"github.com/elys-network/alm/internal/types"
)

// Driver advances a simulated market one step at a time: the clock moves, the price
// takes a random-walk step, swap fees go to in-range liquidity and reserves earn
// interest.
type Driver struct {
	world    *World
	pool     *Pool
	reserves [2]*Reserve
	params   types.SimulationParameters
	rng      *rand.Rand
}

// NewDriver creates a driver for pool and its reserves.
func NewDriver(world *World, pool *Pool, reserves [2]*Reserve, params types.SimulationParameters) *Driver {
	return &Driver{
		world:    world,
		pool:     pool,
		reserves: reserves,
		params:   params,
		rng:      rand.New(rand.NewSource(params.Seed)),
	}
}

// Step runs one interval of market activity and returns the new tick.
func (d *Driver) Step() (int32, error) {
	d.world.Advance(d.params.StepInterval)

	d.world.mu.Lock()
	tick := d.pool.state().tick
	d.world.mu.Unlock()

	move := int32(math.Round(d.rng.NormFloat64() * d.params.TickVolatility))
	lo, hi := rangemath.UsableBounds(d.pool.TickSpacing())
	next := tick + move
	if next < lo {
		next = lo
	}
	if next > hi {
		next = hi
	}
	if err := d.pool.SetTick(next); err != nil {
		return tick, fmt.Errorf("failed to move price: %w", err)
	}

	fee0, fee1, err := d.swapFees(next)
	if err != nil {
		return next, err
	}
	if err := d.pool.AccrueFees(fee0, fee1); err != nil {
		return next, fmt.Errorf("failed to accrue fees: %w", err)
	}

	for _, r := range d.reserves {
		if r != nil {
			r.Accrue(d.params.ReserveAPRBps, d.params.StepInterval)
		}
	}

	worldLogger.Debug().Int32("tick", next).Str("fee0", fee0.String()).Str("fee1", fee1.String()).Msg("Market step")
	return next, nil
}

// swapFees splits the step's fee revenue evenly between swaps in each direction.
func (d *Driver) swapFees(tick int32) (sdkmath.Int, sdkmath.Int, error) {
	fee0 := sdkmath.NewInt(d.params.VolumePerStep).MulRaw(d.params.SwapFeeBps).QuoRaw(10_000 * 2)
	sqrtPrice, err := rangemath.SqrtRatioAtTick(tick)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	price, err := rangemath.PriceX96(sqrtPrice)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	fee1, err := fullmath.MulDiv(fee0, price, fullmath.Q96)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return fee0, fee1, nil
}
