package simulations

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/fullmath"
	"github.com/elys-network/alm/internal/logger"
	"github.com/elys-network/alm/internal/rangemath"
	"github.com/elys-network/alm/internal/types"
)

var poolLogger = logger.GetForComponent("simulation_pool")

var (
	ErrInvalidRange    = errors.New("range is not aligned to tick spacing or lies outside the tick domain")
	ErrUnknownPosition = errors.New("no position at range")
	ErrInsufficientLiq = errors.New("insufficient position liquidity")
)

// Pool is a concentrated-liquidity market seen from one owner. Principal moves between
// the owner's bank balance and the pool; fees are minted to in-range positions by
// AccrueFees, standing in for swap volume.
type Pool struct {
	world   *World
	name    string
	owner   string
	denoms  [2]string
	spacing int32
}

// NewPool creates a pool at tick whose positions are held by owner.
func (w *World) NewPool(name, owner string, token0, token1 *Token, spacing int32, tick int32) (*Pool, error) {
	if spacing <= 0 {
		return nil, rangemath.ErrInvalidSpacing
	}
	sqrtPrice, err := rangemath.SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.state.pools[name]; ok {
		return nil, fmt.Errorf("pool %s already exists", name)
	}
	w.state.pools[name] = &poolState{sqrtPrice: sqrtPrice, tick: tick, positions: make(map[positionKey]*positionState)}

	return &Pool{world: w, name: name, owner: owner, denoms: [2]string{token0.Denom(), token1.Denom()}, spacing: spacing}, nil
}

func (p *Pool) Name() string       { return p.name }
func (p *Pool) TickSpacing() int32 { return p.spacing }

func (p *Pool) state() *poolState {
	return p.world.state.pools[p.name]
}

// Slot0 returns the current sqrt price and tick.
func (p *Pool) Slot0(_ context.Context) (sdkmath.Int, int32, error) {
	p.world.mu.Lock()
	defer p.world.mu.Unlock()

	p.world.charge(gasRead)
	s := p.state()
	return s.sqrtPrice, s.tick, nil
}

// SetTick moves the price to exactly tick.
func (p *Pool) SetTick(tick int32) error {
	sqrtPrice, err := rangemath.SqrtRatioAtTick(tick)
	if err != nil {
		return err
	}
	p.world.mu.Lock()
	defer p.world.mu.Unlock()

	s := p.state()
	s.sqrtPrice, s.tick = sqrtPrice, tick
	return nil
}

// SetSqrtPrice moves the price to sqrtPrice.
func (p *Pool) SetSqrtPrice(sqrtPrice sdkmath.Int) error {
	tick, err := rangemath.TickAtSqrtRatio(sqrtPrice)
	if err != nil {
		return err
	}
	p.world.mu.Lock()
	defer p.world.mu.Unlock()

	s := p.state()
	s.sqrtPrice, s.tick = sqrtPrice, tick
	return nil
}

// AccrueFees splits fee0 and fee1 across in-range positions pro rata to liquidity. The
// fees are earned but not credited until the position is poked. Fees with no in-range
// liquidity to earn them are dropped.
func (p *Pool) AccrueFees(fee0, fee1 sdkmath.Int) error {
	p.world.mu.Lock()
	defer p.world.mu.Unlock()

	s := p.state()
	active := sdkmath.ZeroInt()
	for k, pos := range s.positions {
		if k.r.Contains(s.tick) {
			active = active.Add(pos.liquidity)
		}
	}
	if active.IsZero() {
		return nil
	}
	for k, pos := range s.positions {
		if !k.r.Contains(s.tick) {
			continue
		}
		for i, fee := range [2]sdkmath.Int{fee0, fee1} {
			share, err := fullmath.MulDiv(fee, pos.liquidity, active)
			if err != nil {
				return err
			}
			pos.pending[i] = pos.pending[i].Add(share)
		}
	}
	return nil
}

func (p *Pool) position(r types.Range) *positionState {
	return p.state().positions[positionKey{owner: p.owner, r: r}]
}

func (p *Pool) PositionLiquidity(_ context.Context, r types.Range) (sdkmath.Int, error) {
	p.world.mu.Lock()
	defer p.world.mu.Unlock()

	p.world.charge(gasRead)
	if pos := p.position(r); pos != nil {
		return pos.liquidity, nil
	}
	return sdkmath.ZeroInt(), nil
}

func (p *Pool) PositionOwed(_ context.Context, r types.Range) (sdkmath.Int, sdkmath.Int, error) {
	p.world.mu.Lock()
	defer p.world.mu.Unlock()

	p.world.charge(gasRead)
	if pos := p.position(r); pos != nil {
		return pos.owed[0], pos.owed[1], nil
	}
	return sdkmath.ZeroInt(), sdkmath.ZeroInt(), nil
}

func (pos *positionState) poke() {
	for i := range pos.pending {
		pos.owed[i] = pos.owed[i].Add(pos.pending[i])
		pos.pending[i] = sdkmath.ZeroInt()
	}
}

func (p *Pool) Poke(_ context.Context, r types.Range) error {
	p.world.mu.Lock()
	defer p.world.mu.Unlock()

	p.world.charge(gasPoke)
	pos := p.position(r)
	if pos == nil {
		return fmt.Errorf("%w %s", ErrUnknownPosition, r)
	}
	pos.poke()
	return nil
}

func (p *Pool) checkRange(r types.Range) error {
	lo, hi := rangemath.UsableBounds(p.spacing)
	if r.Lower >= r.Upper || r.Lower < lo || r.Upper > hi || r.Lower%p.spacing != 0 || r.Upper%p.spacing != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRange, r)
	}
	return nil
}

func (p *Pool) sqrtBounds(r types.Range) (sdkmath.Int, sdkmath.Int, error) {
	sqrtA, err := rangemath.SqrtRatioAtTick(r.Lower)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	sqrtB, err := rangemath.SqrtRatioAtTick(r.Upper)
	return sqrtA, sqrtB, err
}

// Mint adds liquidity at r, pulling the token amounts it needs (rounded up) from the
// owner.
func (p *Pool) Mint(_ context.Context, r types.Range, liquidity sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	if err := p.checkRange(r); err != nil {
		return zero, zero, err
	}
	if !liquidity.IsPositive() {
		return zero, zero, fmt.Errorf("mint liquidity must be positive, got %s", liquidity)
	}
	sqrtA, sqrtB, err := p.sqrtBounds(r)
	if err != nil {
		return zero, zero, err
	}

	p.world.mu.Lock()
	defer p.world.mu.Unlock()

	p.world.charge(gasMint)
	s := p.state()
	amount0, amount1, err := rangemath.AmountsForLiquidityRoundingUp(s.sqrtPrice, sqrtA, sqrtB, liquidity)
	if err != nil {
		return zero, zero, err
	}
	if p.world.balance(p.denoms[0], p.owner).LT(amount0) || p.world.balance(p.denoms[1], p.owner).LT(amount1) {
		return zero, zero, fmt.Errorf("%w: mint at %s needs (%s, %s)", ErrInsufficientBalance, r, amount0, amount1)
	}
	if err := p.world.debit(p.denoms[0], p.owner, amount0); err != nil {
		return zero, zero, err
	}
	if err := p.world.debit(p.denoms[1], p.owner, amount1); err != nil {
		return zero, zero, err
	}

	key := positionKey{owner: p.owner, r: r}
	pos, ok := s.positions[key]
	if !ok {
		pos = &positionState{
			liquidity: zero,
			owed:      [2]sdkmath.Int{zero, zero},
			pending:   [2]sdkmath.Int{zero, zero},
		}
		s.positions[key] = pos
	}
	pos.liquidity = pos.liquidity.Add(liquidity)

	poolLogger.Debug().Str("pool", p.name).Str("range", r.String()).Str("liquidity", liquidity.String()).Msg("Minted position")
	return amount0, amount1, nil
}

// Burn removes liquidity at r and pays the owner the principal plus every fee the
// position has earned. A zero burn only collects fees.
func (p *Pool) Burn(_ context.Context, r types.Range, liquidity sdkmath.Int) (burned0, burned1, earned0, earned1 sdkmath.Int, err error) {
	zero := sdkmath.ZeroInt()
	sqrtA, sqrtB, err := p.sqrtBounds(r)
	if err != nil {
		return zero, zero, zero, zero, err
	}

	p.world.mu.Lock()
	defer p.world.mu.Unlock()

	p.world.charge(gasBurn)
	s := p.state()
	key := positionKey{owner: p.owner, r: r}
	pos, ok := s.positions[key]
	if !ok {
		return zero, zero, zero, zero, fmt.Errorf("%w %s", ErrUnknownPosition, r)
	}
	if liquidity.IsNegative() || liquidity.GT(pos.liquidity) {
		return zero, zero, zero, zero, fmt.Errorf("%w: burn %s of %s at %s", ErrInsufficientLiq, liquidity, pos.liquidity, r)
	}

	burned0, burned1, err = rangemath.AmountsForLiquidity(s.sqrtPrice, sqrtA, sqrtB, liquidity)
	if err != nil {
		return zero, zero, zero, zero, err
	}
	pos.poke()
	earned0, earned1 = pos.owed[0], pos.owed[1]
	pos.owed = [2]sdkmath.Int{zero, zero}
	pos.liquidity = pos.liquidity.Sub(liquidity)
	if pos.liquidity.IsZero() {
		delete(s.positions, key)
	}

	p.world.credit(p.denoms[0], p.owner, burned0.Add(earned0))
	p.world.credit(p.denoms[1], p.owner, burned1.Add(earned1))
	return burned0, burned1, earned0, earned1, nil
}
