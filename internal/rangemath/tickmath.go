/*

This file converts between ticks and Q64.96 sqrt prices.

A tick t prices one unit of token0 at 1.0001^t units of token1; the pool stores the
square root of that price scaled by 2^96. The constants below are the Uniswap v3
TickMath table, so results are bit-exact with on-chain pools.

*/

package rangemath

import (
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"

	"github.com/elys-network/alm/internal/fullmath"
)

const (
	// MinTick is the lowest tick a sqrt price can be computed for.
	MinTick int32 = -887272
	// MaxTick is the highest tick a sqrt price can be computed for.
	MaxTick int32 = -MinTick
)

var (
	ErrTickOutOfRange      = errors.New("tick outside the supported domain")
	ErrSqrtPriceOutOfRange = errors.New("sqrt price outside the supported domain")
	ErrInvalidSpacing      = errors.New("tick spacing must be positive")
)

var (
	minSqrtRatio = uint256.NewInt(4295128739)
	maxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")

	// MinSqrtRatio is SqrtRatioAtTick(MinTick).
	MinSqrtRatio = fullmath.FromU256(minSqrtRatio)
	// MaxSqrtRatio is SqrtRatioAtTick(MaxTick).
	MaxSqrtRatio = fullmath.FromU256(maxSqrtRatio)

	maxUint256 = new(uint256.Int).SetAllOne()

	// tickMagic[i] is 2^128 / sqrt(1.0001)^(2^i) for i in 1..19.
	tickMagic = []*uint256.Int{
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	}
	tickMagicOdd  = uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001")
	tickMagicEven = uint256.MustFromHex("0x100000000000000000000000000000000")
)

func sqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}
	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(uint256.Int)
	if absTick&0x1 != 0 {
		ratio.Set(tickMagicOdd)
	} else {
		ratio.Set(tickMagicEven)
	}
	for i, magic := range tickMagic {
		if absTick&(1<<(i+1)) != 0 {
			ratio.Mul(ratio, magic)
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Q128.128 to Q64.96, rounding up so that TickAtSqrtRatio stays consistent.
	rem := new(uint256.Int).And(ratio, uint256.NewInt(0xffffffff))
	ratio.Rsh(ratio, 32)
	if !rem.IsZero() {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 fixed point number.
func SqrtRatioAtTick(tick int32) (sdkmath.Int, error) {
	ratio, err := sqrtRatioAtTick(tick)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return fullmath.FromU256(ratio), nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is less than or equal to
// sqrtPriceX96.
func TickAtSqrtRatio(sqrtPriceX96 sdkmath.Int) (int32, error) {
	x, err := fullmath.ToU256(sqrtPriceX96)
	if err != nil {
		return 0, err
	}
	if x.Lt(minSqrtRatio) || !x.Lt(maxSqrtRatio) {
		return 0, fmt.Errorf("%w: %s", ErrSqrtPriceOutOfRange, sqrtPriceX96)
	}

	// sqrtRatioAtTick is strictly increasing, so search for the first tick above x.
	span := int(MaxTick - MinTick)
	idx := sort.Search(span+1, func(i int) bool {
		ratio, _ := sqrtRatioAtTick(MinTick + int32(i))
		return ratio.Gt(x)
	})
	return MinTick + int32(idx) - 1, nil
}

// Floor snaps tick down to the nearest multiple of spacing.
func Floor(tick, spacing int32) int32 {
	compressed := tick / spacing
	if tick < 0 && tick%spacing != 0 {
		compressed--
	}
	return compressed * spacing
}

// Ceil snaps tick up to the nearest multiple of spacing.
func Ceil(tick, spacing int32) int32 {
	floor := Floor(tick, spacing)
	if floor == tick {
		return tick
	}
	return floor + spacing
}

// UsableBounds returns the lowest and highest ticks that are multiples of spacing.
func UsableBounds(spacing int32) (int32, int32) {
	return Ceil(MinTick, spacing), Floor(MaxTick, spacing)
}

// ClampToSpacing keeps an already snapped tick inside the usable domain.
func ClampToSpacing(tick, spacing int32) int32 {
	lo, hi := UsableBounds(spacing)
	if tick < lo {
		return lo
	}
	if tick > hi {
		return hi
	}
	return tick
}

// PriceX96 returns sqrtPriceX96^2 / 2^96, the price of token0 in token1 as Q96.
func PriceX96(sqrtPriceX96 sdkmath.Int) (sdkmath.Int, error) {
	return fullmath.MulDiv(sqrtPriceX96, sqrtPriceX96, fullmath.Q96)
}
