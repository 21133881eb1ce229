package fullmath

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxInt() sdkmath.Int {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	return sdkmath.NewIntFromBigInt(max)
}

func TestMulDiv_Basic(t *testing.T) {
	res, err := MulDiv(sdkmath.NewInt(7), sdkmath.NewInt(3), sdkmath.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, "10", res.String())

	up, err := MulDivRoundingUp(sdkmath.NewInt(7), sdkmath.NewInt(3), sdkmath.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, "11", up.String())

	exact, err := MulDivRoundingUp(sdkmath.NewInt(8), sdkmath.NewInt(3), sdkmath.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, "12", exact.String())
}

func TestMulDiv_FullPrecisionIntermediate(t *testing.T) {
	max := maxInt()

	// (max * max) / max overflows a 256-bit product but not the result.
	res, err := MulDiv(max, max, max)
	require.NoError(t, err)
	assert.True(t, res.Equal(max))

	res, err = MulDiv(max, Q96, Q96)
	require.NoError(t, err)
	assert.True(t, res.Equal(max))

	half, err := MulDiv(max, sdkmath.NewInt(1), sdkmath.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, 255, half.BigInt().BitLen())
}

func TestMulDiv_Errors(t *testing.T) {
	_, err := MulDiv(sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrDivideByZero)

	_, err = MulDiv(maxInt(), sdkmath.NewInt(2), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulDiv(sdkmath.NewInt(-1), sdkmath.NewInt(2), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, ErrNegative)

	_, err = MulDivRoundingUp(maxInt(), maxInt(), maxInt().SubRaw(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestAddMul_Overflow(t *testing.T) {
	_, err := Add(maxInt(), sdkmath.OneInt())
	assert.ErrorIs(t, err, ErrOverflow)

	sum, err := Add(maxInt().SubRaw(1), sdkmath.OneInt())
	require.NoError(t, err)
	assert.True(t, sum.Equal(maxInt()))

	_, err = Mul(Q96, Q96.Mul(Q96).Mul(sdkmath.NewInt(1<<20)))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestDivRoundingUpAndSubFloor(t *testing.T) {
	res, err := DivRoundingUp(sdkmath.NewInt(10), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "4", res.String())

	assert.True(t, SubFloor(sdkmath.NewInt(3), sdkmath.NewInt(5)).IsZero())
	assert.Equal(t, "2", SubFloor(sdkmath.NewInt(5), sdkmath.NewInt(3)).String())
}
