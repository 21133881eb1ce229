/*
This file contains helpers that render on-chain integers for humans: token amounts with
their decimals applied, Q64.96 sqrt prices as plain prices, and 1e18-scaled volatility.
*/

package utils

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// WadDecimals is the fixed-point scale of volatility estimates.
const WadDecimals = 18

var q96 = decimal.NewFromInt(2).Pow(decimal.NewFromInt(96))

// FormatAmount renders base units as a decimal string, e.g. 1500000 at precision 6 is "1.5".
func FormatAmount(amount sdkmath.Int, precision int) (string, error) {
	if precision < 0 || precision > 36 {
		return "", fmt.Errorf("%w: %d", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return "", ErrAmountNil
	}
	return decimal.NewFromBigInt(amount.BigInt(), -int32(precision)).String(), nil
}

// SqrtPriceToDecimal converts a Q64.96 sqrt price into token1 per token0, adjusted for
// the tokens' precisions.
func SqrtPriceToDecimal(sqrtPriceX96 sdkmath.Int, precision0, precision1 int) (decimal.Decimal, error) {
	if sqrtPriceX96.IsNil() || !sqrtPriceX96.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: sqrt price must be positive", ErrConversionFailed)
	}
	ratio := decimal.NewFromBigInt(sqrtPriceX96.BigInt(), 0).DivRound(q96, 36)
	return ratio.Mul(ratio).Shift(int32(precision0 - precision1)), nil
}

// SqrtPriceToFloat64 is SqrtPriceToDecimal for callers doing float statistics.
func SqrtPriceToFloat64(sqrtPriceX96 sdkmath.Int) (float64, error) {
	price, err := SqrtPriceToDecimal(sqrtPriceX96, 0, 0)
	if err != nil {
		return 0, err
	}
	f, _ := price.Float64()
	return f, nil
}

// SigmaToWad scales a volatility such as 0.05 to 1e18 fixed point.
func SigmaToWad(sigma float64) (sdkmath.Int, error) {
	// 12 decimals keeps float noise out of the low digits.
	scaled, err := Float64ToSDKInt(sigma, 12)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return scaled.MulRaw(1_000_000), nil
}

// WadToDecimal renders a 1e18-scaled value such as a volatility estimate.
func WadToDecimal(wad sdkmath.Int) decimal.Decimal {
	if wad.IsNil() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(new(big.Int).Set(wad.BigInt()), -WadDecimals)
}
