/*
Conversions between base-unit token amounts and whole-token floats. Used where a
human figure is configured or logged; vault arithmetic never goes through float64.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// maxPrecision is the most fractional digits a LegacyDec carries.
const maxPrecision = sdkmath.LegacyPrecision

func checkPrecision(precision int) error {
	if precision < 0 || precision > maxPrecision {
		return fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, maxPrecision)
	}
	return nil
}

// SDKIntToFloat64 converts a base-unit amount to whole tokens.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if err := checkPrecision(precision); err != nil {
		return 0, err
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	whole := sdkmath.LegacyNewDecFromInt(amount).QuoInt(sdkmath.NewIntWithDecimal(1, precision))
	f, err := whole.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
}

// Float64ToSDKInt converts whole tokens to base units, truncating below one unit.
func Float64ToSDKInt(amount float64, precision int) (sdkmath.Int, error) {
	if err := checkPrecision(precision); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amount == 0 {
		return sdkmath.ZeroInt(), nil
	}

	// Going through the decimal string keeps 0.1 from becoming 0.1000000000000000055.
	dec, err := sdkmath.LegacyNewDecFromStr(strconv.FormatFloat(amount, 'f', precision, 64))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return dec.MulInt(sdkmath.NewIntWithDecimal(1, precision)).TruncateInt(), nil
}
