/*

This file contains the historical volatility estimator the volatility oracle is built on.

*/

package analyzer

import (
	"errors"
	"math"
	"sort"

	"github.com/elys-network/alm/internal/types"
)

// ErrInsufficientData indicates that not enough data points were provided
// to calculate volatility (need at least 2 points for 1 return).
var ErrInsufficientData = errors.New("insufficient data points to calculate volatility")

// CalculateVolatility calculates the historical volatility of a price series over a
// horizon. It sorts the prices chronologically, takes logarithmic returns and scales
// their standard deviation by sqrt(periodsPerHorizon), e.g. 24 for hourly samples and a
// daily horizon.
func CalculateVolatility(prices []types.PriceData, periodsPerHorizon float64) (float64, error) {
	n := len(prices)
	if n < 2 {
		return 0, ErrInsufficientData
	}
	if periodsPerHorizon <= 0 || math.IsNaN(periodsPerHorizon) || math.IsInf(periodsPerHorizon, 0) {
		return 0, errors.New("periods per horizon must be positive and finite")
	}

	sorted := make([]types.PriceData, n)
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// --- Calculate Logarithmic Returns ---
	logReturns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		current, previous := sorted[i].Price, sorted[i-1].Price
		if previous <= 0 || current <= 0 {
			continue
		}
		logReturns = append(logReturns, math.Log(current/previous))
	}
	numReturns := len(logReturns)
	if numReturns == 0 {
		return 0, ErrInsufficientData
	}

	// --- Population standard deviation of the returns ---
	var sum float64
	for _, r := range logReturns {
		sum += r
	}
	mean := sum / float64(numReturns)

	var sumSqDiff float64
	for _, r := range logReturns {
		sumSqDiff += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(sumSqDiff / float64(numReturns))

	return stdDev * math.Sqrt(periodsPerHorizon), nil
}
