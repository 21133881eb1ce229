package analyzer

import (
	"context"
	"math"
	"math/big"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/alm/internal/types"
	"github.com/elys-network/alm/internal/utils"
)

var (
	start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q96   = sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 96))
)

func series(prices ...float64) []types.PriceData {
	out := make([]types.PriceData, len(prices))
	for i, p := range prices {
		out[i] = types.PriceData{Timestamp: start.Add(time.Duration(i) * time.Hour), Price: p}
	}
	return out
}

func TestCalculateVolatility(t *testing.T) {
	flat, err := CalculateVolatility(series(100, 100, 100, 100), 24)
	require.NoError(t, err)
	assert.Zero(t, flat)

	// Returns of +r, -r, +r, -r have zero mean and a standard deviation of r.
	r := math.Log(1.1)
	got, err := CalculateVolatility(series(100, 110, 100, 110, 100), 4)
	require.NoError(t, err)
	assert.InDelta(t, 2*r, got, 1e-12)
}

func TestCalculateVolatility_SortsWithoutMutatingInput(t *testing.T) {
	prices := series(100, 110, 100, 110, 100)
	shuffled := []types.PriceData{prices[3], prices[0], prices[4], prices[2], prices[1]}

	got, err := CalculateVolatility(shuffled, 1)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(1.1), got, 1e-12)
	assert.Equal(t, prices[3], shuffled[0])
}

func TestCalculateVolatility_InsufficientData(t *testing.T) {
	_, err := CalculateVolatility(series(100), 24)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = CalculateVolatility(series(0, -1, 0), 24)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = CalculateVolatility(series(1, 2), 0)
	assert.Error(t, err)
}

func newOracle(t *testing.T, cfg OracleConfig) *HistoricalOracle {
	t.Helper()
	o, err := NewHistoricalOracle(cfg)
	require.NoError(t, err)
	return o
}

func TestNewHistoricalOracle_Validation(t *testing.T) {
	for _, cfg := range []OracleConfig{
		{Lookback: 0, MaxPoints: 10, FallbackSigma: 0.05},
		{Lookback: time.Hour, MaxPoints: 1, FallbackSigma: 0.05},
		{Lookback: time.Hour, MaxPoints: 5, MinPoints: 6, FallbackSigma: 0.05},
		{Lookback: time.Hour, MaxPoints: 5, FallbackSigma: -1},
	} {
		_, err := NewHistoricalOracle(cfg)
		assert.ErrorIs(t, err, ErrInvalidOracleConfig)
	}
}

func TestHistoricalOracle_FallsBackWithoutHistory(t *testing.T) {
	o := newOracle(t, OracleConfig{Lookback: 48 * time.Hour, MaxPoints: 100, MinPoints: 3, FallbackSigma: 0.05})
	require.NoError(t, o.Observe("ATOM/USDC", start, q96))

	sigma, err := o.Estimate24H(context.Background(), "ATOM/USDC", q96, 0)
	require.NoError(t, err)
	assert.Equal(t, "50000000000000000", sigma.String())
}

func TestHistoricalOracle_EstimatesDailyVolatility(t *testing.T) {
	o := newOracle(t, OracleConfig{Lookback: 48 * time.Hour, MaxPoints: 100, FallbackSigma: 0.05})
	// Hourly prices alternating between 1 and 4.
	for i := 0; i < 25; i++ {
		sqrtPrice := q96
		if i%2 == 1 {
			sqrtPrice = q96.MulRaw(2)
		}
		require.NoError(t, o.Observe("ATOM/USDC", start.Add(time.Duration(i)*time.Hour), sqrtPrice))
	}

	sigma, err := o.Estimate24H(context.Background(), "ATOM/USDC", q96, 0)
	require.NoError(t, err)

	got, _ := utils.WadToDecimal(sigma).Float64()
	assert.InDelta(t, math.Log(4)*math.Sqrt(24), got, 1e-9)

	// Other pools are unaffected.
	other, err := o.Estimate24H(context.Background(), "OSMO/USDC", q96, 0)
	require.NoError(t, err)
	assert.Equal(t, "50000000000000000", other.String())
}

func TestHistoricalOracle_PrunesHistory(t *testing.T) {
	o := newOracle(t, OracleConfig{Lookback: 6 * time.Hour, MaxPoints: 100, FallbackSigma: 0.05})
	for i := 0; i < 10; i++ {
		require.NoError(t, o.Observe("p", start.Add(time.Duration(i)*time.Hour), q96))
	}
	assert.Equal(t, 7, o.Points("p"))

	capped := newOracle(t, OracleConfig{Lookback: 48 * time.Hour, MaxPoints: 5, FallbackSigma: 0.05})
	for i := 0; i < 10; i++ {
		require.NoError(t, capped.Observe("p", start.Add(time.Duration(i)*time.Hour), q96))
	}
	assert.Equal(t, 5, capped.Points("p"))

	// Stale and duplicate timestamps are ignored.
	require.NoError(t, capped.Observe("p", start, q96.MulRaw(2)))
	require.NoError(t, capped.Observe("p", start.Add(9*time.Hour), q96.MulRaw(2)))
	assert.Equal(t, 5, capped.Points("p"))

	assert.Error(t, capped.Observe("p", start.Add(10*time.Hour), sdkmath.ZeroInt()))
}

func TestHistoricalOracle_Seed(t *testing.T) {
	o := newOracle(t, OracleConfig{Lookback: 6 * time.Hour, MaxPoints: 100, MinPoints: 3, FallbackSigma: 0.05})

	// Out of order, with one duplicate timestamp and one non-positive price.
	history := series(10, 11, 10, 11, 10, 11, 10, 11, 10, 11)
	history[3].Price = 0
	shuffled := append([]types.PriceData{history[9], history[2]}, history...)

	asOf := start.Add(1000 * time.Hour)
	n, err := o.Seed("p", shuffled, 2, asOf)
	require.NoError(t, err)
	// Points 3..9 are inside the lookback and point 3 is dropped.
	assert.Equal(t, 6, n)
	assert.Equal(t, 6, o.Points("p"))

	o.mu.Lock()
	held := append([]types.PriceData(nil), o.prices["p"]...)
	o.mu.Unlock()
	assert.Equal(t, asOf, held[len(held)-1].Timestamp)
	assert.InDelta(t, 2.0, held[len(held)-1].Price, 1e-12)
	assert.InDelta(t, 20.0/11, held[0].Price, 1e-12)

	// Live observations at or before the seeded tip are ignored, later ones append.
	require.NoError(t, o.Observe("p", asOf, q96))
	assert.Equal(t, 6, o.Points("p"))
	require.NoError(t, o.Observe("p", asOf.Add(time.Hour), q96))
	assert.Equal(t, 7, o.Points("p"))

	// A pool that already has data keeps it.
	n, err = o.Seed("p", series(1, 2, 3), 0, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	// Rescaling leaves log returns, and therefore sigma, unchanged.
	plain := newOracle(t, OracleConfig{Lookback: 48 * time.Hour, MaxPoints: 100, FallbackSigma: 0.05})
	scaled := newOracle(t, OracleConfig{Lookback: 48 * time.Hour, MaxPoints: 100, FallbackSigma: 0.05})
	_, err = plain.Seed("p", series(100, 110, 100, 110, 100), 0, time.Time{})
	require.NoError(t, err)
	_, err = scaled.Seed("p", series(100, 110, 100, 110, 100), 3, time.Time{})
	require.NoError(t, err)
	a, err := plain.Estimate24H(context.Background(), "p", q96, 0)
	require.NoError(t, err)
	b, err := scaled.Estimate24H(context.Background(), "p", q96, 0)
	require.NoError(t, err)
	assert.InEpsilon(t, float64(a.Int64()), float64(b.Int64()), 1e-9)

	_, err = o.Seed("q", series(1, 0), 1, asOf)
	assert.ErrorIs(t, err, ErrInsufficientData)
	n, err = o.Seed("q", nil, 1, asOf)
	require.NoError(t, err)
	assert.Zero(t, n)
}
