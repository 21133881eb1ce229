/*

This file contains the volatility oracle the vault sizes its main range with. It keeps a
bounded window of observed prices per pool and reports their daily volatility.

*/

package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/logger"
	"github.com/elys-network/alm/internal/types"
	"github.com/elys-network/alm/internal/utils"
)

var oracleLogger = logger.GetForComponent("volatility_oracle")

var ErrInvalidOracleConfig = errors.New("invalid volatility oracle configuration")

const horizon = 24 * time.Hour

// OracleConfig bounds how much history the oracle keeps.
type OracleConfig struct {
	Lookback      time.Duration // observations older than this are dropped
	MaxPoints     int           // per pool
	MinPoints     int           // below this the fallback is reported
	FallbackSigma float64       // daily volatility used until enough history exists
}

// HistoricalOracle estimates daily volatility from prices it has been shown.
type HistoricalOracle struct {
	mu       sync.Mutex
	cfg      OracleConfig
	fallback sdkmath.Int
	prices   map[string][]types.PriceData
}

// NewHistoricalOracle validates cfg and returns an empty oracle.
func NewHistoricalOracle(cfg OracleConfig) (*HistoricalOracle, error) {
	if cfg.Lookback <= 0 || cfg.MaxPoints < 2 {
		return nil, fmt.Errorf("%w: lookback %s, max points %d", ErrInvalidOracleConfig, cfg.Lookback, cfg.MaxPoints)
	}
	if cfg.MinPoints < 2 {
		cfg.MinPoints = 2
	}
	if cfg.MinPoints > cfg.MaxPoints {
		return nil, fmt.Errorf("%w: min points %d exceed max points %d", ErrInvalidOracleConfig, cfg.MinPoints, cfg.MaxPoints)
	}
	fallback, err := utils.SigmaToWad(cfg.FallbackSigma)
	if err != nil {
		return nil, fmt.Errorf("%w: fallback sigma: %w", ErrInvalidOracleConfig, err)
	}
	return &HistoricalOracle{
		cfg:      cfg,
		fallback: fallback,
		prices:   make(map[string][]types.PriceData),
	}, nil
}

// Observe records the pool's price at time at. Observations must be fed in time order;
// one that is not newer than the last is ignored.
func (o *HistoricalOracle) Observe(pool string, at time.Time, sqrtPriceX96 sdkmath.Int) error {
	price, err := utils.SqrtPriceToFloat64(sqrtPriceX96)
	if err != nil {
		return fmt.Errorf("failed to observe %s: %w", pool, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	series := o.prices[pool]
	if n := len(series); n > 0 && !at.After(series[n-1].Timestamp) {
		return nil
	}
	series = append(series, types.PriceData{Timestamp: at, Price: price})

	cutoff := at.Add(-o.cfg.Lookback)
	start := 0
	for start < len(series) && series[start].Timestamp.Before(cutoff) {
		start++
	}
	if len(series)-start > o.cfg.MaxPoints {
		start = len(series) - o.cfg.MaxPoints
	}
	o.prices[pool] = append(series[:0:0], series[start:]...)
	return nil
}

// Seed preloads pool with external history, e.g. hourly closes from a price API, so
// the first recenters do not fall back. The series is shifted so its newest point sits
// at asOf and rescaled so that point's price equals anchor; live observations then join
// without a gap or a level jump. A zero asOf or non-positive anchor leaves that axis
// untouched. Seeding a pool that already has observations is a no-op. It returns the
// number of points held for pool afterwards.
func (o *HistoricalOracle) Seed(pool string, history []types.PriceData, anchor float64, asOf time.Time) (int, error) {
	if len(history) == 0 {
		return 0, nil
	}
	series := append([]types.PriceData(nil), history...)
	sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })

	last := series[len(series)-1]
	if last.Price <= 0 || math.IsNaN(last.Price) || math.IsInf(last.Price, 0) {
		return 0, fmt.Errorf("%w: newest seed price %f", ErrInsufficientData, last.Price)
	}
	scale := 1.0
	if anchor > 0 {
		scale = anchor / last.Price
	}
	var shift time.Duration
	if !asOf.IsZero() {
		shift = asOf.Sub(last.Timestamp)
	}

	cutoff := last.Timestamp.Add(-o.cfg.Lookback)
	kept := make([]types.PriceData, 0, len(series))
	for _, p := range series {
		if p.Timestamp.Before(cutoff) || p.Price <= 0 {
			continue
		}
		if n := len(kept); n > 0 && !p.Timestamp.After(kept[n-1].Timestamp) {
			continue
		}
		kept = append(kept, types.PriceData{Timestamp: p.Timestamp, Price: p.Price * scale})
	}
	for i := range kept {
		kept[i].Timestamp = kept[i].Timestamp.Add(shift)
	}
	if len(kept) > o.cfg.MaxPoints {
		kept = kept[len(kept)-o.cfg.MaxPoints:]
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.prices[pool]) > 0 {
		return len(o.prices[pool]), nil
	}
	o.prices[pool] = kept

	oracleLogger.Info().
		Str("pool", pool).
		Int("points", len(kept)).
		Float64("scale", scale).
		Msg("Volatility history seeded")
	return len(kept), nil
}

// Points returns how many observations are held for pool.
func (o *HistoricalOracle) Points(pool string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.prices[pool])
}

// Estimate24H returns the daily volatility of the pool's observed prices, scaled by 1e18.
// The sampling frequency is inferred from the observations themselves.
func (o *HistoricalOracle) Estimate24H(_ context.Context, pool string, _ sdkmath.Int, _ int32) (sdkmath.Int, error) {
	o.mu.Lock()
	series := append([]types.PriceData(nil), o.prices[pool]...)
	o.mu.Unlock()

	if len(series) < o.cfg.MinPoints {
		oracleLogger.Debug().
			Str("pool", pool).
			Int("points", len(series)).
			Msg("Not enough history, using fallback volatility")
		return o.fallback, nil
	}

	span := series[len(series)-1].Timestamp.Sub(series[0].Timestamp)
	interval := span / time.Duration(len(series)-1)
	if interval <= 0 {
		return o.fallback, nil
	}
	sigma, err := CalculateVolatility(series, float64(horizon)/float64(interval))
	if errors.Is(err, ErrInsufficientData) {
		return o.fallback, nil
	}
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to estimate volatility for %s: %w", pool, err)
	}

	wad, err := utils.SigmaToWad(sigma)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to scale volatility %f: %w", sigma, err)
	}
	oracleLogger.Debug().
		Str("pool", pool).
		Int("points", len(series)).
		Dur("interval", interval).
		Float64("sigma", sigma).
		Msg("Volatility estimated")
	return wad, nil
}
