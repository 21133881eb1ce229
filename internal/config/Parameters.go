/*

This file contains the default parameters of the simulated market and the volatility
oracle the demo binary runs the vault against.

The market is a stand-in for a live venue: its job is to move the price often enough that
the vault tilts, recenters and earns, so every value favours visible activity over realism.

*/

package config

import (
	"time"

	"github.com/elys-network/alm/internal/analyzer"
	"github.com/elys-network/alm/internal/types"
)

// SimulationParameters drive the simulated market. LoadConfig applies SIM_* overrides.
var SimulationParameters = types.SimulationParameters{
	// --- Pool ---
	TickSpacing: 60, // The 0.3% fee tier spacing.
	// Rationale: Fine enough that one-spacing tilt orders sit close to the price,
	// coarse enough that a 402-tick minimum width still spans several spacings.

	InitialTick: 0, // Start at a price of 1.

	// --- Price process ---
	StepInterval: 5 * time.Minute, // One step per 5 simulated minutes.

	TickVolatility: 15, // Stddev of the per-step tick move.
	// Rationale: 15 ticks per 5 minutes is roughly 2.5% daily volatility, below
	// the 5% fallback, so early ranges start wide and narrow as history builds.

	Seed: 42, // Fixed so runs are reproducible.

	// --- Earnings ---
	VolumePerStep: 50_000_000_000, // 50,000 whole tokens of a 6-decimal asset per step.
	SwapFeeBps:    30,
	ReserveAPRBps: 400, // 4% lending yield on idle capital.

	// --- Execution ---
	GasLimit: 30_000_000,
	Sigma:    0.05, // Daily volatility the fixed oracle reports.
}

// OracleParameters bound the historical volatility oracle.
var OracleParameters = analyzer.OracleConfig{
	Lookback: 7 * 24 * time.Hour, // One week of keeper observations.
	// Rationale: Long enough to smooth a single volatile day, short enough to follow
	// a regime change within days.

	MaxPoints: 2016, // A week of 5-minute observations.

	MinPoints: 12,
	// Rationale: Below a dozen returns the estimate is mostly noise; the fallback is
	// the safer width.

	FallbackSigma: 0.05,
}

// loadSimulationOverrides applies SIM_SEED, SIM_TICK_VOLATILITY and SIM_SIGMA.
func loadSimulationOverrides(p *types.SimulationParameters) error {
	var err error
	if p.Seed, err = getEnvAsInt64OrDefault("SIM_SEED", p.Seed); err != nil {
		return err
	}
	if p.TickVolatility, err = getEnvAsFloat64OrDefault("SIM_TICK_VOLATILITY", p.TickVolatility); err != nil {
		return err
	}
	if p.Sigma, err = getEnvAsFloat64OrDefault("SIM_SIGMA", p.Sigma); err != nil {
		return err
	}
	OracleParameters.FallbackSigma = p.Sigma
	return nil
}
