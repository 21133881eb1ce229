/*

This file contains the tunable parameters of the market simulation that drives the vault
in tests and in the demo binary.

*/

package types

import "time"

// SimulationParameters shapes the simulated market the vault runs against.
type SimulationParameters struct {
	// --- Pool ---
	TickSpacing int32 `json:"tick_spacing"` // granularity of position bounds
	InitialTick int32 `json:"initial_tick"` // starting price, 1.0001^tick token1 per token0

	// --- Price process ---
	StepInterval   time.Duration `json:"step_interval"`   // simulated time per step
	TickVolatility float64       `json:"tick_volatility"` // stddev of the per-step tick move
	Seed           int64         `json:"seed"`            // random walk seed, fixed for reproducibility

	// --- Earnings ---
	VolumePerStep int64 `json:"volume_per_step"` // swap volume per step in token0 base units
	SwapFeeBps    int64 `json:"swap_fee_bps"`    // pool fee tier
	ReserveAPRBps int64 `json:"reserve_apr_bps"` // lending yield on reserves

	// --- Execution ---
	GasLimit uint64  `json:"gas_limit"` // block gas limit reported to the vault
	Sigma    float64 `json:"sigma"`     // daily volatility the oracle falls back to
}
