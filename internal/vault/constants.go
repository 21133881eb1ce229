package vault

import "time"

const (
	// RecenteringInterval is how long a main range is expected to last. Urgency reaches
	// fees.UrgencyScale once this much time has passed since the last recenter.
	RecenteringInterval = 24 * time.Hour

	// MinWidth and MaxWidth bound the main range, in ticks.
	MinWidth int32 = 402
	MaxWidth int32 = 27728

	// RatioScale expresses the inventory ratio in basis points.
	RatioScale = 10_000
	// RatioLow and RatioHigh delimit the balanced band; outside it a rebalance tilts
	// instead of recentering.
	RatioLow  = 4_900
	RatioHigh = 5_100

	// BaseTxGas is charged on top of measured gas to cover the transaction itself.
	BaseTxGas uint64 = 21_000
)

// Volatility thresholds on the 1e18-scaled daily sigma. At or below SigmaLow the range
// sits at MinWidth; at or above SigmaHigh it sits at MaxWidth.
const (
	SigmaLow        = 9_949_178_361_900_000
	SigmaHigh       = 375_004_540_360_000_000
	SigmaConfidence = 2
	sigmaOne        = 1_000_000_000_000_000_000
)
