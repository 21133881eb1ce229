package simulations

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/utils"
)

// FixedOracle reports the same daily volatility for every pool.
type FixedOracle struct {
	Sigma sdkmath.Int // 1e18 scale
}

// NewFixedOracle converts a daily volatility such as 0.05 into a FixedOracle.
func NewFixedOracle(sigma float64) (FixedOracle, error) {
	scaled, err := utils.SigmaToWad(sigma)
	if err != nil {
		return FixedOracle{}, fmt.Errorf("invalid sigma %f: %w", sigma, err)
	}
	return FixedOracle{Sigma: scaled}, nil
}

func (o FixedOracle) Estimate24H(_ context.Context, _ string, _ sdkmath.Int, _ int32) (sdkmath.Int, error) {
	return o.Sigma, nil
}
