/*

This file contains the inventory types: what the vault owns, where it sits, and the
packed bookkeeping that survives between calls.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// Inventory is the vault's total holdings of each token at the current price.
type Inventory struct {
	Amount0 sdkmath.Int `json:"amount0"`
	Amount1 sdkmath.Int `json:"amount1"`

	// Capital that can fund a tilt order without touching the main range.
	AvailableForTilt0 sdkmath.Int `json:"available_for_tilt0"`
	AvailableForTilt1 sdkmath.Int `json:"available_for_tilt1"`
}

// InventoryBreakdown itemises an inventory by where each amount currently sits.
type InventoryBreakdown struct {
	Main     [2]sdkmath.Int `json:"main"`     // collectable from the main range
	Tilt     [2]sdkmath.Int `json:"tilt"`     // collectable from the tilt order
	Reserves [2]sdkmath.Int `json:"reserves"` // lent out in yield-bearing reserves
	Idle     [2]sdkmath.Int `json:"idle"`     // held directly, net of the maintenance budget
}

// Total sums every bucket for one token.
func (b InventoryBreakdown) Total(i TokenIndex) sdkmath.Int {
	return b.Main[i].Add(b.Tilt[i]).Add(b.Reserves[i]).Add(b.Idle[i])
}
