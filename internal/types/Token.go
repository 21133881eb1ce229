/*

This is a custom type for the two tokens a vault holds, plus the price history the
volatility estimator reads.

*/

package types

import "time"

// TokenIndex selects one side of the pair.
type TokenIndex uint8

const (
	Token0 TokenIndex = 0
	Token1 TokenIndex = 1
)

// Valid reports whether the index names one of the two tokens.
func (i TokenIndex) Valid() bool {
	return i == Token0 || i == Token1
}

type Token struct {
	Symbol    string `json:"symbol"`    // e.g., "WETH"
	Denom     string `json:"denom"`     // e.g., "uweth", used for sdk.Coin rendering
	Precision int    `json:"precision"` // e.g., 18 = 1 token is 10^18 base units
}

// PriceData holds historical price info
type PriceData struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"` // token1 per token0
}
