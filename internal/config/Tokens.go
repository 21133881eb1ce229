/*

This file lists the tokens the vault knows how to render. A pair is chosen with the
VAULT_PAIR environment variable, e.g. "ATOM/USDC", and both symbols must appear here.

Precision is the number of decimals one whole token has in base units.

*/

package config

import (
	"fmt"
	"strings"

	"github.com/elys-network/alm/internal/types"
)

var (
	KnownTokens = map[string]types.Token{
		"ATOM":  {Symbol: "ATOM", Denom: "uatom", Precision: 6},
		"OSMO":  {Symbol: "OSMO", Denom: "uosmo", Precision: 6},
		"TIA":   {Symbol: "TIA", Denom: "utia", Precision: 6},
		"ELYS":  {Symbol: "ELYS", Denom: "uelys", Precision: 6},
		"USDC":  {Symbol: "USDC", Denom: "uusdc", Precision: 6},
		"USDT":  {Symbol: "USDT", Denom: "uusdt", Precision: 6},
		"WETH":  {Symbol: "WETH", Denom: "wei", Precision: 18},
		"WBTC":  {Symbol: "WBTC", Denom: "sat", Precision: 8},
		"STARS": {Symbol: "STARS", Denom: "ustars", Precision: 6},
		"NTRN":  {Symbol: "NTRN", Denom: "untrn", Precision: 6},
	}
)

// ParsePair resolves "BASE/QUOTE" into token0 and token1.
func ParsePair(pair string) ([2]types.Token, error) {
	var out [2]types.Token
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(pair)), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return out, fmt.Errorf("pair must look like BASE/QUOTE, got %q", pair)
	}
	if parts[0] == parts[1] {
		return out, fmt.Errorf("pair %q repeats a token", pair)
	}
	for i, symbol := range parts {
		token, ok := KnownTokens[symbol]
		if !ok {
			return out, fmt.Errorf("unknown token %q in pair %q", symbol, pair)
		}
		out[i] = token
	}
	return out, nil
}
