package simulations

import (
	"fmt"
	"time"

	"github.com/elys-network/alm/internal/types"
)

// VaultAccount is the account a simulated vault holds its tokens, positions and
// reserve deposits under.
const VaultAccount = "alm-vault"

// Market bundles every collaborator a vault needs for one token pair.
type Market struct {
	World    *World
	Tokens   [2]*Token
	Pool     *Pool
	Reserves [2]*Reserve
	Shares   *ShareLedger
	Oracle   FixedOracle
	Driver   *Driver
}

// NewMarket builds a world with a pool, two reserves and a share ledger for pair, all
// owned by VaultAccount.
func NewMarket(start time.Time, pair [2]types.Token, params types.SimulationParameters) (*Market, error) {
	w := NewWorld(start)
	if params.GasLimit > 0 {
		w.SetGasLimit(params.GasLimit)
	}

	token0 := w.NewToken(pair[0].Symbol, pair[0].Denom)
	token1 := w.NewToken(pair[1].Symbol, pair[1].Denom)
	name := fmt.Sprintf("%s/%s", pair[0].Symbol, pair[1].Symbol)

	pool, err := w.NewPool(name, VaultAccount, token0, token1, params.TickSpacing, params.InitialTick)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool %s: %w", name, err)
	}
	oracle, err := NewFixedOracle(params.Sigma)
	if err != nil {
		return nil, err
	}

	m := &Market{
		World:  w,
		Tokens: [2]*Token{token0, token1},
		Pool:   pool,
		Reserves: [2]*Reserve{
			w.NewReserve("reserve-"+pair[0].Denom, VaultAccount, token0),
			w.NewReserve("reserve-"+pair[1].Denom, VaultAccount, token1),
		},
		Shares: w.NewShareLedger("alm-shares"),
		Oracle: oracle,
	}
	m.Driver = NewDriver(w, pool, m.Reserves, params)

	worldLogger.Info().
		Str("pool", name).
		Int32("tick", params.InitialTick).
		Int32("spacing", params.TickSpacing).
		Msg("Simulated market created")
	return m, nil
}
