package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/elys-network/alm/internal/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// VaultSummary represents high-level vault statistics
type VaultSummary struct {
	TotalRebalances int        `json:"total_rebalances"`
	Recenters       int        `json:"recenters"`
	Tilts           int        `json:"tilts"`
	Deposits        int        `json:"deposits"`
	Withdrawals     int        `json:"withdrawals"`
	TotalCycles     int        `json:"total_cycles"`
	LastRebalanceAt *time.Time `json:"last_rebalance_at,omitempty"`
	LastLiquidityAt *time.Time `json:"last_liquidity_at,omitempty"`
}

// TokenIncentives aggregates what keepers were paid in one token.
type TokenIncentives struct {
	Token        types.TokenIndex `json:"token"`
	TotalReward  sdkmath.Int      `json:"total_reward"`
	TotalGasUsed uint64           `json:"total_gas_used"`
	PaidCalls    int              `json:"paid_calls"`
	RewardPerGas string           `json:"reward_per_gas"` // total reward / total gas, 6 decimals
}

// IncentiveMetrics represents aggregated keeper incentive data
type IncentiveMetrics struct {
	Tokens     [2]TokenIncentives `json:"tokens"`
	TotalCalls int                `json:"total_calls"`
}

const rebalanceColumns = `
	event_id, event_timestamp, caller, branch, urgency, ratio_bps,
	total_supply::TEXT, inventory0::TEXT, inventory1::TEXT,
	main_lower, main_upper, tilt_lower, tilt_upper, tick, epoch,
	reward_token, reward::TEXT, gas_used, budget0::TEXT, budget1::TEXT`

type rowScanner interface {
	Scan(dest ...any) error
}

func intString(x sdkmath.Int) string {
	if x.IsNil() {
		return "0"
	}
	return x.String()
}

func parseInt(column, s string) (sdkmath.Int, error) {
	x, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("column %s holds %q, not an integer", column, s)
	}
	return x, nil
}

func scanRebalance(row rowScanner) (types.RebalanceEvent, error) {
	var e types.RebalanceEvent
	var branch string
	var urgency, ratio, epoch, gasUsed int64
	var rewardToken int16
	var totalSupply, inventory0, inventory1, reward, budget0, budget1 string

	err := row.Scan(
		&e.ID, &e.Timestamp, &e.Caller, &branch, &urgency, &ratio,
		&totalSupply, &inventory0, &inventory1,
		&e.Main.Lower, &e.Main.Upper, &e.Tilt.Lower, &e.Tilt.Upper, &e.Tick, &epoch,
		&rewardToken, &reward, &gasUsed, &budget0, &budget1,
	)
	if err != nil {
		return e, err
	}

	e.Branch = types.RebalanceBranch(branch)
	e.Urgency, e.Ratio, e.Epoch, e.GasUsed = uint64(urgency), uint64(ratio), uint64(epoch), uint64(gasUsed)
	e.RewardToken = types.TokenIndex(rewardToken)
	for _, f := range []struct {
		column string
		raw    string
		dst    *sdkmath.Int
	}{
		{"total_supply", totalSupply, &e.TotalSupply},
		{"inventory0", inventory0, &e.Inventory0},
		{"inventory1", inventory1, &e.Inventory1},
		{"reward", reward, &e.Reward},
		{"budget0", budget0, &e.Budgets[0]},
		{"budget1", budget1, &e.Budgets[1]},
	} {
		if *f.dst, err = parseInt(f.column, f.raw); err != nil {
			return e, err
		}
	}
	return e, nil
}

// GetRecentRebalances returns the newest rebalance events, optionally only those that
// took one of branches.
func GetRecentRebalances(limit int, branches ...types.RebalanceBranch) ([]types.RebalanceEvent, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	var rows *sql.Rows
	var err error
	if len(branches) == 0 {
		rows, err = DB.Query(`SELECT `+rebalanceColumns+` FROM rebalance_events ORDER BY event_timestamp DESC LIMIT $1`, limit)
	} else {
		names := make([]string, len(branches))
		for i, b := range branches {
			names[i] = string(b)
		}
		rows, err = DB.Query(`SELECT `+rebalanceColumns+` FROM rebalance_events WHERE branch = ANY($2) ORDER BY event_timestamp DESC LIMIT $1`, limit, pq.Array(names))
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent rebalances")
		return nil, fmt.Errorf("failed to query recent rebalances: %w", err)
	}
	defer rows.Close()

	events := make([]types.RebalanceEvent, 0, limit)
	for rows.Next() {
		e, err := scanRebalance(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan rebalance row")
			continue // Skip this row and continue with others
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(events)).Int("limit", limit).Msg("Retrieved recent rebalances")
	return events, nil
}

// GetRebalanceByID retrieves a specific rebalance event by its ID
func GetRebalanceByID(id string) (*types.RebalanceEvent, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	row := DB.QueryRow(`SELECT `+rebalanceColumns+` FROM rebalance_events WHERE event_id = $1`, id)
	e, err := scanRebalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rebalance %s", ErrNotFound, id)
	}
	if err != nil {
		log.Error().Err(err).Str("event_id", id).Msg("Failed to query rebalance by ID")
		return nil, fmt.Errorf("failed to query rebalance by ID: %w", err)
	}
	return &e, nil
}

// GetVaultSummary retrieves high-level vault statistics
func GetVaultSummary() (*VaultSummary, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	summary := &VaultSummary{}

	var lastRebalance, lastLiquidity sql.NullTime
	err := DB.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE branch = 'RECENTER'),
			MAX(event_timestamp)
		FROM rebalance_events
	`).Scan(&summary.TotalRebalances, &summary.Recenters, &lastRebalance)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise rebalances: %w", err)
	}
	summary.Tilts = summary.TotalRebalances - summary.Recenters

	err = DB.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE action = 'DEPOSIT'),
			COUNT(*) FILTER (WHERE action = 'WITHDRAW'),
			MAX(event_timestamp)
		FROM liquidity_events
	`).Scan(&summary.Deposits, &summary.Withdrawals, &lastLiquidity)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise liquidity events: %w", err)
	}

	if lastRebalance.Valid {
		summary.LastRebalanceAt = &lastRebalance.Time
	}
	if lastLiquidity.Valid {
		summary.LastLiquidityAt = &lastLiquidity.Time
	}

	err = DB.QueryRow(`SELECT current_cycle FROM cycle_counter WHERE id = 1`).Scan(&summary.TotalCycles)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Error().Err(err).Msg("Failed to get total cycle count")
	}

	log.Debug().Int("rebalances", summary.TotalRebalances).Int("totalCycles", summary.TotalCycles).Msg("Retrieved vault summary")
	return summary, nil
}

// GetIncentiveMetrics aggregates keeper rewards per token.
func GetIncentiveMetrics() (*IncentiveMetrics, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	metrics := &IncentiveMetrics{}
	for i := range metrics.Tokens {
		metrics.Tokens[i] = TokenIncentives{Token: types.TokenIndex(i), TotalReward: sdkmath.ZeroInt(), RewardPerGas: "0"}
	}

	rows, err := DB.Query(`
		SELECT
			reward_token,
			COALESCE(SUM(reward), 0)::TEXT,
			COALESCE(SUM(gas_used), 0),
			COUNT(*) FILTER (WHERE reward > 0),
			COUNT(*)
		FROM rebalance_events
		GROUP BY reward_token
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get incentive metrics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var token int16
		var reward string
		var gasUsed int64
		var paid, calls int
		if err := rows.Scan(&token, &reward, &gasUsed, &paid, &calls); err != nil {
			return nil, fmt.Errorf("failed to scan incentive row: %w", err)
		}
		if !types.TokenIndex(token).Valid() {
			log.Warn().Int16("token", token).Msg("Ignoring incentives in unknown reward token")
			continue
		}
		total, err := parseInt("reward", reward)
		if err != nil {
			return nil, err
		}

		t := &metrics.Tokens[token]
		t.TotalReward = total
		t.TotalGasUsed = uint64(gasUsed)
		t.PaidCalls = paid
		if gasUsed > 0 {
			t.RewardPerGas = decimal.NewFromBigInt(total.BigInt(), 0).DivRound(decimal.NewFromInt(gasUsed), 6).String()
		}
		metrics.TotalCalls += calls
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("totalCalls", metrics.TotalCalls).Msg("Retrieved incentive metrics")
	return metrics, nil
}
