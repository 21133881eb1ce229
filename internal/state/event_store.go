// ./internal/state/event_store.go
package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/alm/internal/types"
)

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

// EventStore persists every committed vault event. It is a vault.EventSink; failures are
// logged rather than returned because the vault has already committed.
type EventStore struct{}

func (EventStore) OnDeposit(_ context.Context, event types.LiquidityEvent) {
	if err := SaveLiquidityEvent(event); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to persist deposit event")
	}
}

func (EventStore) OnWithdraw(_ context.Context, event types.LiquidityEvent) {
	if err := SaveLiquidityEvent(event); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to persist withdrawal event")
	}
}

func (EventStore) OnRebalance(_ context.Context, event types.RebalanceEvent) {
	if err := SaveRebalanceEvent(event); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to persist rebalance event")
	}
}

// isDuplicate reports whether err is a primary key conflict. Saving an event twice is a
// no-op.
func isDuplicate(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// SaveRebalanceEvent inserts one rebalance record.
func SaveRebalanceEvent(e types.RebalanceEvent) error {
	if DB == nil {
		return ErrNotInitialized
	}

	query := `
		INSERT INTO rebalance_events (
			event_id, event_timestamp, caller, branch, urgency, ratio_bps,
			total_supply, inventory0, inventory1,
			main_lower, main_upper, tilt_lower, tilt_upper, tick, epoch,
			reward_token, reward, gas_used, budget0, budget1
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20);
	`
	_, err := DB.Exec(
		query,
		e.ID, e.Timestamp, e.Caller, string(e.Branch), int64(e.Urgency), int64(e.Ratio),
		intString(e.TotalSupply), intString(e.Inventory0), intString(e.Inventory1),
		e.Main.Lower, e.Main.Upper, e.Tilt.Lower, e.Tilt.Upper, e.Tick, int64(e.Epoch),
		int16(e.RewardToken), intString(e.Reward), int64(e.GasUsed), intString(e.Budgets[0]), intString(e.Budgets[1]),
	)
	if isDuplicate(err) {
		log.Warn().Str("event_id", e.ID).Msg("Rebalance event already saved")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to save rebalance event: %w", err)
	}

	log.Debug().Str("event_id", e.ID).Str("branch", string(e.Branch)).Msg("Rebalance event saved to database")
	return nil
}

// SaveLiquidityEvent inserts one deposit or withdrawal record.
func SaveLiquidityEvent(e types.LiquidityEvent) error {
	if DB == nil {
		return ErrNotInitialized
	}

	query := `
		INSERT INTO liquidity_events (
			event_id, event_timestamp, action, owner, shares, amount0, amount1, total_supply
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := DB.Exec(
		query,
		e.ID, e.Timestamp, string(e.Action), e.Owner,
		intString(e.Shares), intString(e.Amount0), intString(e.Amount1), intString(e.TotalSupply),
	)
	if isDuplicate(err) {
		log.Warn().Str("event_id", e.ID).Msg("Liquidity event already saved")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to save liquidity event: %w", err)
	}

	log.Debug().Str("event_id", e.ID).Str("action", string(e.Action)).Msg("Liquidity event saved to database")
	return nil
}
