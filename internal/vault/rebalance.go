package vault

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/elys-network/alm/internal/fees"
	"github.com/elys-network/alm/internal/fullmath"
	"github.com/elys-network/alm/internal/position"
	"github.com/elys-network/alm/internal/rangemath"
	"github.com/elys-network/alm/internal/types"
)

// Rebalance is the permissionless maintenance call. It either tilts an unbalanced
// inventory back towards 50/50 with a one-spacing order next to the price, or recenters
// the main range, then pays caller in rewardToken out of the maintenance budget.
func (v *Vault) Rebalance(ctx context.Context, caller string, rewardToken types.TokenIndex) (types.RebalanceEvent, error) {
	if caller == "" {
		return types.RebalanceEvent{}, fmt.Errorf("%w: caller cannot be empty", ErrInvalidInput)
	}
	if !rewardToken.Valid() {
		return types.RebalanceEvent{}, fmt.Errorf("%w: reward token %d", ErrInvalidInput, rewardToken)
	}

	gasStart := v.env.GasConsumed()
	var event types.RebalanceEvent
	err := v.run(ctx, "rebalance", func(c *call) error {
		if err := v.loadPrice(c); err != nil {
			return err
		}
		now := v.env.Now()
		urgency := Urgency(c.state.LastRecenterTime, now)

		for _, i := range []types.TokenIndex{types.Token0, types.Token1} {
			if err := v.reserves[i].Poke(ctx); err != nil {
				return fmt.Errorf("failed to poke reserve%d: %w", i, err)
			}
			if _, err := v.skimReserve(c, i); err != nil {
				return err
			}
		}

		previousTilt, err := v.clearTilt(c)
		if err != nil {
			return err
		}

		if err := v.main(c).Poke(ctx); err != nil {
			return fmt.Errorf("failed to poke main position: %w", err)
		}
		inventory, _, err := v.computeInventory(c, false)
		if err != nil {
			return err
		}
		ratio, err := InventoryRatio(inventory.Amount0, inventory.Amount1, c.priceX96)
		if err != nil {
			return err
		}

		var branch types.RebalanceBranch
		switch {
		case ratio < RatioLow:
			branch = types.BranchTiltBelow
			if err := v.placeTilt(c, inventory, types.Token1); err != nil {
				return err
			}
		case ratio > RatioHigh:
			branch = types.BranchTiltAbove
			if err := v.placeTilt(c, inventory, types.Token0); err != nil {
				return err
			}
		default:
			branch = types.BranchRecenter
			if err := v.recenter(c, inventory); err != nil {
				return err
			}
			c.state.LastRecenterTime = uint32(now.Unix())
		}
		if branch != types.BranchRecenter && previousTilt == c.state.Tilt {
			urgency = 0
		}

		_, _, earned0, earned1, err := v.main(c).Withdraw(ctx, sdkmath.ZeroInt())
		if err != nil {
			return fmt.Errorf("failed to harvest main position fees: %w", err)
		}
		c.ledger.Skim(earned0, earned1)

		reward, gasUsed, err := v.settleIncentive(c, rewardToken, urgency, gasStart)
		if err != nil {
			return err
		}
		if reward.IsPositive() {
			if err := v.tokens[rewardToken].Transfer(ctx, v.account, caller, reward); err != nil {
				return fmt.Errorf("failed to pay incentive: %w", err)
			}
		}

		totalSupply, err := v.shares.TotalSupply(ctx)
		if err != nil {
			return fmt.Errorf("failed to read total supply: %w", err)
		}
		event = types.RebalanceEvent{
			ID:          uuid.New().String(),
			Timestamp:   now,
			Caller:      caller,
			Branch:      branch,
			Urgency:     urgency,
			Ratio:       ratio,
			TotalSupply: totalSupply,
			Inventory0:  inventory.Amount0,
			Inventory1:  inventory.Amount1,
			Main:        c.state.Main,
			Tilt:        c.state.Tilt,
			Tick:        c.tick,
			Epoch:       c.ledger.Epoch,
			RewardToken: rewardToken,
			Reward:      reward,
			GasUsed:     gasUsed,
			Budgets:     c.ledger.Budgets,
		}
		return nil
	})
	if err != nil {
		v.logger.Warn().Err(err).Str("caller", caller).Msg("Rebalance failed")
		return types.RebalanceEvent{}, err
	}

	v.logger.Info().
		Str("branch", string(event.Branch)).
		Uint64("urgency", event.Urgency).
		Uint64("ratio", event.Ratio).
		Str("main", event.Main.String()).
		Str("tilt", event.Tilt.String()).
		Str("reward", event.Reward.String()).
		Uint64("gasUsed", event.GasUsed).
		Msg("Rebalance completed")
	v.sink.OnRebalance(ctx, event)

	return event, nil
}

// clearTilt fully withdraws the tilt order, skims its fees and empties the slot. It
// returns the range the order occupied.
func (v *Vault) clearTilt(c *call) (types.Range, error) {
	tilt := v.tilt(c)
	previous := tilt.Range
	liquidity, err := tilt.Liquidity(c.ctx)
	if err != nil {
		return previous, fmt.Errorf("failed to read tilt liquidity: %w", err)
	}
	_, _, earned0, earned1, err := tilt.Withdraw(c.ctx, liquidity)
	if err != nil {
		return previous, fmt.Errorf("failed to withdraw tilt order: %w", err)
	}
	c.ledger.Skim(earned0, earned1)
	c.state.Tilt = types.Range{}
	if liquidity.IsZero() {
		return types.Range{}, nil
	}
	return previous, nil
}

// tiltRange is the one-spacing range that holds only sell token at the current tick:
// strictly above the price for token0, at or below it for token1.
func tiltRange(tick, spacing int32, sell types.TokenIndex) types.Range {
	floor := rangemath.Floor(tick, spacing)
	if sell == types.Token0 {
		return types.Range{Lower: floor + spacing, Upper: floor + 2*spacing}
	}
	return types.Range{Lower: floor - spacing, Upper: floor}
}

// placeTilt offers half of the overweight token's excess value at the adjacent tick
// spacing, capped by capital not locked in the main range.
func (v *Vault) placeTilt(c *call, inventory types.Inventory, sell types.TokenIndex) error {
	var excess, available sdkmath.Int
	if sell == types.Token1 {
		value0, err := fullmath.MulDiv(inventory.Amount0, c.priceX96, fullmath.Q96)
		if err != nil {
			return overflowErr("tilt size", err)
		}
		excess = fullmath.SubFloor(inventory.Amount1, value0)
		available = inventory.AvailableForTilt1
	} else {
		value1, err := fullmath.MulDiv(inventory.Amount1, fullmath.Q96, c.priceX96)
		if err != nil {
			return overflowErr("tilt size", err)
		}
		excess = fullmath.SubFloor(inventory.Amount0, value1)
		available = inventory.AvailableForTilt0
	}
	amount := sdkmath.MinInt(excess.QuoRaw(2), available)

	bounds := tiltRange(c.tick, v.market.TickSpacing(), sell)
	lo, hi := rangemath.UsableBounds(v.market.TickSpacing())
	if bounds.Lower < lo || bounds.Upper > hi {
		v.logger.Warn().Int32("tick", c.tick).Msg("Tilt order would leave the tick domain, skipping")
		return nil
	}

	amount, err := v.fund(c, sell, amount)
	if err != nil {
		return err
	}
	order := position.New(v.market, bounds)
	var size sdkmath.Int
	if sell == types.Token1 {
		size, err = order.SizeForAmount1(amount)
	} else {
		size, err = order.SizeForAmount0(amount)
	}
	if err != nil {
		return overflowErr("size tilt order", err)
	}
	if size.IsZero() {
		return nil
	}
	if _, _, err := order.Deposit(c.ctx, size); err != nil {
		return err
	}
	c.state.Tilt = bounds

	v.logger.Debug().
		Str("range", bounds.String()).
		Str("amount", amount.String()).
		Str("liquidity", size.String()).
		Msg("Tilt order placed")
	return nil
}

// settleIncentive advances the reward epoch, pays the caller for the gas this call used
// and clamps both budgets to BudgetCapMultiplier blocks at the average reward rate.
// Trimming a budget marks the vault sustainable. The bound budget <= K * rewardPerGas *
// gasLimit therefore only holds once RewardWindowSize epochs have been recorded; during
// the first epochs budgets may sit above it.
func (v *Vault) settleIncentive(c *call, rewardToken types.TokenIndex, urgency, gasStart uint64) (sdkmath.Int, uint64, error) {
	gasLimit := v.env.GasLimit()
	epoch := c.ledger.AdvanceEpoch()
	for _, i := range []types.TokenIndex{types.Token0, types.Token1} {
		if err := c.ledger.PushRewardRate(i, epoch, c.ledger.ObservedRate(i, gasLimit)); err != nil {
			return sdkmath.ZeroInt(), 0, overflowErr("reward rate", err)
		}
	}

	gasUsed := BaseTxGas + v.env.GasConsumed() - gasStart
	reward, err := c.ledger.PayIncentive(rewardToken, gasUsed, urgency)
	if err != nil {
		return sdkmath.ZeroInt(), 0, overflowErr("incentive", err)
	}

	// The cap tracks the window average, so it only binds once the window is full.
	if epoch < fees.RewardWindowSize {
		return reward, gasUsed, nil
	}
	for _, i := range []types.TokenIndex{types.Token0, types.Token1} {
		rewardPerGas, err := c.ledger.RewardPerGas(i, fees.UrgencyScale)
		if err != nil {
			return sdkmath.ZeroInt(), 0, overflowErr("incentive", err)
		}
		trimmed, err := c.ledger.ClampBudget(i, rewardPerGas, gasLimit)
		if err != nil {
			return sdkmath.ZeroInt(), 0, err
		}
		if trimmed.IsPositive() {
			c.state.Sustainable = true
		}
	}
	return reward, gasUsed, nil
}
