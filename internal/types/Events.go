/*

This file contains the records emitted by the vault after each successful state change.
They are what the keeper logs, the metrics layer counts and the database keeps.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// RebalanceBranch names the action a rebalance took.
type RebalanceBranch string

const (
	BranchTiltBelow RebalanceBranch = "TILT_BELOW" // token1 heavy: sell token1 below the price
	BranchTiltAbove RebalanceBranch = "TILT_ABOVE" // token0 heavy: sell token0 above the price
	BranchRecenter  RebalanceBranch = "RECENTER"
)

// RebalanceEvent summarises one rebalance call.
type RebalanceEvent struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Caller      string          `json:"caller"`
	Branch      RebalanceBranch `json:"branch"`
	Urgency     uint64          `json:"urgency"` // basis points of the recentering interval elapsed
	Ratio       uint64          `json:"ratio"`   // token0 share of inventory value, basis points
	TotalSupply sdkmath.Int     `json:"total_supply"`
	Inventory0  sdkmath.Int     `json:"inventory0"`
	Inventory1  sdkmath.Int     `json:"inventory1"`

	Main  Range  `json:"main"`
	Tilt  Range  `json:"tilt"`
	Tick  int32  `json:"tick"`
	Epoch uint64 `json:"epoch"`

	RewardToken TokenIndex     `json:"reward_token"`
	Reward      sdkmath.Int    `json:"reward"`
	GasUsed     uint64         `json:"gas_used"`
	Budgets     [2]sdkmath.Int `json:"budgets"` // after payout and clamping
}

// LiquidityAction distinguishes deposits from withdrawals.
type LiquidityAction string

const (
	ActionDeposit  LiquidityAction = "DEPOSIT"
	ActionWithdraw LiquidityAction = "WITHDRAW"
)

// LiquidityEvent records a share mint or burn.
type LiquidityEvent struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Action      LiquidityAction `json:"action"`
	Owner       string          `json:"owner"`
	Shares      sdkmath.Int     `json:"shares"`
	Amount0     sdkmath.Int     `json:"amount0"`
	Amount1     sdkmath.Int     `json:"amount1"`
	TotalSupply sdkmath.Int     `json:"total_supply"` // after the action
}

// Receipt is the caller-facing result of a deposit or withdrawal.
type Receipt struct {
	Shares  sdkmath.Int     `json:"shares"`
	Amount0 sdkmath.Int     `json:"amount0"`
	Amount1 sdkmath.Int     `json:"amount1"`
	Coins   []sdktypes.Coin `json:"coins,omitempty"` // amounts rendered with token denoms
}
