package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/alm/internal/fees"
	"github.com/elys-network/alm/internal/logger"
	"github.com/elys-network/alm/internal/types"
	"github.com/elys-network/alm/internal/vault"
)

// DefaultMaxFailures is how many consecutive failed cycles mark the keeper unhealthy.
const DefaultMaxFailures = 3

// Rebalancer is the part of the vault the keeper drives.
type Rebalancer interface {
	Rebalance(ctx context.Context, caller string, rewardToken types.TokenIndex) (types.RebalanceEvent, error)
	Price(ctx context.Context) (sdkmath.Int, int32, error)
	State() vault.Checkpoint
}

// PriceObserver is fed the pool price at the start of every cycle.
type PriceObserver interface {
	Observe(pool string, at time.Time, sqrtPriceX96 sdkmath.Int) error
}

// Keeper calls Rebalance on a schedule and earns the vault's incentive for it.
type Keeper struct {
	logger zerolog.Logger

	vault          Rebalancer
	caller         string
	pool           string
	observer       PriceObserver
	nextCycle      func() (int, error)
	saveCheckpoint func(vault.Checkpoint) error
	now            func() time.Time
	maxFailures    int

	mu     sync.RWMutex
	status Status
	cycles int
}

// Config holds the configuration for creating a new Keeper instance
type Config struct {
	Vault          Rebalancer
	Caller         string                       // account the incentive is paid to
	Pool           string                       // name the observer files prices under
	Observer       PriceObserver                // optional
	NextCycle      func() (int, error)          // optional persistent cycle counter
	SaveCheckpoint func(vault.Checkpoint) error // optional
	Now            func() time.Time             // optional, defaults to time.Now
	MaxFailures    int                          // optional, defaults to DefaultMaxFailures
}

// Status is the keeper's health as reported by the API and the gRPC health service.
type Status struct {
	Healthy             bool                  `json:"healthy"`
	CycleNumber         int                   `json:"cycle_number"`
	LastCycleID         string                `json:"last_cycle_id,omitempty"`
	LastCycleAt         time.Time             `json:"last_cycle_at,omitempty"`
	LastError           string                `json:"last_error,omitempty"`
	ConsecutiveFailures int                   `json:"consecutive_failures"`
	SkippedCycles       int                   `json:"skipped_cycles"`
	LastRebalance       *types.RebalanceEvent `json:"last_rebalance,omitempty"`
}

// New creates a keeper. It starts healthy.
func New(cfg Config) (*Keeper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}

	k := &Keeper{
		logger:         logger.GetForComponent("keeper"),
		vault:          cfg.Vault,
		caller:         cfg.Caller,
		pool:           cfg.Pool,
		observer:       cfg.Observer,
		nextCycle:      cfg.NextCycle,
		saveCheckpoint: cfg.SaveCheckpoint,
		now:            cfg.Now,
		maxFailures:    cfg.MaxFailures,
		status:         Status{Healthy: true},
	}
	if k.now == nil {
		k.now = time.Now
	}
	if k.maxFailures <= 0 {
		k.maxFailures = DefaultMaxFailures
	}
	if k.nextCycle == nil {
		k.nextCycle = func() (int, error) {
			k.cycles++
			return k.cycles, nil
		}
	}

	k.logger.Info().
		Str("caller", k.caller).
		Str("pool", k.pool).
		Int("maxFailures", k.maxFailures).
		Msg("Keeper created")
	return k, nil
}

func validateConfig(cfg Config) error {
	if cfg.Vault == nil {
		return fmt.Errorf("vault cannot be nil")
	}
	if cfg.Caller == "" {
		return fmt.Errorf("caller cannot be empty")
	}
	if cfg.Observer != nil && cfg.Pool == "" {
		return fmt.Errorf("pool name is required when a price observer is set")
	}
	return nil
}

// RunLoop runs a cycle immediately and then once per interval until ctx is cancelled.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().Dur("interval", interval).Msg("Starting keeper loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = k.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			_ = k.RunCycle(ctx)
		}
	}
}

// RunCycle observes the price, rebalances once and checkpoints the vault. A cycle that
// finds the vault locked is skipped, not failed.
func (k *Keeper) RunCycle(ctx context.Context) error {
	cycleStart := k.now()
	cycleID := uuid.New().String()
	cycleLogger := k.logger.With().Str("cycle_id", cycleID).Logger()

	cycleNumber, err := k.nextCycle()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to advance cycle counter")
		return k.fail(cycleID, cycleStart, 0, err)
	}
	cycleLogger = cycleLogger.With().Int("cycle", cycleNumber).Logger()
	cycleLogger.Info().Msg("--- Starting keeper cycle ---")

	if k.observer != nil {
		sqrtPrice, tick, err := k.vault.Price(ctx)
		if err != nil {
			cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to read pool price")
			return k.fail(cycleID, cycleStart, cycleNumber, err)
		}
		if err := k.observer.Observe(k.pool, cycleStart, sqrtPrice); err != nil {
			cycleLogger.Warn().Err(err).Int32("tick", tick).Msg("Failed to record price observation")
		}
	}

	rewardToken := PickRewardToken(k.vault.State().Ledger)
	event, err := k.vault.Rebalance(ctx, k.caller, rewardToken)
	if errors.Is(err, vault.ErrLocked) {
		cycleLogger.Warn().Msg("Vault is busy, skipping cycle")
		k.mu.Lock()
		k.status.SkippedCycles++
		k.status.CycleNumber = cycleNumber
		k.status.LastCycleID = cycleID
		k.status.LastCycleAt = cycleStart
		k.mu.Unlock()
		return nil
	}
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: rebalance failed")
		return k.fail(cycleID, cycleStart, cycleNumber, err)
	}

	if k.saveCheckpoint != nil {
		if err := k.saveCheckpoint(k.vault.State()); err != nil {
			cycleLogger.Error().Err(err).Msg("Failed to checkpoint vault state")
			return k.fail(cycleID, cycleStart, cycleNumber, err)
		}
	}

	k.mu.Lock()
	k.status = Status{
		Healthy:       true,
		CycleNumber:   cycleNumber,
		LastCycleID:   cycleID,
		LastCycleAt:   cycleStart,
		SkippedCycles: k.status.SkippedCycles,
		LastRebalance: &event,
	}
	k.mu.Unlock()

	cycleLogger.Info().
		Str("branch", string(event.Branch)).
		Uint64("urgency", event.Urgency).
		Str("reward", event.Reward.String()).
		Uint8("rewardToken", uint8(rewardToken)).
		Str("cycleDuration", k.now().Sub(cycleStart).String()).
		Msg("--- Keeper cycle completed ---")
	return nil
}

func (k *Keeper) fail(cycleID string, at time.Time, cycleNumber int, err error) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.status.ConsecutiveFailures++
	k.status.LastError = err.Error()
	k.status.LastCycleID = cycleID
	k.status.LastCycleAt = at
	if cycleNumber > 0 {
		k.status.CycleNumber = cycleNumber
	}
	if k.status.ConsecutiveFailures >= k.maxFailures && k.status.Healthy {
		k.status.Healthy = false
		k.logger.Error().
			Int("consecutiveFailures", k.status.ConsecutiveFailures).
			Msg("Keeper marked unhealthy")
	}
	return err
}

// Status returns a copy of the keeper's health.
func (k *Keeper) Status() Status {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.status
}

// Healthy reports whether fewer than MaxFailures cycles in a row have failed.
func (k *Keeper) Healthy() bool {
	return k.Status().Healthy
}

// PickRewardToken asks to be paid in the token with the larger budget, token0 on a tie.
func PickRewardToken(ledger fees.Ledger) types.TokenIndex {
	if ledger.Budget(types.Token1).GT(ledger.Budget(types.Token0)) {
		return types.Token1
	}
	return types.Token0
}
