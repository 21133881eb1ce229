package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/alm/internal/fees"
	"github.com/elys-network/alm/internal/logger"
	"github.com/elys-network/alm/internal/position"
	"github.com/elys-network/alm/internal/rangemath"
	"github.com/elys-network/alm/internal/types"
)

// Checkpoint is the complete persisted state of a vault.
type Checkpoint struct {
	State  PackedState `json:"state"`
	Ledger fees.Ledger `json:"ledger"`
}

// Config holds the collaborators a vault is built from.
type Config struct {
	Account  string // the vault's own address in the token and reserve ledgers
	Market   Market
	Tokens   [2]Token
	Reserves [2]Reserve
	Oracle   VolatilityOracle
	Shares   ShareLedger
	Env      Env
	Sink     EventSink   // optional
	Restore  *Checkpoint // optional; a fresh vault starts its recentering clock now
}

// Vault is the rebalancing and accounting engine for one token pair.
type Vault struct {
	logger zerolog.Logger

	account  string
	market   Market
	tokens   [2]Token
	reserves [2]Reserve
	oracle   VolatilityOracle
	shares   ShareLedger
	env      Env
	sink     EventSink

	store *stateStore
}

// call carries the working state of one locked entry point.
type call struct {
	ctx    context.Context
	state  PackedState
	ledger fees.Ledger

	sqrtPrice sdkmath.Int
	tick      int32
	priceX96  sdkmath.Int
}

// New creates a vault from its collaborators.
func New(cfg Config) (*Vault, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("vault configuration validation failed: %w", err)
	}

	v := &Vault{
		logger:   logger.GetForComponent("vault_core").With().Str("pool", cfg.Market.Name()).Logger(),
		account:  cfg.Account,
		market:   cfg.Market,
		tokens:   cfg.Tokens,
		reserves: cfg.Reserves,
		oracle:   cfg.Oracle,
		shares:   cfg.Shares,
		env:      cfg.Env,
		sink:     cfg.Sink,
	}
	if v.sink == nil {
		v.sink = MultiSink{}
	}

	if cfg.Restore != nil {
		v.store = newStateStore(cfg.Restore.State, cfg.Restore.Ledger)
	} else {
		v.store = newStateStore(PackedState{LastRecenterTime: uint32(cfg.Env.Now().Unix())}, fees.NewLedger())
	}

	state, _ := v.store.Snapshot()
	v.logger.Info().
		Str("account", v.account).
		Str("token0", v.tokens[0].Symbol()).
		Str("token1", v.tokens[1].Symbol()).
		Str("main", state.Main.String()).
		Time("lastRecenter", state.LastRecenter()).
		Msg("Vault created")

	return v, nil
}

func validateConfig(cfg Config) error {
	if cfg.Account == "" {
		return fmt.Errorf("vault account cannot be empty")
	}
	if cfg.Market == nil {
		return fmt.Errorf("market cannot be nil")
	}
	if cfg.Market.TickSpacing() <= 0 {
		return fmt.Errorf("market tick spacing must be positive, got %d", cfg.Market.TickSpacing())
	}
	for i := range cfg.Tokens {
		if cfg.Tokens[i] == nil {
			return fmt.Errorf("token%d cannot be nil", i)
		}
		if err := sdktypes.ValidateDenom(cfg.Tokens[i].Denom()); err != nil {
			return fmt.Errorf("token%d denom: %w", i, err)
		}
		if cfg.Reserves[i] == nil {
			return fmt.Errorf("reserve%d cannot be nil", i)
		}
	}
	if cfg.Oracle == nil {
		return fmt.Errorf("volatility oracle cannot be nil")
	}
	if cfg.Shares == nil {
		return fmt.Errorf("share ledger cannot be nil")
	}
	if cfg.Env == nil {
		return fmt.Errorf("environment cannot be nil")
	}
	return nil
}

// run executes fn under the vault lock. Either fn succeeds and its working state is
// stored, or the environment is reverted and nothing is written.
func (v *Vault) run(ctx context.Context, op string, fn func(c *call) error) (err error) {
	state, ledger, err := v.store.LoadAndLock()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	snapshot := v.env.Snapshot()
	committed := false
	defer func() {
		if !committed {
			v.env.RevertToSnapshot(snapshot)
			v.store.Abort()
		}
	}()
	defer recoverOverflow(&err)

	c := &call{ctx: ctx, state: state, ledger: ledger}
	if err = fn(c); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	v.store.StoreAndUnlock(c.state, c.ledger)
	committed = true
	return nil
}

// loadPrice reads the pool price into c. Withdraw never calls it: a pro-rata exit does
// not depend on the price, so an extreme or unreadable price cannot trap shareholders.
func (v *Vault) loadPrice(c *call) error {
	sqrtPrice, tick, err := v.market.Slot0(c.ctx)
	if err != nil {
		return fmt.Errorf("failed to read pool price: %w", err)
	}
	priceX96, err := priceX96(sqrtPrice)
	if err != nil {
		return err
	}
	c.sqrtPrice, c.tick, c.priceX96 = sqrtPrice, tick, priceX96
	return nil
}

func (v *Vault) main(c *call) position.Position {
	return position.New(v.market, c.state.Main)
}

func (v *Vault) tilt(c *call) position.Position {
	return position.New(v.market, c.state.Tilt)
}

func (v *Vault) coins(amount0, amount1 sdkmath.Int) []sdktypes.Coin {
	return []sdktypes.Coin{
		sdktypes.NewCoin(v.tokens[0].Denom(), amount0),
		sdktypes.NewCoin(v.tokens[1].Denom(), amount1),
	}
}

func checkAmount(name string, x sdkmath.Int) error {
	if x.IsNil() || x.IsNegative() {
		return fmt.Errorf("%w: %s must be a non-negative amount", ErrInvalidInput, name)
	}
	return nil
}

// Deposit adds liquidity in the current inventory ratio, pulling at most max0/max1 from
// owner and minting shares for the amounts actually taken.
func (v *Vault) Deposit(ctx context.Context, owner string, max0, max1, min0, min1 sdkmath.Int) (types.Receipt, error) {
	if owner == "" {
		return types.Receipt{}, fmt.Errorf("%w: owner cannot be empty", ErrInvalidInput)
	}
	for name, x := range map[string]sdkmath.Int{"amount0Max": max0, "amount1Max": max1, "amount0Min": min0, "amount1Min": min1} {
		if err := checkAmount(name, x); err != nil {
			return types.Receipt{}, err
		}
	}
	if max0.IsZero() && max1.IsZero() {
		return types.Receipt{}, fmt.Errorf("%w: both maximum amounts are zero", ErrInvalidInput)
	}

	var event types.LiquidityEvent
	err := v.run(ctx, "deposit", func(c *call) error {
		if err := v.loadPrice(c); err != nil {
			return err
		}
		if err := v.pokeAll(c); err != nil {
			return err
		}
		inventory, _, err := v.computeInventory(c, true)
		if err != nil {
			return err
		}
		totalSupply, err := v.shares.TotalSupply(ctx)
		if err != nil {
			return fmt.Errorf("failed to read total supply: %w", err)
		}

		shares, amount0, amount1, err := ComputeSharesForDeposit(totalSupply, inventory.Amount0, inventory.Amount1, max0, max1, c.sqrtPrice)
		if err != nil {
			return err
		}
		if shares.IsZero() {
			return fmt.Errorf("%w: deposit would mint zero shares", ErrInvalidInput)
		}
		if amount0.LT(min0) || amount1.LT(min1) {
			return fmt.Errorf("%w: got (%s, %s), minimum (%s, %s)", ErrSlippageExceeded, amount0, amount1, min0, min1)
		}

		if err := v.transferIn(ctx, owner, amount0, amount1); err != nil {
			return err
		}
		if err := v.shares.Mint(ctx, owner, shares); err != nil {
			return fmt.Errorf("failed to mint shares: %w", err)
		}

		event = types.LiquidityEvent{
			ID:          uuid.New().String(),
			Timestamp:   v.env.Now(),
			Action:      types.ActionDeposit,
			Owner:       owner,
			Shares:      shares,
			Amount0:     amount0,
			Amount1:     amount1,
			TotalSupply: totalSupply.Add(shares),
		}
		return nil
	})
	if err != nil {
		v.logger.Warn().Err(err).Str("owner", owner).Msg("Deposit rejected")
		return types.Receipt{}, err
	}

	v.logger.Info().
		Str("owner", owner).
		Str("shares", event.Shares.String()).
		Str("amount0", event.Amount0.String()).
		Str("amount1", event.Amount1.String()).
		Msg("Deposit completed")
	v.sink.OnDeposit(ctx, event)

	return types.Receipt{Shares: event.Shares, Amount0: event.Amount0, Amount1: event.Amount1, Coins: v.coins(event.Amount0, event.Amount1)}, nil
}

// Withdraw burns shares and returns their pro-rata slice of every pool of capital.
func (v *Vault) Withdraw(ctx context.Context, owner string, shares, min0, min1 sdkmath.Int) (types.Receipt, error) {
	if owner == "" {
		return types.Receipt{}, fmt.Errorf("%w: owner cannot be empty", ErrInvalidInput)
	}
	if err := errors.Join(checkAmount("shares", shares), checkAmount("amount0Min", min0), checkAmount("amount1Min", min1)); err != nil {
		return types.Receipt{}, err
	}
	if shares.IsZero() {
		return types.Receipt{}, fmt.Errorf("%w: shares cannot be zero", ErrInvalidInput)
	}

	var event types.LiquidityEvent
	err := v.run(ctx, "withdraw", func(c *call) error {
		totalSupply, err := v.shares.TotalSupply(ctx)
		if err != nil {
			return fmt.Errorf("failed to read total supply: %w", err)
		}
		if shares.GT(totalSupply) {
			return fmt.Errorf("%w: %s shares exceed total supply %s", ErrInvalidInput, shares, totalSupply)
		}
		held, err := v.shares.BalanceOf(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to read share balance: %w", err)
		}
		if shares.GT(held) {
			return fmt.Errorf("%w: %s holds %s shares, requested %s", ErrInvalidInput, owner, held, shares)
		}

		amounts, err := v.withdrawShare(c, shares, totalSupply)
		if err != nil {
			return err
		}
		if amounts[0].LT(min0) || amounts[1].LT(min1) {
			return fmt.Errorf("%w: got (%s, %s), minimum (%s, %s)", ErrSlippageExceeded, amounts[0], amounts[1], min0, min1)
		}

		if err := v.shares.Burn(ctx, owner, shares); err != nil {
			return fmt.Errorf("failed to burn shares: %w", err)
		}
		if err := v.transferOut(ctx, owner, amounts[0], amounts[1]); err != nil {
			return err
		}

		event = types.LiquidityEvent{
			ID:          uuid.New().String(),
			Timestamp:   v.env.Now(),
			Action:      types.ActionWithdraw,
			Owner:       owner,
			Shares:      shares,
			Amount0:     amounts[0],
			Amount1:     amounts[1],
			TotalSupply: totalSupply.Sub(shares),
		}
		return nil
	})
	if err != nil {
		v.logger.Warn().Err(err).Str("owner", owner).Msg("Withdrawal rejected")
		return types.Receipt{}, err
	}

	v.logger.Info().
		Str("owner", owner).
		Str("shares", event.Shares.String()).
		Str("amount0", event.Amount0.String()).
		Str("amount1", event.Amount1.String()).
		Msg("Withdrawal completed")
	v.sink.OnWithdraw(ctx, event)

	return types.Receipt{Shares: event.Shares, Amount0: event.Amount0, Amount1: event.Amount1, Coins: v.coins(event.Amount0, event.Amount1)}, nil
}

func (v *Vault) transferIn(ctx context.Context, from string, amount0, amount1 sdkmath.Int) error {
	for i, amount := range [2]sdkmath.Int{amount0, amount1} {
		if amount.IsZero() {
			continue
		}
		if err := v.tokens[i].Transfer(ctx, from, v.account, amount); err != nil {
			return fmt.Errorf("failed to pull %s %s from %s: %w", amount, v.tokens[i].Symbol(), from, err)
		}
	}
	return nil
}

func (v *Vault) transferOut(ctx context.Context, to string, amount0, amount1 sdkmath.Int) error {
	for i, amount := range [2]sdkmath.Int{amount0, amount1} {
		if amount.IsZero() {
			continue
		}
		if err := v.tokens[i].Transfer(ctx, v.account, to, amount); err != nil {
			return fmt.Errorf("failed to send %s %s to %s: %w", amount, v.tokens[i].Symbol(), to, err)
		}
	}
	return nil
}

// Urgency returns how overdue a recenter is, in basis points of the recentering
// interval. It is read-only and never takes the lock.
func (v *Vault) Urgency(ctx context.Context) uint64 {
	state, _ := v.store.Snapshot()
	return Urgency(state.LastRecenterTime, v.env.Now())
}

// Inventory values the vault's holdings at the current price, tilt order included.
// It is read-only and never takes the lock.
func (v *Vault) Inventory(ctx context.Context) (types.Inventory, types.InventoryBreakdown, error) {
	state, ledger := v.store.Snapshot()
	c := &call{ctx: ctx, state: state, ledger: ledger}
	if err := v.loadPrice(c); err != nil {
		return types.Inventory{}, types.InventoryBreakdown{}, err
	}
	return v.computeInventory(c, true)
}

// State returns a snapshot of the packed record and maintenance ledger.
func (v *Vault) State() Checkpoint {
	state, ledger := v.store.Snapshot()
	return Checkpoint{State: state, Ledger: ledger}
}

// Restore installs a previously saved checkpoint.
func (v *Vault) Restore(cp Checkpoint) error {
	return v.store.Restore(cp.State, cp.Ledger)
}

// Tokens returns the pair's symbols and denoms, token0 first.
func (v *Vault) Tokens() [2]types.Token {
	var out [2]types.Token
	for i, t := range v.tokens {
		out[i] = types.Token{Symbol: t.Symbol(), Denom: t.Denom()}
	}
	return out
}

// Price returns the pool's current sqrt price and tick.
func (v *Vault) Price(ctx context.Context) (sdkmath.Int, int32, error) {
	return v.market.Slot0(ctx)
}

// Urgency computes 10000 * elapsed / RecenteringInterval. It is not capped.
func Urgency(lastRecenterTime uint32, now time.Time) uint64 {
	elapsed := now.Unix() - int64(lastRecenterTime)
	if elapsed <= 0 {
		return 0
	}
	return uint64(elapsed) * fees.UrgencyScale / uint64(RecenteringInterval/time.Second)
}

func priceX96(sqrtPrice sdkmath.Int) (sdkmath.Int, error) {
	price, err := rangemath.PriceX96(sqrtPrice)
	if err != nil {
		return sdkmath.ZeroInt(), overflowErr("price", err)
	}
	if price.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: price rounds to zero at sqrt price %s", ErrArithmeticOverflow, sqrtPrice)
	}
	return price, nil
}
