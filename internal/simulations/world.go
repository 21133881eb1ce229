/*

Package simulations provides in-memory collaborators for the vault: a bank of fungible
tokens, a concentrated-liquidity pool, yield-bearing reserves, a share ledger and a
fixed volatility oracle, all living in one World that doubles as the vault's execution
environment.

The World keeps a clock, a gas meter and a journal. Every mutation goes through it, so
a snapshot taken before a vault call can roll back the tokens, positions, reserves and
shares together.

*/

package simulations

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/alm/internal/logger"
	"github.com/elys-network/alm/internal/types"
)

var worldLogger = logger.GetForComponent("simulation_world")

// Gas charged per operation. The figures are in the range an EVM pays for comparable
// storage reads and writes, which is all the incentive meter needs.
const (
	gasRead     uint64 = 2_100
	gasTransfer uint64 = 30_000
	gasPoke     uint64 = 25_000
	gasMint     uint64 = 120_000
	gasBurn     uint64 = 90_000
	gasReserve  uint64 = 60_000
	gasShares   uint64 = 25_000

	// DefaultGasLimit is the block gas limit a new World reports.
	DefaultGasLimit uint64 = 30_000_000

	maxJournal = 256
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownSnapshot     = errors.New("snapshot no longer in journal")
)

type positionKey struct {
	owner string
	r     types.Range
}

type positionState struct {
	liquidity sdkmath.Int
	owed      [2]sdkmath.Int // credited by the last poke
	pending   [2]sdkmath.Int // earned since the last poke
}

type poolState struct {
	sqrtPrice sdkmath.Int
	tick      int32
	positions map[positionKey]*positionState
}

type reserveState struct {
	balances map[string]sdkmath.Int // account -> principal plus credited interest
	pending  map[string]sdkmath.Int // interest earned since the last poke
}

// ledgerState is everything the journal can roll back.
type ledgerState struct {
	balances map[string]map[string]sdkmath.Int // denom -> account -> balance
	pools    map[string]*poolState
	reserves map[string]*reserveState
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		balances: make(map[string]map[string]sdkmath.Int),
		pools:    make(map[string]*poolState),
		reserves: make(map[string]*reserveState),
	}
}

func copyAmounts(m map[string]sdkmath.Int) map[string]sdkmath.Int {
	out := make(map[string]sdkmath.Int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone deep-copies the state. sdkmath.Int values are immutable and can be shared.
func (s *ledgerState) clone() *ledgerState {
	out := newLedgerState()
	for denom, accounts := range s.balances {
		out.balances[denom] = copyAmounts(accounts)
	}
	for name, p := range s.pools {
		positions := make(map[positionKey]*positionState, len(p.positions))
		for k, pos := range p.positions {
			cp := *pos
			positions[k] = &cp
		}
		out.pools[name] = &poolState{sqrtPrice: p.sqrtPrice, tick: p.tick, positions: positions}
	}
	for name, r := range s.reserves {
		out.reserves[name] = &reserveState{balances: copyAmounts(r.balances), pending: copyAmounts(r.pending)}
	}
	return out
}

// World is the shared state of a simulation and the vault's execution environment.
type World struct {
	mu sync.Mutex

	now      time.Time
	gasUsed  uint64
	gasLimit uint64

	state       *ledgerState
	journal     []*ledgerState
	journalBase int // snapshot id of journal[0]
}

// NewWorld creates an empty world whose clock starts at start.
func NewWorld(start time.Time) *World {
	return &World{
		now:      start.UTC(),
		gasLimit: DefaultGasLimit,
		state:    newLedgerState(),
	}
}

// Now returns the simulated time.
func (w *World) Now() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now
}

// Advance moves the clock forward.
func (w *World) Advance(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = w.now.Add(d)
}

// GasConsumed returns the gas charged since the world was created.
func (w *World) GasConsumed() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gasUsed
}

// GasLimit returns the current block gas limit.
func (w *World) GasLimit() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gasLimit
}

// SetGasLimit changes the block gas limit.
func (w *World) SetGasLimit(limit uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gasLimit = limit
}

// Snapshot records the current state and returns an id for RevertToSnapshot.
func (w *World) Snapshot() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.journal = append(w.journal, w.state.clone())
	if len(w.journal) > maxJournal {
		w.journal = w.journal[1:]
		w.journalBase++
	}
	return w.journalBase + len(w.journal) - 1
}

// RevertToSnapshot restores the state recorded by Snapshot and forgets every later
// snapshot. Gas already charged stays charged.
func (w *World) RevertToSnapshot(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := id - w.journalBase
	if idx < 0 || idx >= len(w.journal) {
		worldLogger.Error().Err(ErrUnknownSnapshot).Int("snapshot", id).Msg("Cannot revert world state")
		return
	}
	w.state = w.journal[idx]
	w.journal = w.journal[:idx]
}

func (w *World) charge(gas uint64) {
	w.gasUsed += gas
}

func (w *World) balance(denom, account string) sdkmath.Int {
	if b, ok := w.state.balances[denom][account]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (w *World) credit(denom, account string, amount sdkmath.Int) {
	accounts, ok := w.state.balances[denom]
	if !ok {
		accounts = make(map[string]sdkmath.Int)
		w.state.balances[denom] = accounts
	}
	accounts[account] = w.balance(denom, account).Add(amount)
}

func (w *World) debit(denom, account string, amount sdkmath.Int) error {
	if amount.IsZero() {
		return nil
	}
	held := w.balance(denom, account)
	if held.LT(amount) {
		return fmt.Errorf("%w: %s holds %s%s, needs %s", ErrInsufficientBalance, account, held, denom, amount)
	}
	w.state.balances[denom][account] = held.Sub(amount)
	return nil
}

func checkPositive(amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("amount must be non-negative, got %v", amount)
	}
	return nil
}
