package vault

import (
	"fmt"
	"sync"

	"github.com/elys-network/alm/internal/fees"
)

// stateStore holds the packed record and the maintenance ledger. The lock flag inside
// the record is the only guard against concurrent mutation: a second caller is
// rejected immediately rather than queued.
type stateStore struct {
	mu     sync.RWMutex
	state  PackedState
	ledger fees.Ledger
}

func newStateStore(state PackedState, ledger fees.Ledger) *stateStore {
	state.Locked = false
	ledger.Normalize()
	return &stateStore{state: state, ledger: ledger}
}

// LoadAndLock returns working copies of the state and sets the lock.
func (s *stateStore) LoadAndLock() (PackedState, fees.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Locked {
		return PackedState{}, fees.Ledger{}, ErrLocked
	}
	s.state.Locked = true
	return s.state, s.ledger, nil
}

// StoreAndUnlock writes the full state and clears the lock.
func (s *stateStore) StoreAndUnlock(state PackedState, ledger fees.Ledger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.Locked = false
	s.state = state
	s.ledger = ledger
}

// Abort clears the lock and discards the working copies.
func (s *stateStore) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Locked = false
}

// Snapshot returns a consistent copy for read-only queries. It does not take the lock.
func (s *stateStore) Snapshot() (PackedState, fees.Ledger) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state, s.ledger
}

// Restore replaces the stored state with a checkpoint, refusing while a call is running.
func (s *stateStore) Restore(state PackedState, ledger fees.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Locked {
		return fmt.Errorf("cannot restore checkpoint: %w", ErrLocked)
	}
	state.Locked = false
	ledger.Normalize()
	s.state = state
	s.ledger = ledger
	return nil
}
