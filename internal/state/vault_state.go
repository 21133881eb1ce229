// ./internal/state/vault_state.go
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/alm/internal/fees"
	"github.com/elys-network/alm/internal/vault"
)

// SaveVaultState upserts the single checkpoint row: the packed state record as bytes and
// the maintenance ledger as JSON.
func SaveVaultState(cp vault.Checkpoint) error {
	if DB == nil {
		return ErrNotInitialized
	}

	ledgerJSON, err := json.Marshal(cp.Ledger)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	packed := cp.State.Pack()

	stmt := `
		INSERT INTO vault_state (id, packed, ledger, updated_at)
		VALUES (1, $1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET packed = EXCLUDED.packed,
		    ledger = EXCLUDED.ledger,
		    updated_at = EXCLUDED.updated_at;`

	if _, err := DB.Exec(stmt, packed[:], ledgerJSON); err != nil {
		return fmt.Errorf("failed to save vault state: %w", err)
	}

	log.Debug().
		Str("main", cp.State.Main.String()).
		Str("tilt", cp.State.Tilt.String()).
		Uint64("epoch", cp.Ledger.Epoch).
		Msg("Vault state checkpointed")
	return nil
}

// LoadVaultState returns the saved checkpoint, or nil if none has been saved yet.
func LoadVaultState() (*vault.Checkpoint, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	var packed, ledgerJSON []byte
	err := DB.QueryRow(`SELECT packed, ledger FROM vault_state WHERE id = 1;`).Scan(&packed, &ledgerJSON)
	if errors.Is(err, sql.ErrNoRows) {
		log.Info().Msg("No saved vault state found")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vault state: %w", err)
	}

	packedState, err := vault.UnpackState(packed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode saved vault state: %w", err)
	}
	var ledger fees.Ledger
	if err := json.Unmarshal(ledgerJSON, &ledger); err != nil {
		return nil, fmt.Errorf("failed to unmarshal saved ledger: %w", err)
	}
	ledger.Normalize()

	log.Info().
		Str("main", packedState.Main.String()).
		Uint64("epoch", ledger.Epoch).
		Msg("Loaded saved vault state")
	return &vault.Checkpoint{State: packedState, Ledger: ledger}, nil
}
