package state

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/alm/internal/fees"
	"github.com/elys-network/alm/internal/types"
	"github.com/elys-network/alm/internal/vault"
)

// withMockDB points the package-level pool at a sqlmock connection for one test.
func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	previous := DB
	DB = db
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		DB = previous
		db.Close()
	})
	return mock
}

var rebalanceColumnNames = []string{
	"event_id", "event_timestamp", "caller", "branch", "urgency", "ratio_bps",
	"total_supply", "inventory0", "inventory1",
	"main_lower", "main_upper", "tilt_lower", "tilt_upper", "tick", "epoch",
	"reward_token", "reward", "gas_used", "budget0", "budget1",
}

func sampleRebalance() types.RebalanceEvent {
	return types.RebalanceEvent{
		ID:          "7d1c0b55-8a5d-4c43-9a55-0d8f1b3b2f10",
		Timestamp:   time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC),
		Caller:      "keeper",
		Branch:      types.BranchRecenter,
		Urgency:     416,
		Ratio:       5000,
		TotalSupply: sdkmath.NewInt(2_000_000),
		Inventory0:  sdkmath.NewInt(1_000_000),
		Inventory1:  sdkmath.NewInt(1_000_000),
		Main:        types.Range{Lower: -1080, Upper: 1080},
		Tick:        5,
		Epoch:       1,
		RewardToken: types.Token0,
		Reward:      sdkmath.NewInt(4_210_000),
		GasUsed:     421_000,
		Budgets:     [2]sdkmath.Int{sdkmath.NewInt(95_790_000), sdkmath.NewInt(100_000_000)},
	}
}

func rebalanceRow(e types.RebalanceEvent) []driver.Value {
	return []driver.Value{
		e.ID, e.Timestamp, e.Caller, string(e.Branch), int64(e.Urgency), int64(e.Ratio),
		e.TotalSupply.String(), e.Inventory0.String(), e.Inventory1.String(),
		int64(e.Main.Lower), int64(e.Main.Upper), int64(e.Tilt.Lower), int64(e.Tilt.Upper), int64(e.Tick), int64(e.Epoch),
		int64(e.RewardToken), e.Reward.String(), int64(e.GasUsed), e.Budgets[0].String(), e.Budgets[1].String(),
	}
}

func TestQueriesRequireInitializedDB(t *testing.T) {
	previous := DB
	DB = nil
	defer func() { DB = previous }()

	_, err := LoadVaultState()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, SaveVaultState(vault.Checkpoint{}), ErrNotInitialized)
	assert.ErrorIs(t, SaveRebalanceEvent(sampleRebalance()), ErrNotInitialized)
	_, err = GetRecentRebalances(10)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = IncrementCycleNumber()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, EnsureSchema(), ErrNotInitialized)
}

func TestSaveVaultState_UpsertsPackedRecord(t *testing.T) {
	mock := withMockDB(t)

	state := vault.PackedState{
		Main:             types.Range{Lower: -1080, Upper: 1080},
		LastRecenterTime: 1_735_693_200,
	}
	packed := state.Pack()
	mock.ExpectExec("INSERT INTO vault_state").
		WithArgs(packed[:], sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, SaveVaultState(vault.Checkpoint{State: state, Ledger: fees.NewLedger()}))
}

func TestLoadVaultState(t *testing.T) {
	t.Run("nothing saved", func(t *testing.T) {
		mock := withMockDB(t)
		mock.ExpectQuery("SELECT packed, ledger FROM vault_state").
			WillReturnRows(sqlmock.NewRows([]string{"packed", "ledger"}))

		cp, err := LoadVaultState()
		require.NoError(t, err)
		assert.Nil(t, cp)
	})

	t.Run("restores state and ledger", func(t *testing.T) {
		mock := withMockDB(t)

		state := vault.PackedState{
			Main:             types.Range{Lower: -1080, Upper: 1080},
			Tilt:             types.Range{Lower: 2040, Upper: 2100},
			LastRecenterTime: 1_735_693_200,
			Sustainable:      true,
		}
		ledger := fees.NewLedger()
		ledger.Budgets[1] = sdkmath.NewInt(123_456_789)
		ledger.Epoch = 12
		ledgerJSON, err := json.Marshal(ledger)
		require.NoError(t, err)
		packed := state.Pack()

		mock.ExpectQuery("SELECT packed, ledger FROM vault_state").
			WillReturnRows(sqlmock.NewRows([]string{"packed", "ledger"}).AddRow(packed[:], ledgerJSON))

		cp, err := LoadVaultState()
		require.NoError(t, err)
		require.NotNil(t, cp)
		assert.Equal(t, state, cp.State)
		assert.Equal(t, uint64(12), cp.Ledger.Epoch)
		assert.Equal(t, "123456789", cp.Ledger.Budgets[1].String())
		assert.Equal(t, "0", cp.Ledger.Budgets[0].String())
	})

	t.Run("corrupt record", func(t *testing.T) {
		mock := withMockDB(t)
		mock.ExpectQuery("SELECT packed, ledger FROM vault_state").
			WillReturnRows(sqlmock.NewRows([]string{"packed", "ledger"}).AddRow([]byte{1, 2, 3}, []byte(`{}`)))

		_, err := LoadVaultState()
		assert.ErrorIs(t, err, vault.ErrInvalidState)
	})
}

func TestSaveRebalanceEvent(t *testing.T) {
	t.Run("inserts", func(t *testing.T) {
		mock := withMockDB(t)
		e := sampleRebalance()
		mock.ExpectExec("INSERT INTO rebalance_events").
			WithArgs(e.ID, e.Timestamp, "keeper", "RECENTER", int64(416), int64(5000),
				"2000000", "1000000", "1000000",
				int32(-1080), int32(1080), int32(0), int32(0), int32(5), int64(1),
				int16(0), "4210000", int64(421_000), "95790000", "100000000").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, SaveRebalanceEvent(e))
	})

	t.Run("duplicate is ignored", func(t *testing.T) {
		mock := withMockDB(t)
		mock.ExpectExec("INSERT INTO rebalance_events").WillReturnError(&pq.Error{Code: uniqueViolation})

		assert.NoError(t, SaveRebalanceEvent(sampleRebalance()))
	})

	t.Run("other errors surface", func(t *testing.T) {
		mock := withMockDB(t)
		mock.ExpectExec("INSERT INTO rebalance_events").WillReturnError(errors.New("connection reset"))

		assert.ErrorContains(t, SaveRebalanceEvent(sampleRebalance()), "connection reset")
	})
}

func TestEventStore_PersistsLiquidityEvents(t *testing.T) {
	mock := withMockDB(t)
	e := types.LiquidityEvent{
		ID:          "0b8d4f7e-3c39-4a4e-8a1e-63a3f0c2d9b1",
		Timestamp:   time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC),
		Action:      types.ActionDeposit,
		Owner:       "alice",
		Shares:      sdkmath.NewInt(1_000_000),
		Amount0:     sdkmath.NewInt(1_000_000),
		Amount1:     sdkmath.NewInt(1_000_000),
		TotalSupply: sdkmath.NewInt(1_000_000),
	}
	mock.ExpectExec("INSERT INTO liquidity_events").
		WithArgs(e.ID, e.Timestamp, "DEPOSIT", "alice", "1000000", "1000000", "1000000", "1000000").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// A zero-valued Int is stored as 0, not rejected.
	withdrawal := e
	withdrawal.ID = "4f3c1b2a-8d7e-4c6b-9a5f-1e2d3c4b5a69"
	withdrawal.Action = types.ActionWithdraw
	withdrawal.Amount1 = sdkmath.Int{}
	mock.ExpectExec("INSERT INTO liquidity_events").
		WithArgs(withdrawal.ID, withdrawal.Timestamp, "WITHDRAW", "alice", "1000000", "1000000", "0", "1000000").
		WillReturnResult(sqlmock.NewResult(0, 1))

	var store EventStore
	store.OnDeposit(context.Background(), e)
	store.OnWithdraw(context.Background(), withdrawal)
}

func TestGetRecentRebalances(t *testing.T) {
	mock := withMockDB(t)

	e := sampleRebalance()
	broken := rebalanceRow(e)
	broken[0] = "9f0c6a3e-2b1d-4e8f-a7c5-3d2e1f0a9b8c"
	broken[6] = "not-a-number"

	mock.ExpectQuery("FROM rebalance_events WHERE branch = ANY").
		WithArgs(10, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(rebalanceColumnNames).AddRow(rebalanceRow(e)...).AddRow(broken...))

	events, err := GetRecentRebalances(0, types.BranchRecenter)
	require.NoError(t, err)
	require.Len(t, events, 1, "rows that fail to parse are skipped")

	got := events[0]
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, types.BranchRecenter, got.Branch)
	assert.Equal(t, e.Main, got.Main)
	assert.Equal(t, int32(5), got.Tick)
	assert.Equal(t, uint64(416), got.Urgency)
	assert.Equal(t, "4210000", got.Reward.String())
	assert.Equal(t, "95790000", got.Budgets[0].String())
	assert.Equal(t, "100000000", got.Budgets[1].String())
}

func TestGetRebalanceByID_NotFound(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery("FROM rebalance_events WHERE event_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(rebalanceColumnNames))

	_, err := GetRebalanceByID("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetVaultSummary(t *testing.T) {
	mock := withMockDB(t)
	last := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM rebalance_events").
		WillReturnRows(sqlmock.NewRows([]string{"count", "recenters", "max"}).AddRow(5, 2, last))
	mock.ExpectQuery("FROM liquidity_events").
		WillReturnRows(sqlmock.NewRows([]string{"deposits", "withdrawals", "max"}).AddRow(3, 1, nil))
	mock.ExpectQuery("SELECT current_cycle FROM cycle_counter").
		WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(9))

	summary, err := GetVaultSummary()
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalRebalances)
	assert.Equal(t, 2, summary.Recenters)
	assert.Equal(t, 3, summary.Tilts)
	assert.Equal(t, 3, summary.Deposits)
	assert.Equal(t, 1, summary.Withdrawals)
	assert.Equal(t, 9, summary.TotalCycles)
	require.NotNil(t, summary.LastRebalanceAt)
	assert.True(t, last.Equal(*summary.LastRebalanceAt))
	assert.Nil(t, summary.LastLiquidityAt)
}

func TestGetIncentiveMetrics(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery("GROUP BY reward_token").
		WillReturnRows(sqlmock.NewRows([]string{"reward_token", "reward", "gas", "paid", "calls"}).
			AddRow(0, "4210000", 421_000, 1, 2).
			AddRow(1, "0", 0, 0, 1))

	metrics, err := GetIncentiveMetrics()
	require.NoError(t, err)
	assert.Equal(t, 3, metrics.TotalCalls)
	assert.Equal(t, "4210000", metrics.Tokens[0].TotalReward.String())
	assert.Equal(t, uint64(421_000), metrics.Tokens[0].TotalGasUsed)
	assert.Equal(t, 1, metrics.Tokens[0].PaidCalls)
	assert.Equal(t, "10", metrics.Tokens[0].RewardPerGas)
	assert.Equal(t, "0", metrics.Tokens[1].TotalReward.String())
	assert.Equal(t, "0", metrics.Tokens[1].RewardPerGas)
}

func TestCycleCounter(t *testing.T) {
	t.Run("increment", func(t *testing.T) {
		mock := withMockDB(t)
		mock.ExpectQuery("UPDATE cycle_counter").
			WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(8))

		n, err := IncrementCycleNumber()
		require.NoError(t, err)
		assert.Equal(t, 8, n)
	})

	t.Run("reset", func(t *testing.T) {
		mock := withMockDB(t)
		assert.Error(t, ResetCycleNumber(-1))

		mock.ExpectExec("UPDATE cycle_counter").WithArgs(0).WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorContains(t, ResetCycleNumber(0), "no rows updated")

		mock.ExpectExec("UPDATE cycle_counter").WithArgs(4).WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, ResetCycleNumber(4))
	})
}
