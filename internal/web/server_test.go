package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/elys-network/alm/internal/fees"
	"github.com/elys-network/alm/internal/fullmath"
	"github.com/elys-network/alm/internal/keeper"
	"github.com/elys-network/alm/internal/state"
	"github.com/elys-network/alm/internal/types"
	"github.com/elys-network/alm/internal/vault"
)

var errBroke = errors.New("insufficient balance")

type stubVault struct {
	depositErr   error
	rebalanceErr error

	gotOwner string
	gotMax   [2]sdkmath.Int
	gotMin   [2]sdkmath.Int
	gotToken types.TokenIndex
}

func (s *stubVault) Deposit(_ context.Context, owner string, max0, max1, min0, min1 sdkmath.Int) (types.Receipt, error) {
	s.gotOwner, s.gotMax, s.gotMin = owner, [2]sdkmath.Int{max0, max1}, [2]sdkmath.Int{min0, min1}
	if s.depositErr != nil {
		return types.Receipt{}, s.depositErr
	}
	return types.Receipt{Shares: max0, Amount0: max0, Amount1: max1}, nil
}

func (s *stubVault) Withdraw(_ context.Context, owner string, shares, min0, min1 sdkmath.Int) (types.Receipt, error) {
	s.gotOwner, s.gotMin = owner, [2]sdkmath.Int{min0, min1}
	return types.Receipt{Shares: shares, Amount0: shares, Amount1: shares}, nil
}

func (s *stubVault) Rebalance(_ context.Context, caller string, rewardToken types.TokenIndex) (types.RebalanceEvent, error) {
	s.gotOwner, s.gotToken = caller, rewardToken
	if s.rebalanceErr != nil {
		return types.RebalanceEvent{}, s.rebalanceErr
	}
	return types.RebalanceEvent{Caller: caller, Branch: types.BranchRecenter, RewardToken: rewardToken}, nil
}

func (s *stubVault) Urgency(context.Context) uint64 { return 2500 }

func (s *stubVault) Inventory(context.Context) (types.Inventory, types.InventoryBreakdown, error) {
	return types.Inventory{
		Amount0:           sdkmath.NewInt(3_000_000),
		Amount1:           sdkmath.NewInt(1_000_000),
		AvailableForTilt0: sdkmath.ZeroInt(),
		AvailableForTilt1: sdkmath.ZeroInt(),
	}, types.InventoryBreakdown{}, nil
}

func (s *stubVault) Price(context.Context) (sdkmath.Int, int32, error) {
	return fullmath.Q96, 0, nil
}

func (s *stubVault) State() vault.Checkpoint {
	return vault.Checkpoint{
		State:  vault.PackedState{Main: types.Range{Lower: -1080, Upper: 1080}},
		Ledger: fees.NewLedger(),
	}
}

type stubKeeper struct{ status keeper.Status }

func (k stubKeeper) Status() keeper.Status { return k.status }

type stubHistory struct {
	pingErr     error
	gotLimit    int
	gotBranches []types.RebalanceBranch
}

func (h *stubHistory) RecentRebalances(limit int, branches ...types.RebalanceBranch) ([]types.RebalanceEvent, error) {
	h.gotLimit, h.gotBranches = limit, branches
	return []types.RebalanceEvent{{ID: "a", Branch: types.BranchRecenter}}, nil
}

func (h *stubHistory) RebalanceByID(id string) (*types.RebalanceEvent, error) {
	if id != "a" {
		return nil, fmt.Errorf("%w: rebalance %s", state.ErrNotFound, id)
	}
	return &types.RebalanceEvent{ID: "a"}, nil
}

func (h *stubHistory) Summary() (*state.VaultSummary, error) {
	return &state.VaultSummary{TotalRebalances: 4}, nil
}

func (h *stubHistory) Incentives() (*state.IncentiveMetrics, error) {
	return &state.IncentiveMetrics{TotalCalls: 4}, nil
}

func (h *stubHistory) Ping() error { return h.pingErr }

type fixture struct {
	server  *WebServer
	vault   *stubVault
	history *stubHistory
}

func newFixture(t *testing.T, k StatusReporter) fixture {
	t.Helper()
	f := fixture{vault: &stubVault{}, history: &stubHistory{}}
	ws, err := NewWebServer(Config{
		Vault: f.vault,
		Tokens: [2]types.Token{
			{Symbol: "ATOM", Denom: "uatom", Precision: 6},
			{Symbol: "USDC", Denom: "uusdc", Precision: 6},
		},
		Keeper:       k,
		History:      f.history,
		Gatherer:     prometheus.NewRegistry(),
		ClientErrors: []error{errBroke},
	})
	require.NoError(t, err)
	f.server = ws
	return f
}

func (f fixture) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestNewWebServer_RequiresVault(t *testing.T) {
	_, err := NewWebServer(Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, stubKeeper{keeper.Status{Healthy: true}})
	code, body := f.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body["status"])

	f.history.pingErr = errors.New("db down")
	code, body = f.do(t, "GET", "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "DEGRADED", body["status"])

	f = newFixture(t, stubKeeper{keeper.Status{Healthy: false}})
	code, _ = f.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadOnlyQueries(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, "GET", "/api/urgency", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2500.0, body["urgency"])

	code, body = f.do(t, "GET", "/api/inventory", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 7500.0, body["ratio_bps"])
	assert.Equal(t, "1", body["price"])
	assert.Equal(t, map[string]interface{}{"ATOM": "3", "USDC": "1"}, body["display"])

	code, body = f.do(t, "GET", "/api/state", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]interface{}{"lower": -1080.0, "upper": 1080.0}, body["main"])
}

func TestRebalanceHistory(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, "GET", "/api/rebalances?limit=5&branch=RECENTER&branch=TILT_ABOVE", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["count"])
	assert.Equal(t, 5, f.history.gotLimit)
	assert.Equal(t, []types.RebalanceBranch{types.BranchRecenter, types.BranchTiltAbove}, f.history.gotBranches)

	code, _ = f.do(t, "GET", "/api/rebalances?branch=SIDEWAYS", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, "GET", "/api/rebalances/a", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "a", body["id"])

	code, _ = f.do(t, "GET", "/api/rebalances/b", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = f.do(t, "GET", "/api/summary", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 4.0, body["total_rebalances"])

	code, body = f.do(t, "GET", "/api/incentives", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 4.0, body["total_calls"])
}

func TestDeposit(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, "POST", "/api/deposit", `{"owner":"alice","max0":"1000000","max1":"2000000"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1000000", body["shares"])
	assert.Equal(t, "alice", f.vault.gotOwner)
	assert.Equal(t, "2000000", f.vault.gotMax[1].String())
	assert.True(t, f.vault.gotMin[0].IsZero(), "missing minimums default to zero")

	code, _ = f.do(t, "POST", "/api/deposit", `{"owner":"alice","max0":"1.5","max1":"1"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, "POST", "/api/deposit", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, "POST", "/api/withdraw", `{"owner":"bob","shares":"42","min1":"7"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "42", body["amount0"])
	assert.Equal(t, "7", f.vault.gotMin[1].String())

	code, _ = f.do(t, "POST", "/api/withdraw", `{"owner":"bob"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRebalance(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, "POST", "/api/rebalance", `{"caller":"keeper","reward_token":1}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "RECENTER", body["branch"])
	assert.Equal(t, types.Token1, f.vault.gotToken)
}

func TestVaultErrorsMapToStatusCodes(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: caller cannot be empty", vault.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: amount0 below minimum", vault.ErrSlippageExceeded), http.StatusConflict},
		{vault.ErrLocked, http.StatusLocked},
		{fmt.Errorf("size: %w", vault.ErrArithmeticOverflow), http.StatusUnprocessableEntity},
		{fmt.Errorf("failed to pull: %w", errBroke), http.StatusBadRequest},
		{errors.New("pool unreachable"), http.StatusInternalServerError},
	} {
		t.Run(tc.err.Error(), func(t *testing.T) {
			f := newFixture(t, nil)
			f.vault.rebalanceErr = tc.err
			code, body := f.do(t, "POST", "/api/rebalance", `{"caller":"keeper"}`)
			assert.Equal(t, tc.want, code)
			assert.Equal(t, true, body["error"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGRPCHealthFollowsKeeper(t *testing.T) {
	k := &mutableKeeper{}
	k.status.Healthy = true
	s := NewGRPCServer(k)
	ctx := context.Background()

	resp, err := s.Health().Check(ctx, &healthpb.HealthCheckRequest{Service: HealthServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	k.status.Healthy = false
	s.Refresh()
	resp, err = s.Health().Check(ctx, &healthpb.HealthCheckRequest{Service: HealthServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

type mutableKeeper struct{ status keeper.Status }

func (k *mutableKeeper) Status() keeper.Status { return k.status }
