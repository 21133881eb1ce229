package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elys-network/alm/internal/keeper"
	"github.com/elys-network/alm/internal/logger"
	"github.com/elys-network/alm/internal/rangemath"
	"github.com/elys-network/alm/internal/state"
	"github.com/elys-network/alm/internal/types"
	"github.com/elys-network/alm/internal/utils"
	"github.com/elys-network/alm/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// VaultAPI is the part of the vault the server exposes.
type VaultAPI interface {
	Deposit(ctx context.Context, owner string, max0, max1, min0, min1 sdkmath.Int) (types.Receipt, error)
	Withdraw(ctx context.Context, owner string, shares, min0, min1 sdkmath.Int) (types.Receipt, error)
	Rebalance(ctx context.Context, caller string, rewardToken types.TokenIndex) (types.RebalanceEvent, error)
	Urgency(ctx context.Context) uint64
	Inventory(ctx context.Context) (types.Inventory, types.InventoryBreakdown, error)
	Price(ctx context.Context) (sdkmath.Int, int32, error)
	State() vault.Checkpoint
}

// StatusReporter reports keeper health.
type StatusReporter interface {
	Status() keeper.Status
}

// History serves recorded vault activity.
type History interface {
	RecentRebalances(limit int, branches ...types.RebalanceBranch) ([]types.RebalanceEvent, error)
	RebalanceByID(id string) (*types.RebalanceEvent, error)
	Summary() (*state.VaultSummary, error)
	Incentives() (*state.IncentiveMetrics, error)
	Ping() error
}

// DatabaseHistory reads history from the state package's database.
type DatabaseHistory struct{}

func (DatabaseHistory) RecentRebalances(limit int, branches ...types.RebalanceBranch) ([]types.RebalanceEvent, error) {
	return state.GetRecentRebalances(limit, branches...)
}

func (DatabaseHistory) RebalanceByID(id string) (*types.RebalanceEvent, error) {
	return state.GetRebalanceByID(id)
}

func (DatabaseHistory) Summary() (*state.VaultSummary, error) { return state.GetVaultSummary() }

func (DatabaseHistory) Incentives() (*state.IncentiveMetrics, error) {
	return state.GetIncentiveMetrics()
}

func (DatabaseHistory) Ping() error { return state.TestDBConnection() }

// Config holds the configuration for creating a new WebServer
type Config struct {
	Port         string
	Vault        VaultAPI
	Tokens       [2]types.Token      // optional, precisions render display amounts
	Keeper       StatusReporter      // optional
	History      History             // optional, defaults to DatabaseHistory
	Gatherer     prometheus.Gatherer // optional, defaults to prometheus.DefaultGatherer
	ClientErrors []error             // extra errors answered with 400, e.g. insufficient balance
}

// WebServer handles HTTP requests for vault operations and data
type WebServer struct {
	router *mux.Router
	port   string
	server *http.Server

	vault        VaultAPI
	tokens       [2]types.Token
	keeper       StatusReporter
	history      History
	gatherer     prometheus.Gatherer
	clientErrors []error
	started      time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) (*WebServer, error) {
	if cfg.Vault == nil {
		return nil, fmt.Errorf("vault cannot be nil")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.History == nil {
		cfg.History = DatabaseHistory{}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	ws := &WebServer{
		router:       mux.NewRouter(),
		port:         cfg.Port,
		vault:        cfg.Vault,
		tokens:       cfg.Tokens,
		keeper:       cfg.Keeper,
		history:      cfg.History,
		gatherer:     cfg.Gatherer,
		clientErrors: cfg.ClientErrors,
		started:      time.Now(),
	}
	ws.setupRoutes()
	return ws, nil
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.HandlerFor(ws.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/urgency", ws.handleUrgency).Methods("GET")
	api.HandleFunc("/inventory", ws.handleInventory).Methods("GET")
	api.HandleFunc("/state", ws.handleState).Methods("GET")
	api.HandleFunc("/rebalances", ws.handleGetRebalances).Methods("GET")
	api.HandleFunc("/rebalances/{id}", ws.handleGetRebalance).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")
	api.HandleFunc("/incentives", ws.handleGetIncentives).Methods("GET")
	// Deposit and withdraw act for whatever owner the body names; there is no
	// authentication. Only fit for the simulated market behind cmd/alm.
	api.HandleFunc("/deposit", ws.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", ws.handleWithdraw).Methods("POST")
	api.HandleFunc("/rebalance", ws.handleRebalance).Methods("POST")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, e.g. for httptest.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server and blocks until it stops.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := ws.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth reports keeper and database health
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	healthy := true
	dbHealthy := true
	if err := ws.history.Ping(); err != nil {
		dbHealthy = false
		healthy = false
	}

	keeperInfo := map[string]interface{}{"configured": ws.keeper != nil}
	if ws.keeper != nil {
		status := ws.keeper.Status()
		keeperInfo["status"] = status
		if !status.Healthy {
			healthy = false
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !healthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "alm-liquidity-vault",
			"version": "1.0.0",
		},
		"database_healthy": dbHealthy,
		"keeper":           keeperInfo,
	})
}

func (ws *WebServer) handleUrgency(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"urgency":              ws.vault.Urgency(r.Context()),
		"recentering_interval": vault.RecenteringInterval.String(),
	})
}

// handleInventory values the vault at the current pool price
func (ws *WebServer) handleInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inventory, breakdown, err := ws.vault.Inventory(ctx)
	if err != nil {
		ws.writeVaultError(w, err, "Failed to compute inventory")
		return
	}
	sqrtPrice, tick, err := ws.vault.Price(ctx)
	if err != nil {
		ws.writeVaultError(w, err, "Failed to read pool price")
		return
	}
	priceX96, err := rangemath.PriceX96(sqrtPrice)
	if err != nil {
		ws.writeVaultError(w, err, "Failed to read pool price")
		return
	}
	ratio, err := vault.InventoryRatio(inventory.Amount0, inventory.Amount1, priceX96)
	if err != nil {
		ws.writeVaultError(w, err, "Failed to compute inventory ratio")
		return
	}

	response := map[string]interface{}{
		"inventory":  inventory,
		"breakdown":  breakdown,
		"ratio_bps":  ratio,
		"tick":       tick,
		"sqrt_price": sqrtPrice,
	}
	if price, err := utils.SqrtPriceToDecimal(sqrtPrice, ws.tokens[0].Precision, ws.tokens[1].Precision); err == nil {
		response["price"] = price.String()
	}
	display := map[string]string{}
	for i, amount := range []sdkmath.Int{inventory.Amount0, inventory.Amount1} {
		if s, err := utils.FormatAmount(amount, ws.tokens[i].Precision); err == nil && ws.tokens[i].Symbol != "" {
			display[ws.tokens[i].Symbol] = s
		}
	}
	if len(display) > 0 {
		response["display"] = display
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleState(w http.ResponseWriter, r *http.Request) {
	cp := ws.vault.State()
	response := map[string]interface{}{
		"main":          cp.State.Main,
		"tilt":          cp.State.Tilt,
		"last_recenter": cp.State.LastRecenter(),
		"sustainable":   cp.State.Sustainable,
		"locked":        cp.State.Locked,
		"ledger":        cp.Ledger,
	}
	if ws.keeper != nil {
		response["keeper"] = ws.keeper.Status()
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRebalances returns recent rebalances, optionally filtered by branch
func (ws *WebServer) handleGetRebalances(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	var branches []types.RebalanceBranch
	for _, b := range r.URL.Query()["branch"] {
		branch := types.RebalanceBranch(b)
		switch branch {
		case types.BranchRecenter, types.BranchTiltAbove, types.BranchTiltBelow:
			branches = append(branches, branch)
		default:
			ws.writeErrorResponse(w, http.StatusBadRequest, "Unknown branch "+strconv.Quote(b))
			return
		}
	}

	events, err := ws.history.RecentRebalances(limit, branches...)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent rebalances")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rebalances")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"rebalances": events,
		"count":      len(events),
		"limit":      limit,
	})
}

// handleGetRebalance returns a specific rebalance by ID
func (ws *WebServer) handleGetRebalance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	event, err := ws.history.RebalanceByID(id)
	if errors.Is(err, state.ErrNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Rebalance not found")
		return
	}
	if err != nil {
		webLogger.Error().Err(err).Str("eventId", id).Msg("Failed to get rebalance")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rebalance")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, event)
}

// handleGetSummary returns vault summary statistics
func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.history.Summary()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get vault summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) handleGetIncentives(w http.ResponseWriter, r *http.Request) {
	metrics, err := ws.history.Incentives()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get incentive metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve incentive metrics")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, metrics)
}

type depositRequest struct {
	Owner string `json:"owner"`
	Max0  string `json:"max0"`
	Max1  string `json:"max1"`
	Min0  string `json:"min0"`
	Min1  string `json:"min1"`
}

type withdrawRequest struct {
	Owner  string `json:"owner"`
	Shares string `json:"shares"`
	Min0   string `json:"min0"`
	Min1   string `json:"min1"`
}

type rebalanceRequest struct {
	Caller      string           `json:"caller"`
	RewardToken types.TokenIndex `json:"reward_token"`
}

// parseAmounts reads decimal integer strings; an empty minimum means zero.
func parseAmounts(fields map[string]string, optional ...string) (map[string]sdkmath.Int, error) {
	out := make(map[string]sdkmath.Int, len(fields))
	for name, raw := range fields {
		if raw == "" {
			for _, o := range optional {
				if o == name {
					raw = "0"
				}
			}
		}
		x, ok := sdkmath.NewIntFromString(raw)
		if !ok {
			return nil, fmt.Errorf("%s must be a base-10 integer, got %q", name, raw)
		}
		out[name] = x
	}
	return out, nil
}

// handleDeposit pulls tokens from req.Owner without checking who is asking.
func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amounts, err := parseAmounts(map[string]string{
		"max0": req.Max0, "max1": req.Max1, "min0": req.Min0, "min1": req.Min1,
	}, "min0", "min1")
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := ws.vault.Deposit(r.Context(), req.Owner, amounts["max0"], amounts["max1"], amounts["min0"], amounts["min1"])
	if err != nil {
		ws.writeVaultError(w, err, "Deposit failed")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

// handleWithdraw burns req.Owner's shares without checking who is asking.
func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amounts, err := parseAmounts(map[string]string{
		"shares": req.Shares, "min0": req.Min0, "min1": req.Min1,
	}, "min0", "min1")
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := ws.vault.Withdraw(r.Context(), req.Owner, amounts["shares"], amounts["min0"], amounts["min1"])
	if err != nil {
		ws.writeVaultError(w, err, "Withdrawal failed")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

func (ws *WebServer) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	event, err := ws.vault.Rebalance(r.Context(), req.Caller, req.RewardToken)
	if err != nil {
		ws.writeVaultError(w, err, "Rebalance failed")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, event)
}

// statusFor maps vault errors onto HTTP status codes.
func (ws *WebServer) statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrSlippageExceeded):
		return http.StatusConflict
	case errors.Is(err, vault.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, vault.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	}
	for _, target := range ws.clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func (ws *WebServer) writeVaultError(w http.ResponseWriter, err error, message string) {
	status := ws.statusFor(err)
	if status == http.StatusInternalServerError {
		webLogger.Error().Err(err).Msg(message)
	} else {
		webLogger.Debug().Err(err).Int("status", status).Msg(message)
	}
	ws.writeErrorResponse(w, status, message+": "+err.Error())
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
