package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/alm/internal/analyzer"
	"github.com/elys-network/alm/internal/config"
	"github.com/elys-network/alm/internal/datafetcher"
	"github.com/elys-network/alm/internal/keeper"
	"github.com/elys-network/alm/internal/logger"
	"github.com/elys-network/alm/internal/metrics"
	"github.com/elys-network/alm/internal/simulations"
	"github.com/elys-network/alm/internal/state"
	"github.com/elys-network/alm/internal/types"
	"github.com/elys-network/alm/internal/utils"
	"github.com/elys-network/alm/internal/vault"
	"github.com/elys-network/alm/internal/web"
)

const (
	// demoAccount seeds the vault on a fresh start so there is something to manage.
	demoAccount        = "alm-demo"
	healthRefreshEvery = 30 * time.Second
)

// main is the entry point for the ALM vault and its keeper.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("ALM vault starting...")

	if err := state.InitDB(config.Database); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	var restore *vault.Checkpoint
	if config.RestoreState {
		cp, err := state.LoadVaultState()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load saved vault state")
		}
		restore = cp
	}

	// --- 2. Market and Vault ---
	market, err := simulations.NewMarket(time.Now(), config.Pair, config.SimulationParameters)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create simulated market")
	}

	vaultMetrics, err := metrics.New(prometheus.DefaultRegisterer, [2]string{config.Pair[0].Symbol, config.Pair[1].Symbol})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register vault metrics")
	}

	oracle, err := analyzer.NewHistoricalOracle(config.OracleParameters)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create volatility oracle")
	}
	if config.PriceHistoryHours > 0 {
		seedPriceHistory(market, oracle)
	}

	v, err := vault.New(vault.Config{
		Account:  simulations.VaultAccount,
		Market:   market.Pool,
		Tokens:   [2]vault.Token{market.Tokens[0], market.Tokens[1]},
		Reserves: [2]vault.Reserve{market.Reserves[0], market.Reserves[1]},
		Oracle:   oracle,
		Shares:   market.Shares,
		Env:      market.World,
		Sink:     vault.MultiSink{state.EventStore{}, vaultMetrics},
		Restore:  restore,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault")
	}
	guarded := &guardedVault{vault: v}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if restore == nil && config.DemoDeposit > 0 {
		seedDemoDeposit(ctx, market, guarded)
	}

	// --- 3. Keeper ---
	k, err := keeper.New(keeper.Config{
		Vault:          guarded,
		Caller:         config.KeeperAccount,
		Pool:           market.Pool.Name(),
		Observer:       oracle,
		NextCycle:      state.IncrementCycleNumber,
		SaveCheckpoint: state.SaveVaultState,
		Now:            market.World.Now,
		MaxFailures:    config.KeeperMaxFailures,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}

	// --- 4. Servers ---
	webServer, err := web.NewWebServer(web.Config{
		Port:         config.WebPort,
		Vault:        guarded,
		Tokens:       config.Pair,
		Keeper:       k,
		ClientErrors: []error{simulations.ErrInsufficientBalance, simulations.ErrInsufficientLiq},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create web server")
	}
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting ALM web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	grpcServer := web.NewGRPCServer(k)
	lis, err := net.Listen("tcp", ":"+config.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", config.GRPCPort).Msg("Failed to listen for gRPC")
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()
	go grpcServer.Watch(ctx, healthRefreshEvery)

	// --- 5. Market driver and keeper loop ---
	go driveMarket(ctx, market, guarded, config.KeeperInterval/time.Duration(max(config.MarketStepsPerCycle, 1)))

	log.Info().Str("interval", config.KeeperInterval.String()).Msg("Starting keeper main loop")
	k.RunLoop(ctx, config.KeeperInterval)

	// --- 6. Shutdown ---
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	grpcServer.Stop()
	if err := state.SaveVaultState(guarded.State()); err != nil {
		log.Error().Err(err).Msg("Failed to save final vault state")
	}
	log.Info().Msg("ALM vault stopped")
}

// driveMarket steps the simulated market every interval until ctx is done.
func driveMarket(ctx context.Context, market *simulations.Market, guarded *guardedVault, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			guarded.mu.Lock()
			_, err := market.Driver.Step()
			guarded.mu.Unlock()
			if err != nil {
				log.Error().Err(err).Msg("Market step failed")
			}
		}
	}
}

// seedDemoDeposit funds demoAccount and deposits on its behalf.
func seedDemoDeposit(ctx context.Context, market *simulations.Market, guarded *guardedVault) {
	var amounts [2]sdkmath.Int
	for i, token := range config.Pair {
		amount, err := utils.Float64ToSDKInt(config.DemoDeposit, token.Precision)
		if err != nil {
			log.Error().Err(err).Str("token", token.Symbol).Msg("Invalid demo deposit amount")
			return
		}
		amounts[i] = amount
		market.Tokens[i].Mint(demoAccount, amount)
	}
	receipt, err := guarded.Deposit(ctx, demoAccount, amounts[0], amounts[1], sdkmath.ZeroInt(), sdkmath.ZeroInt())
	if err != nil {
		log.Error().Err(err).Msg("Demo deposit failed")
		return
	}

	event := log.Info().Str("shares", receipt.Shares.String())
	for i, amount := range [2]sdkmath.Int{receipt.Amount0, receipt.Amount1} {
		token := config.Pair[i]
		if whole, err := utils.SDKIntToFloat64(amount, token.Precision); err == nil {
			event = event.Float64(token.Symbol, whole)
		}
	}
	event.Msg("Demo deposit made")
}

// guardedVault serializes vault calls with market steps. The simulated world reverts
// whole snapshots, so a step must never interleave with a call in flight. Mutating calls
// never queue: if a step or another call holds the guard they fail with vault.ErrLocked,
// like a re-entrant call into the vault itself. Market steps wait for the guard.
type guardedVault struct {
	mu    sync.Mutex
	vault *vault.Vault
}

var errBusy = fmt.Errorf("%w: another call or a market step is in flight", vault.ErrLocked)

func (g *guardedVault) Deposit(ctx context.Context, owner string, max0, max1, min0, min1 sdkmath.Int) (types.Receipt, error) {
	if !g.mu.TryLock() {
		return types.Receipt{}, errBusy
	}
	defer g.mu.Unlock()
	return g.vault.Deposit(ctx, owner, max0, max1, min0, min1)
}

func (g *guardedVault) Withdraw(ctx context.Context, owner string, shares, min0, min1 sdkmath.Int) (types.Receipt, error) {
	if !g.mu.TryLock() {
		return types.Receipt{}, errBusy
	}
	defer g.mu.Unlock()
	return g.vault.Withdraw(ctx, owner, shares, min0, min1)
}

func (g *guardedVault) Rebalance(ctx context.Context, caller string, rewardToken types.TokenIndex) (types.RebalanceEvent, error) {
	if !g.mu.TryLock() {
		return types.RebalanceEvent{}, errBusy
	}
	defer g.mu.Unlock()
	return g.vault.Rebalance(ctx, caller, rewardToken)
}

func (g *guardedVault) Urgency(ctx context.Context) uint64 {
	return g.vault.Urgency(ctx)
}

// Inventory waits for the guard so it only ever values committed state.
func (g *guardedVault) Inventory(ctx context.Context) (types.Inventory, types.InventoryBreakdown, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vault.Inventory(ctx)
}

func (g *guardedVault) Price(ctx context.Context) (sdkmath.Int, int32, error) {
	return g.vault.Price(ctx)
}

func (g *guardedVault) State() vault.Checkpoint {
	return g.vault.State()
}

// seedPriceHistory loads real hourly closes for the pair into the oracle. Failures
// only cost the warm start, so they are logged and ignored.
func seedPriceHistory(market *simulations.Market, oracle *analyzer.HistoricalOracle) {
	fetcher, err := datafetcher.NewHourlyPriceFetcher(config.CryptoCompareAPIKey)
	if err != nil {
		log.Warn().Err(err).Msg("Price history disabled")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	history, err := fetcher.Fetch(ctx, config.Pair[0].Symbol, config.Pair[1].Symbol, config.PriceHistoryHours)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch price history, starting with fallback volatility")
		return
	}
	sqrtPrice, _, err := market.Pool.Slot0(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read pool price for history anchor")
		return
	}
	anchor, err := utils.SqrtPriceToFloat64(sqrtPrice)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to convert pool price for history anchor")
		return
	}
	n, err := oracle.Seed(market.Pool.Name(), history, anchor, market.World.Now())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to seed volatility oracle")
		return
	}
	log.Info().Int("points", n).Msg("Volatility oracle seeded from price history")
}
