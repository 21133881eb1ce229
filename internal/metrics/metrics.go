/*

Package metrics exports vault activity to Prometheus. VaultMetrics is a vault.EventSink,
so every committed deposit, withdrawal and rebalance updates the series below.

*/

package metrics

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/elys-network/alm/internal/types"
)

type VaultMetrics struct {
	symbols [2]string

	rebalances      *prometheus.CounterVec
	liquidityEvents *prometheus.CounterVec
	incentivePaid   *prometheus.CounterVec
	gasUsed         prometheus.Counter
	budget          *prometheus.GaugeVec
	inventory       *prometheus.GaugeVec
	ratio           prometheus.Gauge
	urgency         prometheus.Gauge
	totalSupply     prometheus.Gauge
	epoch           prometheus.Gauge
	mainRange       *prometheus.GaugeVec
}

// New creates the vault series and registers them with reg. symbols label the two
// tokens.
func New(reg prometheus.Registerer, symbols [2]string) (*VaultMetrics, error) {
	m := &VaultMetrics{
		symbols: symbols,
		rebalances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alm_rebalances_total",
			Help: "Committed rebalance calls by branch taken.",
		}, []string{"branch"}),
		liquidityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alm_liquidity_events_total",
			Help: "Committed deposits and withdrawals.",
		}, []string{"action"}),
		incentivePaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alm_incentive_paid_total",
			Help: "Keeper rewards paid out of the maintenance budget, in base units.",
		}, []string{"token"}),
		gasUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alm_incentive_gas_used_total",
			Help: "Gas charged by rebalance calls.",
		}),
		budget: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alm_maintenance_budget",
			Help: "Maintenance budget after the last rebalance, in base units.",
		}, []string{"token"}),
		inventory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alm_inventory",
			Help: "Shareholder inventory seen by the last rebalance, in base units.",
		}, []string{"token"}),
		ratio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alm_inventory_ratio_bps",
			Help: "Token0 share of inventory value at the last rebalance.",
		}),
		urgency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alm_urgency_bps",
			Help: "Urgency the last rebalance was paid at.",
		}),
		totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alm_total_supply",
			Help: "Outstanding vault shares.",
		}),
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alm_reward_epoch",
			Help: "Last reward epoch a rate was recorded for.",
		}),
		mainRange: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alm_main_range_tick",
			Help: "Bounds of the main range.",
		}, []string{"bound"}),
	}

	for _, c := range []prometheus.Collector{
		m.rebalances, m.liquidityEvents, m.incentivePaid, m.gasUsed, m.budget,
		m.inventory, m.ratio, m.urgency, m.totalSupply, m.epoch, m.mainRange,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func toFloat(x sdkmath.Int) float64 {
	if x.IsNil() {
		return 0
	}
	return decimal.NewFromBigInt(x.BigInt(), 0).InexactFloat64()
}

func (m *VaultMetrics) OnDeposit(_ context.Context, e types.LiquidityEvent) {
	m.onLiquidity(e)
}

func (m *VaultMetrics) OnWithdraw(_ context.Context, e types.LiquidityEvent) {
	m.onLiquidity(e)
}

func (m *VaultMetrics) onLiquidity(e types.LiquidityEvent) {
	if m == nil {
		return
	}
	m.liquidityEvents.WithLabelValues(string(e.Action)).Inc()
	m.totalSupply.Set(toFloat(e.TotalSupply))
}

func (m *VaultMetrics) OnRebalance(_ context.Context, e types.RebalanceEvent) {
	if m == nil {
		return
	}
	m.rebalances.WithLabelValues(string(e.Branch)).Inc()
	if e.RewardToken.Valid() {
		m.incentivePaid.WithLabelValues(m.symbols[e.RewardToken]).Add(toFloat(e.Reward))
	}
	m.gasUsed.Add(float64(e.GasUsed))

	for i, symbol := range m.symbols {
		m.budget.WithLabelValues(symbol).Set(toFloat(e.Budgets[i]))
	}
	m.inventory.WithLabelValues(m.symbols[0]).Set(toFloat(e.Inventory0))
	m.inventory.WithLabelValues(m.symbols[1]).Set(toFloat(e.Inventory1))
	m.ratio.Set(float64(e.Ratio))
	m.urgency.Set(float64(e.Urgency))
	m.totalSupply.Set(toFloat(e.TotalSupply))
	m.epoch.Set(float64(e.Epoch))
	m.mainRange.WithLabelValues("lower").Set(float64(e.Main.Lower))
	m.mainRange.WithLabelValues("upper").Set(float64(e.Main.Upper))
}
