package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("KEEPER_ACCOUNT", "keeper")
	t.Setenv("DB_USER", "alm")
	t.Setenv("DB_NAME", "alm")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)
	saved := SimulationParameters
	t.Cleanup(func() { SimulationParameters = saved })

	require.NoError(t, LoadConfig())
	assert.Equal(t, "keeper", KeeperAccount)
	assert.Equal(t, time.Hour, KeeperInterval)
	assert.Equal(t, 3, KeeperMaxFailures)
	assert.Equal(t, "ATOM", Pair[0].Symbol)
	assert.Equal(t, "uusdc", Pair[1].Denom)
	assert.False(t, RestoreState)
	assert.Zero(t, PriceHistoryHours)
	assert.Equal(t, 10_000.0, DemoDeposit)
	assert.Equal(t, "8080", WebPort)
	assert.Equal(t, 5432, Database.Port)
	assert.Equal(t, "disable", Database.SSLMode)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	saved, savedOracle := SimulationParameters, OracleParameters
	t.Cleanup(func() { SimulationParameters, OracleParameters = saved, savedOracle })

	t.Setenv("KEEPER_INTERVAL", "90s")
	t.Setenv("VAULT_PAIR", "weth/usdt")
	t.Setenv("RESTORE_STATE", "true")
	t.Setenv("SIM_SEED", "7")
	t.Setenv("SIM_SIGMA", "0.1")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("PRICE_HISTORY_HOURS", "168")
	t.Setenv("CRYPTOCOMPARE_API", "key")

	require.NoError(t, LoadConfig())
	assert.Equal(t, 90*time.Second, KeeperInterval)
	assert.Equal(t, 18, Pair[0].Precision)
	assert.Equal(t, "USDT", Pair[1].Symbol)
	assert.True(t, RestoreState)
	assert.Equal(t, int64(7), SimulationParameters.Seed)
	assert.Equal(t, 0.1, SimulationParameters.Sigma)
	assert.Equal(t, 0.1, OracleParameters.FallbackSigma)
	assert.Equal(t, 6543, Database.Port)
	assert.Equal(t, 168, PriceHistoryHours)
	assert.Equal(t, "key", CryptoCompareAPIKey)
}

func TestLoadConfig_Errors(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"missing keeper":      {"KEEPER_ACCOUNT": ""},
		"missing db user":     {"DB_USER": ""},
		"bad interval":        {"KEEPER_INTERVAL": "soon"},
		"negative interval":   {"KEEPER_INTERVAL": "-1m"},
		"bad restore flag":    {"RESTORE_STATE": "perhaps"},
		"unknown token":       {"VAULT_PAIR": "ATOM/DOGE"},
		"bad db port":         {"DB_PORT": "postgres"},
		"history without key": {"PRICE_HISTORY_HOURS": "24", "CRYPTOCOMPARE_API": ""},
		"negative deposit":    {"DEMO_DEPOSIT": "-1"},
	} {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			assert.Error(t, LoadConfig())
		})
	}
}

func TestParsePair(t *testing.T) {
	pair, err := ParsePair(" atom/USDC ")
	require.NoError(t, err)
	assert.Equal(t, "uatom", pair[0].Denom)
	assert.Equal(t, 6, pair[1].Precision)

	for _, bad := range []string{"", "ATOM", "ATOM/", "ATOM/ATOM", "ATOM/USDC/OSMO"} {
		_, err := ParsePair(bad)
		assert.Error(t, err, bad)
	}
}
