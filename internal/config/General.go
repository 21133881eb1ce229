package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/alm/internal/types"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// KeeperAccount is the account rebalance incentives are paid to.
	KeeperAccount string
	// KeeperInterval is how often the keeper calls Rebalance.
	KeeperInterval time.Duration
	// KeeperMaxFailures is how many failed cycles in a row mark the keeper unhealthy.
	KeeperMaxFailures int

	// Pair is the vault's token0 and token1.
	Pair [2]types.Token

	// MarketStepsPerCycle is how many simulated market steps run between keeper cycles.
	MarketStepsPerCycle int
	// DemoDeposit is how many whole tokens of each side seed a fresh vault. Zero disables.
	DemoDeposit float64
	// RestoreState installs the saved checkpoint on startup. Only meaningful when the
	// market behind the vault outlives the process.
	RestoreState bool

	// PriceHistoryHours of hourly closes seed the volatility oracle at startup. Zero disables.
	PriceHistoryHours int
	// CryptoCompareAPIKey authenticates the price history request.
	CryptoCompareAPIKey string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// KEEPER_ACCOUNT and the DB_USER/DB_NAME pair are required; the rest have defaults.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	KeeperAccount, err = getEnv("KEEPER_ACCOUNT")
	if err != nil {
		return err
	}

	KeeperInterval, err = getEnvAsDurationOrDefault("KEEPER_INTERVAL", time.Hour)
	if err != nil {
		return err
	}

	KeeperMaxFailures, err = getEnvAsIntOrDefault("KEEPER_MAX_FAILURES", 3)
	if err != nil {
		return err
	}

	Pair, err = ParsePair(getEnvOrDefault("VAULT_PAIR", "ATOM/USDC"))
	if err != nil {
		return err
	}

	MarketStepsPerCycle, err = getEnvAsIntOrDefault("MARKET_STEPS_PER_CYCLE", 12)
	if err != nil {
		return err
	}

	DemoDeposit, err = getEnvAsFloat64OrDefault("DEMO_DEPOSIT", 10_000)
	if err != nil {
		return err
	}
	if DemoDeposit < 0 {
		return errors.New("DEMO_DEPOSIT cannot be negative")
	}

	RestoreState, err = getEnvAsBoolOrDefault("RESTORE_STATE", false)
	if err != nil {
		return err
	}

	PriceHistoryHours, err = getEnvAsIntOrDefault("PRICE_HISTORY_HOURS", 0)
	if err != nil {
		return err
	}
	CryptoCompareAPIKey = getEnvOrDefault("CRYPTOCOMPARE_API", "")
	if PriceHistoryHours > 0 && CryptoCompareAPIKey == "" {
		return errors.New("CRYPTOCOMPARE_API is required when PRICE_HISTORY_HOURS is set")
	}

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	if err := loadSimulationOverrides(&SimulationParameters); err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("KeeperAccount", KeeperAccount).
		Dur("KeeperInterval", KeeperInterval).
		Str("Pair", Pair[0].Symbol+"/"+Pair[1].Symbol).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsIntOrDefault retrieves an environment variable as an int. Returns error if set but invalid.
func getEnvAsIntOrDefault(key string, fallback int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt64OrDefault retrieves an environment variable as an int64. Returns error if set but invalid.
func getEnvAsInt64OrDefault(key string, fallback int64) (int64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64OrDefault retrieves an environment variable as a float64. Returns error if set but invalid.
func getEnvAsFloat64OrDefault(key string, fallback float64) (float64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsDurationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsBoolOrDefault(key string, fallback bool) (bool, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}
