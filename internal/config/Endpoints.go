package config

import (
	"github.com/rs/zerolog/log"

	"github.com/elys-network/alm/internal/state"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port of the HTTP API and /metrics.
	WebPort string
	// GRPCPort is the port of the gRPC health service.
	GRPCPort string
	// Database holds the PostgreSQL connection parameters.
	Database state.DBConfig
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	GRPCPort = getEnvOrDefault("GRPC_PORT", "9090")

	Database, err = LoadDatabaseConfig()
	if err != nil {
		return err
	}

	log.Debug().
		Str("WebPort", WebPort).
		Str("GRPCPort", GRPCPort).
		Str("DBHost", Database.Host).
		Str("DBName", Database.DBName).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// LoadDatabaseConfig reads the DB_* variables. DB_USER and DB_NAME are required.
func LoadDatabaseConfig() (state.DBConfig, error) {
	cfg := state.DBConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	var err error
	if cfg.User, err = getEnv("DB_USER"); err != nil {
		return cfg, err
	}
	if cfg.DBName, err = getEnv("DB_NAME"); err != nil {
		return cfg, err
	}
	if cfg.Port, err = getEnvAsIntOrDefault("DB_PORT", 5432); err != nil {
		return cfg, err
	}
	return cfg, nil
}
