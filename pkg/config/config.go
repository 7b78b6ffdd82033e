// Copyright 2025 Worldtree Labs
//
// Configuration for the identity coordinator. Values come from an optional
// YAML file and environment variables; the environment always wins.

package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the coordinator service.
type Config struct {
	// Contract binding
	IdentityManagerAddress string `yaml:"identity_manager_address"`
	TreeDepth              int    `yaml:"tree_depth"`
	InitialLeafValue       string `yaml:"initial_leaf_value"`

	// Prover service
	MtbProverURL         string `yaml:"mtb_prover_url"`
	MtbProverTimeoutSecs uint64 `yaml:"mtb_prover_timeout_secs"`
	BatchSize            int    `yaml:"batch_size"`

	// Ethereum node and signer
	EthereumURL   string `yaml:"ethereum_url"`
	EthChainID    int64  `yaml:"eth_chain_id"`
	EthPrivateKey string `yaml:"eth_private_key"`

	// Database
	DatabaseURL         string `yaml:"database_url"`
	DatabaseMaxConns    int    `yaml:"database_max_conns"`
	DatabaseMinConns    int    `yaml:"database_min_conns"`
	DatabaseMaxIdleTime int    `yaml:"database_max_idle_time"` // seconds
	DatabaseMaxLifetime int    `yaml:"database_max_lifetime"`  // seconds

	// Service
	MetricsAddr          string `yaml:"metrics_addr"`
	HealthAddr           string `yaml:"health_addr"`
	LogLevel             string `yaml:"log_level"`
	RootPollIntervalSecs uint64 `yaml:"root_poll_interval_secs"`
}

// Load reads configuration: defaults first, then the YAML file named by
// CONFIG_FILE (if any), then environment variable overrides. Each option's
// environment variable is its name in uppercase.
func Load() (*Config, error) {
	cfg := &Config{
		TreeDepth:            10,
		InitialLeafValue:     "0x0",
		MtbProverURL:         "http://localhost:3001",
		MtbProverTimeoutSecs: 30,
		BatchSize:            50,
		EthChainID:           11155111,
		DatabaseMaxConns:     25,
		DatabaseMinConns:     5,
		DatabaseMaxIdleTime:  300,
		DatabaseMaxLifetime:  3600,
		MetricsAddr:          "0.0.0.0:9090",
		HealthAddr:           "0.0.0.0:8081",
		LogLevel:             "info",
		RootPollIntervalSecs: 15,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.IdentityManagerAddress = getEnv("IDENTITY_MANAGER_ADDRESS", cfg.IdentityManagerAddress)
	cfg.TreeDepth = getEnvInt("TREE_DEPTH", cfg.TreeDepth)
	cfg.InitialLeafValue = getEnv("INITIAL_LEAF_VALUE", cfg.InitialLeafValue)
	cfg.MtbProverURL = getEnv("MTB_PROVER_URL", cfg.MtbProverURL)
	cfg.MtbProverTimeoutSecs = getEnvUint64("MTB_PROVER_TIMEOUT_SECS", cfg.MtbProverTimeoutSecs)
	cfg.BatchSize = getEnvInt("BATCH_SIZE", cfg.BatchSize)
	cfg.EthereumURL = getEnv("ETHEREUM_URL", cfg.EthereumURL)
	cfg.EthChainID = getEnvInt64("ETH_CHAIN_ID", cfg.EthChainID)
	cfg.EthPrivateKey = getEnv("ETH_PRIVATE_KEY", cfg.EthPrivateKey)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DatabaseMaxConns = getEnvInt("DATABASE_MAX_CONNS", cfg.DatabaseMaxConns)
	cfg.DatabaseMinConns = getEnvInt("DATABASE_MIN_CONNS", cfg.DatabaseMinConns)
	cfg.DatabaseMaxIdleTime = getEnvInt("DATABASE_MAX_IDLE_TIME", cfg.DatabaseMaxIdleTime)
	cfg.DatabaseMaxLifetime = getEnvInt("DATABASE_MAX_LIFETIME", cfg.DatabaseMaxLifetime)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.HealthAddr = getEnv("HEALTH_ADDR", cfg.HealthAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.RootPollIntervalSecs = getEnvUint64("ROOT_POLL_INTERVAL_SECS", cfg.RootPollIntervalSecs)

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent.
// This must be called after Load() before starting the service.
func (c *Config) Validate() error {
	var errs []string

	if c.IdentityManagerAddress == "" {
		errs = append(errs, "IDENTITY_MANAGER_ADDRESS is required but not set")
	}
	if c.TreeDepth < 1 {
		errs = append(errs, "TREE_DEPTH must be at least 1")
	}
	if c.BatchSize < 1 {
		errs = append(errs, "BATCH_SIZE must be at least 1")
	}
	if c.MtbProverURL == "" {
		errs = append(errs, "MTB_PROVER_URL is required but not set")
	}
	if c.EthereumURL == "" {
		errs = append(errs, "ETHEREUM_URL is required but not set")
	}
	if c.EthPrivateKey == "" {
		errs = append(errs, "ETH_PRIVATE_KEY is required but not set")
	}
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required but not set")
	}
	if _, err := c.ParseInitialLeafValue(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseInitialLeafValue parses the empty-leaf value and checks it is a
// reduced element of the tree hash's scalar field.
func (c *Config) ParseInitialLeafValue() (*big.Int, error) {
	digits := strings.TrimPrefix(c.InitialLeafValue, "0x")
	value, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("INITIAL_LEAF_VALUE %q is not valid hex", c.InitialLeafValue)
	}
	if value.Sign() < 0 || value.Cmp(fr.Modulus()) >= 0 {
		return nil, fmt.Errorf("INITIAL_LEAF_VALUE %q is not a reduced field element", c.InitialLeafValue)
	}
	return value, nil
}

// ProverTimeout returns the prover timeout as a duration.
func (c *Config) ProverTimeout() time.Duration {
	return time.Duration(c.MtbProverTimeoutSecs) * time.Second
}

// RootPollInterval returns the contract polling cadence as a duration.
func (c *Config) RootPollInterval() time.Duration {
	return time.Duration(c.RootPollIntervalSecs) * time.Second
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
