// Package config loads engine configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// persistence
	DatabasePath string

	// logging
	LogFile   string
	ErrorFile string
	LogLevel  string
	Console   bool

	// chain access
	TonAPIToken           string
	MultisigAddress       string
	VestingContractAddress string
	TokenMasterAddress    string
	OrganizationID        string
	ChainID               int64

	// signer wallet
	WalletMnemonic string
	WalletVersion  string

	// synchronizer
	SyncInterval time.Duration

	// observability
	MetricsAddr string
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:           getEnv("DATABASE_PATH", "persistent.db"),
		LogFile:                os.Getenv("LOG_FILE"),
		ErrorFile:              os.Getenv("ERROR_FILE"),
		LogLevel:               getEnv("LOG_LEVEL", "debug"),
		Console:                getEnv("LOG_CONSOLE", "true") == "true",
		TonAPIToken:            os.Getenv("TONAPI_TOKEN"),
		MultisigAddress:        os.Getenv("MULTISIG_ADDRESS"),
		VestingContractAddress: os.Getenv("VESTING_CONTRACT_ADDRESS"),
		TokenMasterAddress:     os.Getenv("TOKEN_MASTER_ADDRESS"),
		OrganizationID:         os.Getenv("ORGANIZATION_ID"),
		WalletMnemonic:         os.Getenv("WALLET_MNEMONIC"),
		WalletVersion:          getEnv("WALLET_VERSION", "V4R2"),
		MetricsAddr:            getEnv("METRICS_ADDR", ":2112"),
	}

	chainID, err := strconv.ParseInt(getEnv("CHAIN_ID", "0"), 10, 64)
	if err != nil {
		return nil, errors.New("config: CHAIN_ID must be an integer")
	}
	cfg.ChainID = chainID

	syncSeconds, err := strconv.Atoi(getEnv("SYNC_INTERVAL_SECONDS", "30"))
	if err != nil {
		return nil, errors.New("config: SYNC_INTERVAL_SECONDS must be an integer")
	}
	cfg.SyncInterval = time.Duration(syncSeconds) * time.Second

	if cfg.MultisigAddress == "" {
		return nil, errors.New("config: MULTISIG_ADDRESS is required")
	}
	if cfg.VestingContractAddress == "" {
		return nil, errors.New("config: VESTING_CONTRACT_ADDRESS is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
