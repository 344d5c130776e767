package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MULTISIG_ADDRESS", "0:multisig")
	t.Setenv("VESTING_CONTRACT_ADDRESS", "0:vesting")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "persistent.db", cfg.DatabasePath)
	require.Equal(t, "debug", cfg.LogLevel)
	require.True(t, cfg.Console)
	require.Equal(t, "V4R2", cfg.WalletVersion)
	require.Equal(t, 30*time.Second, cfg.SyncInterval)
	require.Equal(t, ":2112", cfg.MetricsAddr)
}

func TestLoadRequiresAddresses(t *testing.T) {
	t.Setenv("MULTISIG_ADDRESS", "")
	t.Setenv("VESTING_CONTRACT_ADDRESS", "0:vesting")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("MULTISIG_ADDRESS", "0:multisig")
	t.Setenv("VESTING_CONTRACT_ADDRESS", "")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MULTISIG_ADDRESS", "0:multisig")
	t.Setenv("VESTING_CONTRACT_ADDRESS", "0:vesting")
	t.Setenv("SYNC_INTERVAL_SECONDS", "5")
	t.Setenv("CHAIN_ID", "42")
	t.Setenv("WALLET_VERSION", "V5R1")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.SyncInterval)
	require.EqualValues(t, 42, cfg.ChainID)
	require.Equal(t, "V5R1", cfg.WalletVersion)
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("MULTISIG_ADDRESS", "0:multisig")
	t.Setenv("VESTING_CONTRACT_ADDRESS", "0:vesting")
	t.Setenv("CHAIN_ID", "mainnet")
	_, err := Load()
	require.Error(t, err)
}
