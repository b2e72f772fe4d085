package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luminacoin/lumina-core/config"
)

func TestDefaultConfigRoundTrip(t *testing.T) {
	home := t.TempDir()

	require.NoError(t, config.WriteDefaultConfig(home))

	cfg, err := config.LoadConfig(home)
	require.NoError(t, err)

	def := config.DefaultConfigWithHome(home)
	require.Equal(t, def.LogLevel, cfg.LogLevel)
	require.Equal(t, def.Staking.MinValidatorStake, cfg.Staking.MinValidatorStake)
	require.Equal(t, def.Staking.HeartbeatInterval, cfg.Staking.HeartbeatInterval)
	require.Equal(t, def.DatabaseConfig.DBFile(), cfg.DatabaseConfig.DBFile())
}

func TestValidateRejectsBadValues(t *testing.T) {
	home := t.TempDir()

	cfg := config.DefaultConfigWithHome(home)
	cfg.NodeAddress = "not-an-address"
	require.Error(t, cfg.Validate())

	cfg = config.DefaultConfigWithHome(home)
	cfg.Staking.HeartbeatInterval = 0
	require.Error(t, cfg.Validate())

	cfg = config.DefaultConfigWithHome(home)
	cfg.Staking.UptimeWindow = cfg.Staking.HeartbeatInterval - 1
	require.Error(t, cfg.Validate())
}
