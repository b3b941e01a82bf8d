package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"aiforge-core/core/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into dir so no stray .env or config.yaml is picked up
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_FILE", "missing.yaml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 90*time.Second, cfg.NodeStaleAfter)
	assert.Equal(t, 3, cfg.Confirmations()[models.NetworkEthereum])
	assert.Equal(t, 19, cfg.Confirmations()[models.NetworkTron])

	fees, err := cfg.FeeTable()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.3").Equal(fees["subscription"]))
	assert.True(t, decimal.RequireFromString("0.1").Equal(fees["api_usage"]))

	sub, api, err := cfg.NFTPercents()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.3").Equal(sub))
	assert.True(t, decimal.RequireFromString("0.1").Equal(api))
	assert.Empty(t, cfg.Wallets())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	file := `
server_port: "9000"
node_stale_after: 2m
required_confirmations:
  tron: 20
platform_fees:
  job: "0.07"
platform_wallets:
  tron: TPlatformWallet
storage:
  bucket: artifacts
`
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(file), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("PLATFORM_FEE_API", "0.12")
	t.Setenv("ADMIN_WALLETS", " 0xAbC , TAdmin ,")
	t.Setenv("NODE_SWEEP_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.ServerPort)
	assert.Equal(t, 2*time.Minute, cfg.NodeStaleAfter)
	assert.Equal(t, 30*time.Second, cfg.NodeSweepInterval)
	assert.Equal(t, 20, cfg.Confirmations()[models.NetworkTron])
	assert.Equal(t, 3, cfg.Confirmations()[models.NetworkEthereum])
	assert.Equal(t, "TPlatformWallet", cfg.Wallets()[models.NetworkTron])
	assert.Equal(t, []string{"0xAbC", "TAdmin"}, cfg.AdminWallets)
	assert.Equal(t, "artifacts", cfg.Storage.Bucket)

	fees, err := cfg.FeeTable()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.07").Equal(fees["job"]))
	assert.True(t, decimal.RequireFromString("0.12").Equal(fees["api_usage"]))
	assert.True(t, decimal.RequireFromString("0.12").Equal(fees["api_subscription"]))
	assert.True(t, decimal.RequireFromString("0.3").Equal(fees["subscription"]))
}

func TestLoadRejectsBadValues(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_FILE", "missing.yaml")

	tests := []struct {
		key   string
		value string
	}{
		{"PLATFORM_FEE_JOB", "1.5"},
		{"NFT_REWARD_API_PERCENT", "abc"},
		{"ETH_REQUIRED_CONFIRMATIONS", "three"},
		{"TRON_REQUIRED_CONFIRMATIONS", "0"},
		{"NODE_STALE_AFTER", "soon"},
		{"MIN_SPLIT_PERCENT", "120"},
		{"LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
