package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoad_defaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	require.Equal(t, config.DriverFile, cfg.Storage.Driver)
	require.Equal(t, "blockchain.json", cfg.Storage.LedgerPath)
	require.Equal(t, 2, cfg.Ledger.Capacity)
	require.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, 5*time.Minute, cfg.Ledger.AuditInterval)
	require.Len(t, cfg.Accounts.Seed, 2)
	require.Equal(t, "manu", cfg.Accounts.Seed[0].Username)
}

func TestLoad_fileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ledger:
  capacity: 4
  verify_on_load: true
accounts:
  scheme: bcrypt
  seed: []
`), 0o600))
	t.Setenv("AUTHENTICHAIN_SERVER_PORT", "9090")

	cfg, err := config.Load(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Ledger.Capacity)
	require.True(t, cfg.Ledger.VerifyOnLoad)
	require.Equal(t, "bcrypt", cfg.Accounts.Scheme)
	require.Empty(t, cfg.Accounts.Seed)
	require.Equal(t, 9090, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Storage:  config.StorageConfig{Driver: config.DriverFile, LedgerPath: "l.json", AccountsPath: "u.json"},
			Ledger:   config.LedgerConfig{Capacity: 2},
			Accounts: config.AccountsConfig{Scheme: "sha256"},
		}
	}
	require.NoError(t, base().Validate())

	tests := map[string]func(*config.Config){
		"unknown driver":    func(c *config.Config) { c.Storage.Driver = "sqlite" },
		"postgres no url":   func(c *config.Config) { c.Storage.Driver = config.DriverPostgres },
		"badger no dir":     func(c *config.Config) { c.Storage.Driver = config.DriverBadger },
		"zero capacity":     func(c *config.Config) { c.Ledger.Capacity = 0 },
		"negative audit":    func(c *config.Config) { c.Ledger.AuditInterval = -time.Second },
		"unknown scheme":    func(c *config.Config) { c.Accounts.Scheme = "md5" },
		"short secret":      func(c *config.Config) { c.Auth.TokenSecret = "tiny" },
		"missing file path": func(c *config.Config) { c.Storage.LedgerPath = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}
