package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
env: prod
http:
  address: ":9090"
storage:
  driver: sqlite
  sqlite_path: /tmp/accounts.db
tokens:
  access_secret: access
  access_ttl: 5m
  refresh_secret: refresh
  refresh_ttl: 48h
cors:
  origin: https://app.example.com
assets:
  driver: local
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadConfig(t *testing.T) {
	cfg := LoadConfig(writeConfig(t, testConfig))

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Tokens.AccessTTL)
	assert.Equal(t, 48*time.Hour, cfg.Tokens.RefreshTTL)
	assert.Equal(t, "https://app.example.com", cfg.CORS.Origin)
	assert.False(t, cfg.Cookie.Insecure)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	assert.Panics(t, func() {
		LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Storage: StorageConfig{Driver: StorageMongo},
			Assets:  AssetsConfig{Driver: AssetsLocal},
			RateLimit: RateLimitConfig{
				Requests: 5,
				Window:   time.Minute,
				Burst:    5,
			},
			Tokens: TokensConfig{
				AccessSecret:  "a",
				AccessTTL:     time.Minute,
				RefreshSecret: "r",
				RefreshTTL:    time.Hour,
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "same secrets",
			mutate: func(c *Config) { c.Tokens.RefreshSecret = c.Tokens.AccessSecret },
			errMsg: "must differ",
		},
		{
			name:   "empty secret",
			mutate: func(c *Config) { c.Tokens.AccessSecret = "" },
			errMsg: "secrets must be set",
		},
		{
			name:   "zero ttl",
			mutate: func(c *Config) { c.Tokens.AccessTTL = 0 },
			errMsg: "ttls must be positive",
		},
		{
			name:   "zero rate limit window",
			mutate: func(c *Config) { c.RateLimit.Window = 0 },
			errMsg: "rate limit requests, window and burst must be positive",
		},
		{
			name:   "zero rate limit burst",
			mutate: func(c *Config) { c.RateLimit.Burst = 0 },
			errMsg: "rate limit requests, window and burst must be positive",
		},
		{
			name:   "trusted proxies",
			mutate: func(c *Config) { c.RateLimit.TrustedProxies = []string{"10.0.0.0/8", "127.0.0.1"} },
		},
		{
			name:   "bad trusted proxy",
			mutate: func(c *Config) { c.RateLimit.TrustedProxies = []string{"not-an-ip"} },
			errMsg: "invalid trusted proxy",
		},
		{
			name:   "unknown storage",
			mutate: func(c *Config) { c.Storage.Driver = "postgres" },
			errMsg: "unknown storage driver",
		},
		{
			name:   "s3 without bucket",
			mutate: func(c *Config) { c.Assets.Driver = AssetsS3 },
			errMsg: "s3 bucket must be set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}
