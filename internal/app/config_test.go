package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/freshcart/internal/notify"
)

func validConfig() Config {
	return Config{
		Addr:         "0.0.0.0:8080",
		Storage:      StoragePostgres,
		DatabaseURL:  "postgres://localhost/fresh",
		APIKeyPepper: "pepper",
		Timezone:     "UTC",
		RateLimit:    RateLimitConfig{Max: 100, Window: time.Minute},
	}
}

func TestConfig_Validate(t *testing.T) {
	for _, tt := range []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{name: "Valid", modify: func(*Config) {}},
		{
			name:    "MissingDatabaseURL",
			modify:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: "database URL is required",
		},
		{
			name:   "MemoryWithoutDatabaseURL",
			modify: func(c *Config) { c.Storage, c.DatabaseURL = StorageMemory, "" },
		},
		{
			name:    "UnknownStorage",
			modify:  func(c *Config) { c.Storage = "sqlite" },
			wantErr: `unknown storage "sqlite"`,
		},
		{
			name:    "MissingPepper",
			modify:  func(c *Config) { c.APIKeyPepper = "" },
			wantErr: "pepper is required",
		},
		{
			name:    "ZeroRateLimit",
			modify:  func(c *Config) { c.RateLimit.Max = 0 },
			wantErr: "rate limit",
		},
		{
			name:    "BadTimezone",
			modify:  func(c *Config) { c.Timezone = "Mars/Olympus" },
			wantErr: "Mars/Olympus",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_Location(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Timezone = "Asia/Seoul"
	require.NoError(t, cfg.validate())
	assert.Equal(t, "Asia/Seoul", cfg.Location().String())
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := validConfig()
	cfg.DatabaseURL = ""
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, notify.DefaultDedupTTL, cfg.Redis.DedupTTL)

	cfg = validConfig()
	cfg.Addr = "127.0.0.1:7000"
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://localhost/fresh", cfg.DatabaseURL, "explicit URL wins")
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr, "explicit address wins")
}

func TestConfig_MemoryUsesDevPepper(t *testing.T) {
	cfg := validConfig()
	cfg.Storage = StorageMemory
	cfg.APIKeyPepper = ""
	cfg.applyPlatformDefaults()
	assert.Equal(t, devPepper, cfg.APIKeyPepper)
	require.NoError(t, cfg.validate())
}
