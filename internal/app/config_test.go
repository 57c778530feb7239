package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop-api/internal/repository"
)

func validConfig() Config {
	return Config{
		Addr:          defaultAddr,
		DatabaseURL:   "postgres://localhost/shop",
		TxMaxAttempts: 5,
		JWT:           JWTConfig{Secret: "s3cret", Issuer: "shop-api", TTL: time.Hour},
		RateLimit:     RateLimitConfig{Max: 100, Window: time.Minute},
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SHOP_DATABASE_URL", "postgres://db/shop")
	t.Setenv("SHOP_JWT_SECRET", "s3cret")
	t.Setenv("SHOP_TX_MAX_ATTEMPTS", "7")

	cfg, err := loadConfig([]string{})
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/shop", cfg.DatabaseURL)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "shop-api", cfg.JWT.Issuer)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 7, cfg.TxMaxAttempts)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, 3*time.Second, cfg.Graceful.ReadinessDelay)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SHOP_DATABASE_URL", "postgres://db/shop")
	t.Setenv("SHOP_JWT_SECRET", "s3cret")
	t.Setenv("PORT", "")

	cfg, err := loadConfig([]string{})
	require.NoError(t, err)
	assert.Equal(t, repository.DefaultTxMaxAttempts, cfg.TxMaxAttempts)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	var cfg Config
	cfg.Addr = defaultAddr
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	cfg = Config{Addr: "127.0.0.1:1234", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:1234", cfg.Addr)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL"},
		{name: "no secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: "JWT secret"},
		{name: "zero attempts", mutate: func(c *Config) { c.TxMaxAttempts = 0 }, wantErr: "tx max attempts"},
		{name: "zero window", mutate: func(c *Config) { c.RateLimit.Window = 0 }, wantErr: "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
