package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("IMPORT_MAX_ROWS", "")
	t.Setenv("STATS_CACHE_TTL_SECONDS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1000, cfg.ImportMaxRows)
	assert.Equal(t, 60*time.Second, cfg.StatsCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("IMPORT_MAX_ROWS", "25")
	t.Setenv("IMPORT_RATE_PER_SECOND", "0.5")
	t.Setenv("OCR_ENABLED", "false")
	t.Setenv("TIMEZONE", "Asia/Tokyo")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 25, cfg.ImportMaxRows)
	assert.InDelta(t, 0.5, cfg.ImportRatePerSecond, 1e-9)
	assert.False(t, cfg.OCREnabled)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestLoad_IgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("IMPORT_MAX_ROWS", "lots")
	t.Setenv("S3_USE_SSL", "maybe")

	cfg := Load()

	assert.Equal(t, 1000, cfg.ImportMaxRows)
	assert.False(t, cfg.S3UseSSL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DatabaseURL:            "postgres://localhost/test",
			JWTSecret:              "secret",
			Environment:            "development",
			Timezone:               "UTC",
			ImportMaxRows:          10,
			ImportCheckConcurrency: 2,
			ImportRatePerSecond:    1,
			ImportRateBurst:        1,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{"valid", func(c *Config) {}, true},
		{"missing database", func(c *Config) { c.DatabaseURL = "" }, false},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, false},
		{"zero rows", func(c *Config) { c.ImportMaxRows = 0 }, false},
		{"zero concurrency", func(c *Config) { c.ImportCheckConcurrency = 0 }, false},
		{"zero rate", func(c *Config) { c.ImportRatePerSecond = 0 }, false},
		{"default secret in production", func(c *Config) {
			c.Environment = "production"
			c.JWTSecret = "change-me-in-production-please"
		}, false},
		{"default secret in development", func(c *Config) {
			c.JWTSecret = "change-me-in-production-please"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStorageEnabled(t *testing.T) {
	cfg := &Config{S3Endpoint: "localhost:3900"}
	assert.False(t, cfg.StorageEnabled())

	cfg.S3AccessKey = "key"
	cfg.S3SecretKey = "secret"
	assert.True(t, cfg.StorageEnabled())
}
