package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	config := LoadConfig()
	assert.Equal(t, "localhost:6379", config.RedisAddr)
	assert.Equal(t, 0, config.RedisDB)
	assert.Equal(t, "localhost:11211", config.MemcacheAddr)
	assert.Equal(t, 280.0, config.ExchangeRate)
	assert.Equal(t, 3, config.TopN)
	assert.Equal(t, 6*time.Hour, config.FreshWindow)
	assert.Equal(t, 6*time.Hour, config.RefreshInterval)
	assert.Equal(t, 3, config.MaxWorkers)

	// Test with environment variables
	os.Setenv("REDIS_ADDR", "redis.example.com:6379")
	os.Setenv("TOP_N_RECOMMENDATIONS", "5")
	os.Setenv("FRESH_WINDOW_HOURS", "12")
	os.Setenv("DARAZ_URL", "https://example.com/catalog/")
	os.Setenv("EXCHANGE_RATE_PKR_USD", "300")

	config = LoadConfig()
	assert.Equal(t, "redis.example.com:6379", config.RedisAddr)
	assert.Equal(t, 5, config.TopN)
	assert.Equal(t, 12*time.Hour, config.FreshWindow)
	assert.Equal(t, "https://example.com/catalog/", config.DarazURL)
	assert.Equal(t, 300.0, config.ExchangeRate)

	// Clean up
	os.Unsetenv("REDIS_ADDR")
	os.Unsetenv("TOP_N_RECOMMENDATIONS")
	os.Unsetenv("FRESH_WINDOW_HOURS")
	os.Unsetenv("DARAZ_URL")
	os.Unsetenv("EXCHANGE_RATE_PKR_USD")
}

func TestValidate(t *testing.T) {
	config := LoadConfig()
	assert.NoError(t, config.Validate())

	bad := config
	bad.ExchangeRate = 0
	assert.Error(t, bad.Validate())

	bad = config
	bad.MaxWorkers = 0
	assert.Error(t, bad.Validate())

	bad = config
	bad.TopN = 0
	assert.Error(t, bad.Validate())
}
