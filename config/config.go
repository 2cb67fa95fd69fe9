package config

import (
	"os"
	"strconv"
	"time"

	"paisapro/cartworker/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// HTTP server
	ListenAddr string

	// Storage configuration
	DatabasePath string

	// Redis configuration (price update events)
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration (source cooldowns)
	MemcacheAddr string

	// Renderer configuration
	ChromeAddr     string
	RenderHeadless bool

	// Scraper tuning
	ExchangeRate  float64
	ScrapeTimeout time.Duration
	SettleDelay   time.Duration
	ScrollCount   int
	ScrollDelay   time.Duration
	MaxResults    int
	MaxWorkers    int
	SourceBlock   time.Duration

	// Cart optimization
	TopN        int
	FreshWindow time.Duration

	// Refresh scheduler
	RefreshInterval time.Duration
	StartupDelay    time.Duration
	InterItemDelay  time.Duration
	FetchTopN       int

	// Source URLs
	DarazURL   string
	AlfatahURL string
	ImtiazURL  string

	// Imtiaz delivery locality
	ImtiazLocality string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	streamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	exchangeRate, _ := strconv.ParseFloat(getEnv("EXCHANGE_RATE_PKR_USD", "280"), 64)
	scrapeTimeout, _ := strconv.Atoi(getEnv("SCRAPE_TIMEOUT_SECONDS", "90"))
	settleDelay, _ := strconv.Atoi(getEnv("SETTLE_DELAY_SECONDS", "5"))
	scrollCount, _ := strconv.Atoi(getEnv("SCROLL_COUNT", "3"))
	scrollDelay, _ := strconv.Atoi(getEnv("SCROLL_DELAY_SECONDS", "2"))
	maxResults, _ := strconv.Atoi(getEnv("MAX_RESULTS_PER_SOURCE", "20"))
	maxWorkers, _ := strconv.Atoi(getEnv("MAX_WORKERS", "3"))
	sourceBlock, _ := strconv.Atoi(getEnv("SOURCE_BLOCK_SECONDS", "300"))
	topN, _ := strconv.Atoi(getEnv("TOP_N_RECOMMENDATIONS", "3"))
	freshHours, _ := strconv.Atoi(getEnv("FRESH_WINDOW_HOURS", "6"))
	refreshHours, _ := strconv.Atoi(getEnv("REFRESH_INTERVAL_HOURS", "6"))
	startupDelay, _ := strconv.Atoi(getEnv("STARTUP_REFRESH_DELAY_SECONDS", "60"))
	interItemDelay, _ := strconv.Atoi(getEnv("INTER_ITEM_DELAY_SECONDS", "1"))
	fetchTopN, _ := strconv.Atoi(getEnv("FETCH_TOP_N", "20"))
	headless := getEnv("RENDER_HEADLESS", "true") != "false"

	return Config{
		ListenAddr:           getEnv("LISTEN_ADDR", ":8000"),
		DatabasePath:         getEnv("DATABASE_PATH", "data/cartworker.db"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "price-updates"),
		RedisStreamCount:     streamCount,
		RedisStreamMaxLength: streamMaxLen,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),
		ChromeAddr:           getEnv("CHROME_ADDR", "http://localhost:3000"),
		RenderHeadless:       headless,
		ExchangeRate:         exchangeRate,
		ScrapeTimeout:        time.Duration(scrapeTimeout) * time.Second,
		SettleDelay:          time.Duration(settleDelay) * time.Second,
		ScrollCount:          scrollCount,
		ScrollDelay:          time.Duration(scrollDelay) * time.Second,
		MaxResults:           maxResults,
		MaxWorkers:           maxWorkers,
		SourceBlock:          time.Duration(sourceBlock) * time.Second,
		TopN:                 topN,
		FreshWindow:          time.Duration(freshHours) * time.Hour,
		RefreshInterval:      time.Duration(refreshHours) * time.Hour,
		StartupDelay:         time.Duration(startupDelay) * time.Second,
		InterItemDelay:       time.Duration(interItemDelay) * time.Second,
		FetchTopN:            fetchTopN,
		DarazURL:             getEnv("DARAZ_URL", "https://www.daraz.pk/catalog/"),
		AlfatahURL:           getEnv("ALFATAH_URL", "https://alfatah.pk/search"),
		ImtiazURL:            getEnv("IMTIAZ_URL", "https://shop.imtiaz.com.pk/"),
		ImtiazLocality:       getEnv("IMTIAZ_LOCALITY", "Askari 1"),
		Environment:          getEnv("CARTWORKER_ENVIRONMENT", "development"),
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.ExchangeRate <= 0 {
		return errors.NewConfiguration("exchange rate must be positive", nil)
	}
	if c.MaxWorkers < 1 {
		return errors.NewConfiguration("max workers must be at least 1", nil)
	}
	if c.TopN < 1 {
		return errors.NewConfiguration("top N must be at least 1", nil)
	}
	if c.FreshWindow <= 0 {
		return errors.NewConfiguration("fresh window must be positive", nil)
	}
	if c.MaxResults < 1 {
		return errors.NewConfiguration("max results per source must be at least 1", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
