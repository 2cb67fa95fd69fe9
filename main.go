package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"paisapro/cartworker/config"
	"paisapro/cartworker/internal/cart"
	"paisapro/cartworker/internal/renderer"
	"paisapro/cartworker/internal/scraper"
	"paisapro/cartworker/internal/server"
	"paisapro/cartworker/logger"
	"paisapro/cartworker/services/cache"
	"paisapro/cartworker/services/compare"
	"paisapro/cartworker/services/publisher"
	"paisapro/cartworker/services/scheduler"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Dur("refresh_interval", cfg.RefreshInterval).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize backing services
	services, err := initializeServices(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	// Source registry and scrapers
	converter := scraper.NewConverter(cfg.ExchangeRate)
	registry := scraper.NewRegistry()
	scraper.RegisterBuiltins(registry, cfg, converter)

	rend := renderer.NewChromeRenderer(cfg.ChromeAddr, cfg.MaxWorkers, cfg.ScrapeTimeout)
	scraperCfg := scraper.Config{
		Headless:    cfg.RenderHeadless,
		SettleDelay: cfg.SettleDelay,
		ScrollCount: cfg.ScrollCount,
		ScrollDelay: cfg.ScrollDelay,
		MaxResults:  cfg.MaxResults,
		Timeout:     cfg.ScrapeTimeout,
		BlockTime:   cfg.SourceBlock,
	}
	factory := func(source string) (compare.Scraper, error) {
		src, err := registry.Create(source, nil)
		if err != nil {
			return nil, err
		}
		return scraper.NewProductScraper(src, rend, services.Cache, scraperCfg), nil
	}

	// Comparison, cart, and scheduler services
	compareSvc := compare.New(factory, registry.Sources, cfg.MaxWorkers)
	policy := cart.NewStalenessPolicy(cfg.FreshWindow)
	cartSvc := cart.NewService(services.Repo, compareSvc, policy, services.Publisher, cart.ServiceConfig{
		TopN:      cfg.TopN,
		FetchTopN: cfg.FetchTopN,
	})

	sched := scheduler.New(cartSvc, services.Publisher, scheduler.Config{
		Interval:       cfg.RefreshInterval,
		StartupDelay:   cfg.StartupDelay,
		InterItemDelay: cfg.InterItemDelay,
	})
	sched.Start(ctx)
	defer sched.Stop()

	// HTTP server
	handlers := server.NewHandlers(compareSvc, cartSvc, sched, registry.Sources)
	srv := server.New(cfg.ListenAddr, handlers)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
	case err := <-serverDone:
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server exited with error")
		}
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()
}

// Services holds all the initialized backing services
type Services struct {
	Repo      cart.Repository
	Cache     cache.CacheService
	Publisher publisher.Publisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Repo != nil {
		s.Repo.Close()
	}
}

// initializeServices initializes the repository, cache, and publisher.
// Setting MEMCACHE_ADDR or REDIS_ADDR to "none" selects the in-process
// fallbacks.
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	repo, err := cart.NewSQLiteRepository(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	services.Repo = repo
	logger.Info("Opened database at %s", cfg.DatabasePath)

	if disabled(cfg.MemcacheAddr) {
		services.Cache = cache.NewMemoryService()
		logger.Info("Using in-memory cache")
	} else {
		services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	}

	if disabled(cfg.RedisAddr) {
		services.Publisher = publisher.NoopPublisher{}
		logger.Info("Price update publishing disabled")
	} else {
		services.Publisher = publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	return services, nil
}

func disabled(addr string) bool {
	return addr == "" || strings.EqualFold(addr, "none")
}
