// Package main is the entry point for the ads-correlator service.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/accounts"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/api"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/apierr"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/cache"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/client"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/config"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/direct"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/export"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/handler"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/join"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/metrica"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/profiling"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/ratelimit"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/retry"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/telemetry"
)

const (
	// redisPingTimeout bounds the startup probe of the cache backend.
	redisPingTimeout = 5 * time.Second
	// sweepInterval is how often the janitor evicts expired export jobs.
	sweepInterval = 1 * time.Hour
)

// version can be set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Start profiling servers (if enabled).
	profiling.StartPprofServer()
	if profiler, err := profiling.StartPyroscope("ads-correlator"); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Pyroscope failed to start: %v\n", err)
	} else if profiler != nil {
		defer func() { _ = profiler.Stop() }()
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	return runServer(cfg, log)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	configPath := config.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	if version != "dev" {
		cfg.Service.Version = version
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// buildCache selects the response cache backend. A Redis backend that
// cannot be reached degrades to the in-memory cache rather than failing
// startup; the cache is an optimization, not a dependency.
func buildCache(cfg *config.Config, log logger.Logger) cache.Store {
	if cfg.Cache.Disabled {
		return cache.NewNop()
	}

	if cfg.Cache.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis cache unreachable, falling back to memory",
				logger.String("addr", cfg.Cache.Redis.Addr),
				logger.Error(err),
			)
			_ = rdb.Close()
			return cache.NewMemory(cfg.Cache.TTL)
		}

		log.Info("redis cache connected", logger.String("addr", cfg.Cache.Redis.Addr))
		return cache.NewRedis(rdb, cfg.Cache.TTL, log)
	}

	return cache.NewMemory(cfg.Cache.TTL)
}

// runServer creates all dependencies and starts the HTTP server.
func runServer(cfg *config.Config, log logger.Logger) int {
	tel := telemetry.NewProvider()

	caller := client.New(client.Config{
		Limiters: map[string]*ratelimit.Limiter{
			apierr.ProviderDirect:  ratelimit.New(apierr.ProviderDirect, cfg.Direct.RPS, log),
			apierr.ProviderMetrica: ratelimit.New(apierr.ProviderMetrica, cfg.Metrica.RPS, log),
		},
		Retry: retry.Config{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.BaseDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
		},
		Cache:     buildCache(cfg, log),
		Telemetry: tel,
		Logger:    log,
	})

	directClient := direct.New(caller, cfg.Direct, log)
	metricaClient := metrica.New(caller, cfg.Metrica, log)
	registry := accounts.NewRegistry(cfg.Accounts.RegistryPath, log)

	jobs := export.NewStore(cfg.Export.JobTTL)
	exports := export.New(metricaClient, jobs, cfg.Export, tel, log)

	janitor := export.NewJanitor(jobs, sweepInterval, tel, log)
	janitor.Start(context.Background())
	defer janitor.Stop()

	engine := join.New(join.Config{
		Direct:    directClient,
		Metrica:   metricaClient,
		Exports:   exports,
		Registry:  registry,
		Defaults:  cfg.Metrica,
		Telemetry: tel,
		Logger:    log,
	})

	h := handler.New(engine, exports, registry, directClient, metricaClient, cfg, log)

	server := api.New(&api.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Port:           cfg.Service.Port,
		Debug:          cfg.Service.Debug,
	}, log, func(router *gin.Engine) {
		handler.Register(router, h, tel.Handler())
	})

	log.Info("ads-correlator starting",
		logger.Int("port", cfg.Service.Port),
		logger.String("version", cfg.Service.Version),
		logger.Bool("direct_sandbox", cfg.Direct.Sandbox),
		logger.Bool("direct_writes_enabled", cfg.Direct.AllowMutations),
	)

	if err := server.RunWithGracefulShutdown(context.Background()); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("ads-correlator exited cleanly")
	return 0
}
