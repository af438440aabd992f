package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/listen-stream/playlist-screen/internal/cache"
	"github.com/listen-stream/playlist-screen/internal/catalog"
	"github.com/listen-stream/playlist-screen/internal/cron"
	"github.com/listen-stream/playlist-screen/internal/handler"
	"github.com/listen-stream/playlist-screen/internal/middleware"
	"github.com/listen-stream/playlist-screen/internal/service"
	"github.com/listen-stream/playlist-screen/pkg/breaker"
	"github.com/listen-stream/playlist-screen/pkg/config"
	"github.com/listen-stream/playlist-screen/pkg/logger"
	"github.com/listen-stream/playlist-screen/pkg/telemetry"
)

const serviceName = "screen-svc"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the YAML config file")
	examplePath := pflag.String("write-example-config", "", "write a documented example config to this path and exit")
	pflag.Parse()

	if *examplePath != "" {
		if err := config.CreateExampleConfig(*examplePath); err != nil {
			fmt.Fprintf(os.Stderr, "write example config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Example config written to %s\n", *examplePath)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 加载配置
	loader := config.NewFileLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 初始化日志
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logger.New(&logger.Config{
		Level:      level,
		Service:    serviceName,
		Output:     os.Stdout,
		TimeFormat: time.RFC3339,
		Caller:     true,
	})
	log.Info("Starting screen-svc",
		logger.String("version", version),
		logger.String("config_file", loader.ConfigFileUsed()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化 OpenTelemetry
	tel, shutdownTelemetry, err := telemetry.Init(ctx, &telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error("Failed to shut down telemetry", logger.Error(err))
		}
	}()

	// 构建目录
	fixture, err := catalog.FromConfig(cfg.Catalog)
	if err != nil {
		return err
	}
	cat, err := catalog.New(fixture)
	if err != nil {
		return err
	}
	log.Info("Catalog loaded", logger.Int("artists", cat.Len()), logger.String("default_artist", cat.DefaultArtistID()))

	// Redis 可选，连接失败时退化为纯内存缓存
	redisClient := connectRedis(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Failed to close Redis client", logger.Error(err))
			}
		}()
	}

	recorder, err := cache.NewOTelRecorder(tel)
	if err != nil {
		return fmt.Errorf("cache metrics: %w", err)
	}
	var redisCache *cache.RedisCache
	if redisClient != nil {
		redisCache = cache.NewRedisCache(redisClient, "")
	}
	redisBreaker := breaker.New(breaker.Config{
		Name:        "redis",
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		OnStateChange: func(name string, from, to breaker.State) {
			log.Warn("Circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	cacheLayer := cache.NewLayer(redisCache, cache.ConfigFrom(cfg.Cache), log,
		cache.WithRecorder(recorder),
		cache.WithBreaker(redisBreaker),
	)

	svc := service.NewPlaylistService(cat, cacheLayer, log,
		service.WithTracer(tel.Tracer()),
		service.WithCacheTTL(cfg.Cache.L2TTL),
	)

	// 预热 + 定时任务
	warmups, err := tel.NewWarmUpCounter()
	if err != nil {
		return fmt.Errorf("warm up metrics: %w", err)
	}
	cronManager := cron.NewManager(svc, cacheLayer, cfg.Cache, log, cron.WithWarmUpCounter(warmups))
	if err := cronManager.RunWarmUpNow(ctx); err != nil {
		log.Error("Initial warm up failed", logger.Error(err))
	}
	if err := cronManager.Start(); err != nil {
		return fmt.Errorf("start cron: %w", err)
	}

	// 配置热更新：目前只有日志级别在运行时生效
	watcher, err := config.NewWatcher(loader, cfg, log)
	if err != nil {
		return err
	}
	watcher.OnChange(func(next *config.Config) error {
		lvl, err := logger.ParseLevel(next.Log.Level)
		if err != nil {
			return err
		}
		if lvl != log.GetLevel() {
			log.Info("Log level changed", logger.String("from", log.GetLevel().String()), logger.String("to", lvl.String()))
			log.SetLevel(lvl)
		}
		return nil
	})
	watcher.Start()

	// HTTP
	router, err := setupRouter(cfg, tel, svc, cacheLayer, redisClient, log)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", logger.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("HTTP server failed", logger.Error(err))
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", logger.Error(err))
	}
	if err := cronManager.Stop(shutdownCtx); err != nil {
		log.Warn("Cron jobs still running at shutdown", logger.Error(err))
	}

	log.Info("screen-svc stopped")
	return nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Info("Redis disabled, using in-memory cache only")
		return nil
	}

	client, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Warn("Redis unavailable, falling back to in-memory cache", logger.String("addr", cfg.Addr()), logger.Error(err))
		return nil
	}
	log.Info("Connected to Redis", logger.String("addr", cfg.Addr()))
	return client
}

// setupRouter 设置路由与中间件
func setupRouter(
	cfg *config.Config,
	tel *telemetry.Provider,
	svc *service.PlaylistService,
	cacheLayer *cache.Layer,
	redisClient *redis.Client,
	log logger.Logger,
) (*gin.Engine, error) {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()

	metricsMW, err := middleware.Metrics(tel)
	if err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}

	router.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Tracing(tel.Tracer(), serviceName),
		middleware.Logging(log, "/health", cfg.Telemetry.MetricsPath),
		middleware.CORS(),
		metricsMW,
	)
	// 有 Redis 时多实例共享限流计数
	switch {
	case !cfg.RateLimit.Enabled:
	case redisClient != nil:
		router.Use(middleware.NewRedisRateLimiter(redisClient, cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, log).Limit())
	default:
		router.Use(middleware.NewRateLimiterFromConfig(cfg.RateLimit).Limit())
	}

	health := handler.NewHealthChecker(cacheLayer, svc.CatalogSize, serviceName, version, log)
	handler.NewHandler(svc, cacheLayer, health, log).Register(router, cfg.Telemetry.MetricsPath, tel.MetricsHandler())

	return router, nil
}
