package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet_settlement/internal/cache"
	"wallet_settlement/internal/config"
	"wallet_settlement/internal/fees"
	"wallet_settlement/internal/handlers"
	"wallet_settlement/internal/logging"
	"wallet_settlement/internal/metrics"
	"wallet_settlement/internal/middleware"
	"wallet_settlement/internal/migrations"
	"wallet_settlement/internal/notify"
	"wallet_settlement/internal/repository"
	"wallet_settlement/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger := logging.SetupLogger(cfg.LogLevel)

	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	poolConfig, err := pgxpool.ParseConfig(cfg.DBURL)
	if err != nil {
		logger.Error("failed to parse db config", "err", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "err", err)
		os.Exit(1)
	}

	if cfg.AutoMigrate {
		if err := migrations.UpPool(ctx, pool); err != nil {
			logger.Error("failed to apply migrations", "err", err)
			os.Exit(1)
		}
		migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
		if err != nil {
			logger.Error("failed to create river migrator", "err", err)
			os.Exit(1)
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			logger.Error("river migrate up failed", "err", err)
			os.Exit(1)
		}
		logger.Info("Migrations applied")
	}

	feeTable, err := fees.Load(cfg.FeeTablePath)
	if err != nil {
		logger.Error("failed to load fee table", "err", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if cfg.NotifyWebhookURL != "" {
		dispatcher = notify.NewWebhookDispatcher(cfg.NotifyWebhookURL)
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewWorker(dispatcher))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.NotifyWorkers},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create river client", "err", err)
		os.Exit(1)
	}
	notifier := notify.NewNotifier(func(ctx context.Context, args notify.Args) error {
		_, err := riverClient.Insert(ctx, args, nil)
		return err
	}, logger)

	store := repository.NewStore(pool, logger)
	walletRepo := repository.NewWalletPGRepository(pool, logger)
	depositRepo := repository.NewDepositPGRepository(pool, logger)
	withdrawalRepo := repository.NewWithdrawalPGRepository(pool, logger)
	earningsRepo := repository.NewEarningsPGRepository(pool, logger)

	walletSvc := service.NewWalletService(store, walletRepo, settlementMetrics, logger)
	depositSvc := service.NewDepositService(store, depositRepo, walletRepo, notifier, settlementMetrics, logger)
	withdrawalSvc := service.NewWithdrawalService(store, withdrawalRepo, walletRepo, earningsRepo, feeTable, notifier, settlementMetrics, logger)
	earningsSvc := service.NewEarningsService(store, earningsRepo, settlementMetrics, logger)
	handler := handlers.NewSettlementHTTPHandler(walletSvc, depositSvc, withdrawalSvc, earningsSvc, logger)

	mw := handlers.Middleware{
		Auth:  middleware.Auth(cfg.JWTSecret),
		Admin: middleware.AdminGuard(),
	}
	var redisClient *cache.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		mw.Idempotency = middleware.Idempotency(redisClient, cfg.IdempotencyTTL, logger)
	} else {
		logger.Warn("REDIS_URL not set, Idempotency-Key replay disabled")
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	handler.RegisterRoutes(r, mw)

	riverCtx, stopRiver := context.WithCancel(context.Background())
	defer stopRiver()
	if err := riverClient.Start(riverCtx); err != nil {
		logger.Error("failed to start river client", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
	}
	if err := riverClient.Stop(ctxShutdown); err != nil {
		logger.Error("River client did not stop cleanly", "err", err)
	}
	logger.Info("Server exiting")
}
