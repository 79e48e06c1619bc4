package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/cmd/pricefeed/internal/feed"
	"github.com/pricewatch/crypto-notify/cmd/pricefeed/internal/pricesource"
	"github.com/pricewatch/crypto-notify/pkg/auth"
	"github.com/pricewatch/crypto-notify/pkg/broker"
	"github.com/pricewatch/crypto-notify/pkg/config"
	"github.com/pricewatch/crypto-notify/pkg/retry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis-backed cache when reachable, process-local fallback otherwise
	var cache pricesource.Cache
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, using in-memory price cache", zap.Error(err))
		cache = pricesource.NewMemoryCache()
	} else {
		cache = pricesource.NewRedisCache(rdb)
	}
	defer rdb.Close()

	// No readiness without a broker connection
	kafkaBroker, err := broker.Connect(ctx, cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Kafka", zap.Error(err))
	}

	notifier := kafkaBroker.Notifier(cfg.Price.SignificanceThreshold)

	fetchPolicy := retry.Policy{
		MaxAttempts:  cfg.Price.FetchMaxAttempts,
		InitialDelay: cfg.Price.FetchInitialDelay,
		MaxDelay:     cfg.Price.FetchMaxDelay,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn("Price fetch failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		},
	}
	resolver := pricesource.NewResolver(
		cache,
		pricesource.NewCoinGeckoClient(cfg.Price.APIBaseURL, 10*time.Second),
		cfg.Price.CacheTTL,
		fetchPolicy,
		clockwork.NewRealClock(),
		logger,
	)

	positions, err := feed.ParsePositions(cfg.Feed.Positions)
	if err != nil {
		logger.Fatal("Invalid feed positions", zap.Error(err))
	}
	watcher := feed.NewWatcher(
		feed.StaticHoldings(positions),
		resolver,
		notifier,
		cfg.Feed.PollInterval,
		clockwork.NewRealClock(),
		logger,
	)
	go watcher.Run(ctx)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	mux := http.NewServeMux()
	mux.Handle("/trigger-price-update", feed.NewTriggerHandler(notifier, verifier, rng.Float64, logger))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}
	go func() {
		logger.Info("Pricefeed started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	kafkaBroker.Close()
	logger.Info("Pricefeed exited cleanly")
}
