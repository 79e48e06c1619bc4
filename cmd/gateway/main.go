package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/cmd/gateway/internal/gateway"
	"github.com/pricewatch/crypto-notify/cmd/gateway/internal/hub"
	"github.com/pricewatch/crypto-notify/pkg/auth"
	"github.com/pricewatch/crypto-notify/pkg/broker"
	"github.com/pricewatch/crypto-notify/pkg/config"
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

	// Startup fails fatally without a broker connection
	kafkaBroker, err := broker.Connect(ctx, cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Kafka", zap.Error(err))
	}

	wsHub := hub.NewHub(logger)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)

	consumer := kafkaBroker.Consumer(cfg.Kafka.GroupID)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		// Fan-out happens inside the handler, so delivery latency gates how
		// soon the next message is read. That back-pressure is intentional.
		consumer.Run(ctx, wsHub.Dispatch)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		subjectID, authenticated := verifier.SubjectID(token)

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}

		client := gateway.NewClient(conn, wsHub, logger)
		wsHub.Register(client, subjectID, authenticated)
		client.Start()
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok, %d connections", wsHub.ClientCount())
	})

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}
	go func() {
		logger.Info("Gateway started", zap.String("port", cfg.App.Port))
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

	select {
	case <-consumerDone:
	case <-time.After(5 * time.Second):
		logger.Warn("Consumer did not stop in time")
	}

	kafkaBroker.Close()
	logger.Info("Gateway exited cleanly")
}

// bearerToken pulls the handshake token from the query string or the
// Authorization header; browser websocket clients cannot set headers.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
