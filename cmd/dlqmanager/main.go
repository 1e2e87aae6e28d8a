package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/rosters/internal/config"
	"example.com/rosters/internal/outbox"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	backoff := outbox.Backoff{Base: cfg.DLQBaseDelay, Max: cfg.DLQMaxDelay}
	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, backoff)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 2 * time.Second}
	go func() {
		log.Printf("dlq manager metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Printf("dlq manager started (interval=%s, max_retries=%d, backoff=%s..%s)",
		cfg.DLQPollInterval, cfg.DLQMaxRetries, backoff.Base, backoff.Max)

	done := make(chan struct{})
	go func() {
		defer close(done)
		manager.ReplayLoop(ctx, cfg.DLQPollInterval, cfg.DLQBatchSize)
	}()

	<-ctx.Done()
	log.Println("dlq manager shutdown requested")
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}
}
