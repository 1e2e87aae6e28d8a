package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/rosters/internal/api"
	"example.com/rosters/internal/auth"
	"example.com/rosters/internal/catalog"
	"example.com/rosters/internal/config"
	"example.com/rosters/internal/domain"
	"example.com/rosters/internal/observability"
	"example.com/rosters/internal/outbox"
	persistence "example.com/rosters/internal/persistence/postgres"
	httptransport "example.com/rosters/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seed []domain.Activity
	if cfg.SeedCatalog {
		seed = catalog.DefaultActivities()
	}

	var (
		store      domain.CatalogStore
		dispatcher *outbox.Dispatcher
	)
	switch cfg.StoreBackend {
	case config.StoreMemory:
		mem, err := catalog.New(seed...)
		if err != nil {
			log.Fatalf("failed to build catalog: %v", err)
		}
		store = mem
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		repo := persistence.NewRepository(pool)
		if n, err := repo.Seed(ctx, seed); err != nil {
			log.Fatalf("failed to seed catalog: %v", err)
		} else if n > 0 {
			log.Printf("seeded %d activities", n)
		}
		store = repo

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithReplayBackoff(outbox.Backoff{Base: cfg.DLQBaseDelay, Max: cfg.DLQMaxDelay}))
		go dispatcher.Start(ctx)
	default:
		log.Fatalf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	service := domain.NewService(store, domain.WithObserver(observability.NewRosterRecorder()))
	if activities, err := service.ListActivities(ctx); err != nil {
		log.Printf("failed to prime roster gauges: %v", err)
	} else {
		for _, activity := range activities {
			observability.RecordActivity(activity)
		}
	}

	handler := api.NewHandler(service)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	var root http.Handler = mux
	if cfg.AuthEnabled {
		root = auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}).Wrap(root)
	}
	root = api.RequestLogger(log.Default())(api.CORS(cfg.CORSOrigin)(root))

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), root)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("roster-service listening on %s (store=%s, auth=%t)", cfg.HTTPAddress, cfg.StoreBackend, cfg.AuthEnabled)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
