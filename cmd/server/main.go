package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/broker"
	"storefront/internal/cart"
	"storefront/internal/clock"
	"storefront/internal/querycache"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "storefront",
		Short:        "Storefront admin console",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP console",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve()
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print dashboard stats from the configured backing store",
			RunE: func(cmd *cobra.Command, args []string) error {
				return stats(cmd.Context())
			},
		},
	)
	return root
}

// app holds the wired components shared by every command.
type app struct {
	source   string
	cache    *querycache.Cache
	services api.Services
	carts    *cart.Service
	auth     *auth.Manager
	closers  []func() error
	checks   map[string]func(context.Context) error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			util.GetLogger().Warn("Error during shutdown", zap.Error(err))
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := util.GetLogger()
	a := &app{source: uuid.NewString(), checks: map[string]func(context.Context) error{}}

	backend, err := openBackend(ctx, a, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	backend = store.WithTimeout(backend, cfg.Backend.Timeout)

	var writer broker.EventWriter = broker.NopWriter{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		a.closers = append(a.closers, producer.Close)
		writer = producer
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	events := broker.NewEventPublisher(writer, a.source, clock.Real{})

	a.cache = querycache.New(clock.Real{}, cfg.Backend.Timeout)
	stores := service.NewStoreService(backend, a.cache, events, cfg.Cache.StoresStale)
	members := service.NewMemberService(backend, a.cache, events, cfg.Cache.MembersStale)
	orders := service.NewOrderService(backend, a.cache, events, cfg.Cache.OrdersStale, cfg.Cache.DashboardOrdersStale)
	a.services = api.Services{
		Stores:    stores,
		Members:   members,
		Orders:    orders,
		Products:  service.NewProductService(backend, a.cache, cfg.Cache.ProductsStale),
		Dashboard: service.NewDashboardService(stores, members, orders),
	}

	var (
		persister cart.Persister = cart.NewMemoryPersister()
		claimer   cart.Claimer   = cart.NewMemoryClaimer(clock.Real{})
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, redisClient.Close)
		a.checks["redis"] = redisClient.Ping
		persister, claimer = redisClient, redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}
	a.carts = cart.NewService(persister, claimer, orders.Placer())

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, clock.Real{})
	a.auth, err = auth.NewManager(auth.DefaultIdentities(), cfg.Auth.DemoPassword, tokens)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openBackend connects to Postgres when DATABASE_URL is set and falls back to
// the seeded in-memory store otherwise.
func openBackend(ctx context.Context, a *app, cfg *config.Config) (store.Backend, error) {
	logger := util.GetLogger()
	seed := store.DefaultSeed(time.Now())

	if cfg.Database.URL == "" {
		logger.Info("Using in-memory backing store", zap.Duration("latency", cfg.Backend.MockLatency))
		return store.NewMemory(clock.Real{}, cfg.Backend.MockLatency, seed), nil
	}

	db, err := store.NewPostgres(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	a.checks["database"] = db.Ping
	if err := db.SeedIfEmpty(ctx, seed); err != nil {
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}
	logger.Info("Database connected")
	return db, nil
}

func setup() (*config.Config, func(), error) {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		util.SyncLogger()
		return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	teardown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
		util.SyncLogger()
	}
	return cfg, teardown, nil
}

func serve() error {
	cfg, teardown, err := setup()
	if err != nil {
		return err
	}
	defer teardown()

	logger := util.GetLogger()
	logger.Info("Starting storefront console")

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var invalidationWorker *worker.InvalidationWorker
	if len(cfg.Kafka.Brokers) > 0 {
		// Every instance needs every event, so each gets its own group.
		groupID := fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, a.source)
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, groupID)
		invalidationWorker = worker.NewInvalidationWorker(consumer, a.cache, a.source)
		go func() {
			if err := invalidationWorker.Start(workerCtx); err != nil {
				logger.Error("Invalidation worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(a.auth, a.services, a.carts, cfg.Server.PageSize)
	for name, check := range a.checks {
		handler.AddReadinessCheck(name, check)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if invalidationWorker != nil {
		if err := invalidationWorker.Stop(); err != nil {
			logger.Warn("Failed to stop invalidation worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
	return nil
}

func stats(ctx context.Context) error {
	cfg, teardown, err := setup()
	if err != nil {
		return err
	}
	defer teardown()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.services.Dashboard.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dashboard stats: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
