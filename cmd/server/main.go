package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/nonce"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront")

	tp, err := util.InitTracer("storefront", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	var sessions session.Store
	switch cfg.Session.Backend {
	case "memory":
		sessions = session.NewMemoryStore(cfg.Session.TTL)
	default:
		sessions = session.NewRedisStore(redisClient, cfg.Session.TTL)
	}
	logger.Info("Session store ready", zap.String("backend", cfg.Session.Backend))

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicPayments))

	eventPublisher := broker.NewEventPublisher(producer)

	gateways := service.NewGatewayRegistry(cfg.Shop.EnabledGateways)
	gateways.Register(service.NewManualGateway(db, eventPublisher))

	nonces := nonce.NewManager(cfg.Session.NonceSecret, cfg.Session.TTL)

	cartService := service.NewCartService(db, db, service.FormatFromShop(cfg.Shop))
	discountService := service.NewDiscountService(db, cartService)
	customerService := service.NewCustomerService(db)
	checkoutService := service.NewCheckoutService(
		cartService,
		discountService,
		customerService,
		gateways,
		nonces,
		redisClient,
		eventPublisher,
		cfg.Shop,
	)
	receiptService := service.NewReceiptService(db)
	statsService := service.NewStatsService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	statsConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments, cfg.Kafka.ConsumerGroup)
	statsWorker := worker.NewStatsWorker(statsConsumer, statsService)
	go func() {
		if err := statsWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Stats worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(cartService, discountService, checkoutService, receiptService, sessions, nonces, cfg)
	handler.AddHealthCheck("postgres", db)
	handler.AddHealthCheck("redis", redisClient)
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
	if err := statsWorker.Stop(); err != nil {
		logger.Warn("Error stopping stats worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
