package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront-hq/service-billing/internal/adapter"
	"github.com/storefront-hq/service-billing/internal/application"
	"github.com/storefront-hq/service-billing/internal/config"
	"github.com/storefront-hq/service-billing/internal/events"
	"github.com/storefront-hq/service-billing/internal/handler"
	"github.com/storefront-hq/service-billing/internal/jobs"
	"github.com/storefront-hq/service-billing/internal/repository"
	"github.com/storefront-hq/service-billing/pkg/database"
	"github.com/storefront-hq/service-billing/pkg/health"
	"github.com/storefront-hq/service-billing/pkg/kafka"
	"github.com/storefront-hq/service-billing/pkg/logger"
	"github.com/storefront-hq/service-billing/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewNamed(cfg.AppEnv, "service-billing")
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting service-billing", zap.String("port", cfg.Port))

	// Connect to database
	db, err := database.Connect(database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(&repository.StoreModel{}, &repository.SubscriptionModel{}); err != nil {
			zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		zapLogger.Info("database migration completed (dev auto-migrate)")
	}

	// Kafka producer for billing events
	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, zapLogger)
	defer kafkaProducer.Close()
	publisher := events.NewBillingEventPublisher(kafkaProducer, zapLogger)

	// Payment gateway: real Stripe when configured, mock otherwise
	var gateway adapter.PaymentGateway
	if cfg.StripeConfig.SecretKey != "" {
		gateway = adapter.NewStripeGateway(cfg.StripeConfig.SecretKey, cfg.StripeConfig.WebhookSecret, zapLogger)
	} else {
		zapLogger.Warn("no Stripe secret key configured, using mock payment gateway")
		gateway = adapter.NewMockPaymentGateway(zapLogger)
	}

	// Repositories and unit of work
	subRepo := repository.NewGormSubscriptionRepository(db)
	storeRepo := repository.NewGormStoreRepository(db)
	uow := repository.NewGormUnitOfWork(db)

	// Application services
	subService := application.NewSubscriptionService(uow, subRepo, storeRepo, gateway, publisher, zapLogger)
	reconciler := application.NewWebhookReconciler(subService, subRepo, gateway, zapLogger)

	// Background sweeper for deferred cancellations
	sweeper := jobs.NewCancellationSweeper(subRepo, subService, 15*time.Minute, zapLogger)
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()
	go sweeper.Start(sweeperCtx)

	// HTTP handlers
	subHandler := handler.NewSubscriptionHandler(subService, cfg.CheckoutConfig.SuccessURL, cfg.CheckoutConfig.CancelURL)
	webhookHandler := handler.NewWebhookHandler(gateway, reconciler, zapLogger)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())

	healthHandler := health.NewHandler(db, "service-billing")
	healthHandler.RegisterRoutes(router)

	webhookHandler.RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	subHandler.RegisterRoutes(apiV1)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down service-billing...")
	sweeperCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("service-billing stopped")
}
