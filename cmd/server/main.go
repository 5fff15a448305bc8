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

	"ticketing-service/config"
	"ticketing-service/internal/api"
	"ticketing-service/internal/auth"
	"ticketing-service/internal/broker"
	"ticketing-service/internal/gateway"
	"ticketing-service/internal/redisclient"
	"ticketing-service/internal/service"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"
	"ticketing-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting ticketing service")

	tp, err := util.InitTracer("ticketing-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret)
	webhookVerifier := gateway.NewWebhookVerifier(cfg.Gateway.WebhookSecret)
	artifactClient := service.NewArtifactClient(cfg.Artifact.BaseURL)

	tokenService, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.FingerprintSalt, cfg.Auth.AccessTokenTTL)
	if err != nil {
		log.Fatalf("Failed to initialize token service: %v", err)
	}

	orderService := service.NewOrderService(db, gatewayClient, eventPublisher, redisClient, cfg.Gateway.Currency)
	reconciler := service.NewReconciler(db, artifactClient, eventPublisher,
		cfg.Reconcile.LookupAttempts, cfg.Reconcile.LookupBackoff, cfg.Artifact.Timeout)
	sessionService := service.NewSessionService(db, db, tokenService)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	artifactConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	artifactWorker := worker.NewArtifactWorker(artifactConsumer, db, artifactClient, eventPublisher)
	go func() {
		if err := artifactWorker.Start(workerCtx); err != nil {
			log.Printf("Artifact worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, reconciler, sessionService, webhookVerifier,
		redisClient, cfg.Gateway.KeyID, cfg.Auth.SecureCookies, cfg.Auth.RefreshTokenTTL)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if err := artifactWorker.Stop(); err != nil {
		log.Printf("Artifact worker stop error: %v", err)
	}

	log.Println("Server exited")
}
