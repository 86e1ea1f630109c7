package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"chat-dashboard/internal/chat"
	"chat-dashboard/internal/config"
	"chat-dashboard/internal/db"
	"chat-dashboard/internal/grpcserver"
	"chat-dashboard/internal/handlers"
	"chat-dashboard/internal/logger"
	"chat-dashboard/internal/middleware"
	"chat-dashboard/internal/observability"
	"chat-dashboard/internal/rabbitmq"
	"chat-dashboard/internal/repositories"
	"chat-dashboard/internal/seed"
	"chat-dashboard/internal/telemetry"
	"chat-dashboard/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	database, err := db.Connect(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer database.Close()
	log.Info("database ready", "driver", cfg.DBDriver)

	contactRepo := repositories.NewContactRepo(database)
	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	log.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "reason", rabbitmq.PublisherNoopReason(publisher))

	hub := ws.NewHub(publisher, log)
	service := chat.NewService(conversationRepo, messageRepo, chat.Options{
		SimulateDelivery: cfg.SimulateDelivery,
		Publisher:        publisher,
		Broadcaster:      hub,
		Logger:           log,
	})
	audit := telemetry.NewAuditEmitter(publisher, cfg.ServiceName, cfg.Environment, log)
	validator := middleware.NewTokenValidator(cfg.JWTSecret)

	if cfg.SeedDemo {
		store := seed.Store{Contacts: contactRepo, Conversations: conversationRepo, Messages: messageRepo}
		if err := seed.Run(ctx, store, cfg.SeedUserID, time.Now().UTC(), log); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		announceDemoToken(os.Stderr, cfg, validator, log)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		otelgin.Middleware(cfg.ServiceName),
		observability.HTTPMetricsMiddleware(),
		middleware.RequestLogger(log),
	)

	chatHandler := handlers.NewChatHandler(service, audit, cfg.PreviewLength)
	conversationWS := ws.NewConversationWebSocketHandler(hub, service)
	authMiddleware := middleware.AuthMiddleware(validator)

	router.GET("/health-check", handlers.HealthCheck(database))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := router.Group("/", authMiddleware)
	authed.GET("/chat", chatHandler.Index)
	authed.POST("/messages", chatHandler.StoreMessage)
	authed.PATCH("/conversations/:conversation_id", chatHandler.UpdateConversation)
	authed.GET("/ws/conversations/:conversation_id", conversationWS.Handle)
	handlers.RegisterDebugRoutes(authed, audit, hub, cfg.DebugRoutes)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := grpcserver.New(log)
	receipts := rabbitmq.NewReceiptConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.ReceiptQueue, service, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return grpcServer.ListenAndServe(gctx, cfg.GRPCPort)
	})
	g.Go(func() error {
		receipts.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		grpcServer.SetServing(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	grpcServer.SetServing(true)
	return g.Wait()
}

// announceDemoToken signs a token for the seeded user. The token itself is
// only written to w, and only in the local environment; logs record the
// issuance alone.
func announceDemoToken(w io.Writer, cfg *config.AppConfig, validator *middleware.TokenValidator, log *slog.Logger) {
	if cfg.Environment != "local" {
		log.Info("demo token not issued", "environment", cfg.Environment)
		return
	}
	token, err := validator.Sign(cfg.SeedUserID, 24*time.Hour)
	if err != nil {
		log.Warn("demo token signing failed", "error", err)
		return
	}
	log.Info("demo token issued", "user_id", cfg.SeedUserID)
	fmt.Fprintf(w, "demo bearer token for user %d: %s\n", cfg.SeedUserID, token)
}
