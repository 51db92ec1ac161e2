package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"gitplumbers.app/bridge/common/id"
	"gitplumbers.app/bridge/common/logger"
	"gitplumbers.app/bridge/common/otel"
	"gitplumbers.app/bridge/core/config"
	"gitplumbers.app/bridge/core/db"
	"gitplumbers.app/bridge/internal/githubapp"
	"gitplumbers.app/bridge/internal/http/middleware"
	httprouter "gitplumbers.app/bridge/internal/http/router"
	"gitplumbers.app/bridge/internal/queue"
	"gitplumbers.app/bridge/internal/service"
	"gitplumbers.app/bridge/internal/service/issue_tracker"
	"gitplumbers.app/bridge/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet, OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "bridge starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to apply schema", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Automation.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Automation.Stream)

	eventProducer := queue.NewRedisProducer(redisClient, cfg.Automation.Stream, nil)
	defer eventProducer.Close()

	deliveryGuard := queue.NewRedisDeliveryGuard(redisClient, cfg.Automation.DeliveryTTL)

	minter, err := githubapp.NewMinter(githubapp.Config{
		AppID:      cfg.GitHubApp.AppID,
		PrivateKey: cfg.GitHubApp.PrivateKey,
	})
	if err != nil {
		slog.ErrorContext(ctx, "invalid github app credentials", "error", err)
		os.Exit(1)
	}

	clientOpts := githubapp.ClientOptions{
		BaseURL:    cfg.GitHubApp.APIBaseURL,
		UserAgent:  cfg.GitHubApp.UserAgent,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	connector := issue_tracker.NewGitHubConnector(githubapp.NewBroker(minter, clientOpts), clientOpts, time.Now)
	slog.InfoContext(ctx, "github app configured", "app_id", minter.AppID())

	services := service.NewServices(service.ServicesConfig{
		Stores:         store.NewStores(database.Conn()),
		TxRunner:       service.NewTxRunner(database),
		Connector:      connector,
		Producer:       eventProducer,
		WorkOS:         cfg.WorkOS,
		CommandPrefix:  cfg.CommandPrefix,
		CloseRetention: cfg.CloseRetention,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services, deliveryGuard)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if err := redisClient.Close(); err != nil {
		slog.ErrorContext(shutdownCtx, "redis close error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services, guard queue.DeliveryGuard) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span, Recovery catches panics, Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		DashboardURL:    cfg.DashboardURL,
		IsProduction:    cfg.IsProduction(),
		TraceHeaderName: cfg.Automation.TraceHeaderName,
		WebhookSecret:   cfg.GitHubApp.WebhookSecret,
		DeliveryGuard:   guard,
	})

	return router
}

const banner = `
  ____ ___ _____ ____  _    _   _ __  __ ____  _____ ____  ____
 / ___|_ _|_   _|  _ \| |  | | | |  \/  | __ )| ____|  _ \/ ___|
| |  _ | |  | | | |_) | |  | | | | |\/| |  _ \|  _| | |_) \___ \
| |_| || |  | | |  __/| |__| |_| | |  | | |_) | |___|  _ < ___) |
 \____|___| |_| |_|   |_____\___/|_|  |_|____/|_____|_| \_\____/
                                                     bridge
`
