package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gitplumbers.app/bridge/internal/http/handler"
	"gitplumbers.app/bridge/internal/http/handler/webhook"
	"gitplumbers.app/bridge/internal/http/middleware"
	"gitplumbers.app/bridge/internal/mapper"
	"gitplumbers.app/bridge/internal/queue"
	"gitplumbers.app/bridge/internal/service"
)

type RouterConfig struct {
	DashboardURL    string
	IsProduction    bool
	TraceHeaderName string
	WebhookSecret   string
	DeliveryGuard   queue.DeliveryGuard
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.Use(middleware.TraceHeader(cfg.TraceHeaderName))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authService := services.Auth()
	authHandler := handler.NewAuthHandler(authService, cfg.DashboardURL, cfg.IsProduction)
	AuthRouter(router.Group("/auth"), authHandler, authService)

	githubWebhook := webhook.NewGitHubWebhookHandler(
		cfg.WebhookSecret,
		cfg.DeliveryGuard,
		mapper.NewGitHubEventMapper(),
		services.Commands(),
	)
	WebhookRouter(router.Group("/webhooks"), githubWebhook)

	v1 := router.Group("/api/v1", middleware.RequireAuth(authService))
	{
		issueHandler := handler.NewIssueHandler(services.IssueSync(), services.IssueLifecycle())
		IssueRouter(v1.Group("/installations/:installation_id/repos/:owner/:repo/issues"), issueHandler)
	}
}
