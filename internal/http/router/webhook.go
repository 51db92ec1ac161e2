package router

import (
	"github.com/gin-gonic/gin"

	"gitplumbers.app/bridge/internal/http/handler/webhook"
)

func WebhookRouter(rg *gin.RouterGroup, github *webhook.GitHubWebhookHandler) {
	rg.POST("/github", github.HandleEvent)
}
