package router

import (
	"github.com/gin-gonic/gin"

	"gitplumbers.app/bridge/internal/http/handler"
)

// IssueRouter mounts under /installations/:installation_id/repos/:owner/:repo/issues.
func IssueRouter(rg *gin.RouterGroup, h *handler.IssueHandler) {
	rg.GET("", h.ListTracked)
	rg.POST("", h.Create)
	rg.GET("/available", h.ListAvailable)
	rg.POST("/import", h.Import)
	rg.POST("/close", h.CloseSelected)
	rg.POST("/:tracked_id/close", h.Close)
}
