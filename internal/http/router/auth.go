package router

import (
	"github.com/gin-gonic/gin"

	"gitplumbers.app/bridge/internal/http/handler"
	"gitplumbers.app/bridge/internal/http/middleware"
)

func AuthRouter(rg *gin.RouterGroup, h *handler.AuthHandler, validator middleware.SessionValidator) {
	rg.GET("/login", h.Login)
	rg.GET("/callback", h.Callback)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", middleware.RequireAuth(validator), h.Me)
}
