package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chain-bridge.backend/internal/interfaces/http/handlers"
	"chain-bridge.backend/internal/interfaces/http/middleware"
)

type routeDeps struct {
	transferHandler *handlers.TransferHandler
	chainHandler    *handlers.ChainHandler
	adminHandler    *handlers.AdminHandler
	authMiddleware  gin.HandlerFunc
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func registerMetricsRoute(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		// Transfer routes (public)
		transfers := v1.Group("/transfers")
		{
			transfers.POST("", d.transferHandler.CreateTransfer)
			transfers.GET("/:id", d.transferHandler.GetTransfer)
			transfers.DELETE("/:id", d.transferHandler.CancelTransfer)
		}

		// Chain routes (public)
		chains := v1.Group("/chains")
		{
			chains.GET("", d.chainHandler.ListChains)
			chains.GET("/:id/info", d.chainHandler.GetChainInfo)
			chains.GET("/:id/health", d.chainHandler.GetChainHealth)
		}

		// Admin routes (protected)
		admin := v1.Group("/admin")
		admin.Use(d.authMiddleware, middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.POST("/rate-limit/reset", d.adminHandler.ResetRateLimit)
			admin.GET("/rate-limit/status", d.adminHandler.GetRateLimitStatus)
			admin.GET("/rate-limit/stats", d.adminHandler.GetRateLimitStats)
			admin.GET("/attacks/recent", d.adminHandler.GetRecentAttacks)
			admin.POST("/detector/clear", d.adminHandler.ClearAddressHistory)
		}
	}
}
