package main

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/task-manager/internal/auth"
	"github.com/yourusername/task-manager/internal/config"
	"github.com/yourusername/task-manager/internal/middleware"
	"github.com/yourusername/task-manager/internal/storage"
	"github.com/yourusername/task-manager/internal/tasks"
	"github.com/yourusername/task-manager/internal/users"
)

type dependencies struct {
	store  storage.Store
	hasher auth.Hasher
	tokens auth.TokenService
	logger logrus.FieldLogger
}

// newRouter はミドルウェアとルーティングを設定した gin.Engine を返します。
func newRouter(cfg *config.Config, deps dependencies) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.AccessLog(deps.logger),
		gin.Recovery(),
		cors.New(corsConfig(cfg)),
	)

	setupRoutes(router, deps)
	return router
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	origins := cfg.AllowedOrigins()
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	corsCfg.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		middleware.RequestIDHeader,
	}
	corsCfg.ExposeHeaders = []string{middleware.RequestIDHeader}
	return corsCfg
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "task-manager-api",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, deps dependencies) {
	router.GET("/health", handleHealth)

	authManager := auth.NewManager(deps.store, deps.hasher, deps.tokens, deps.logger)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/signup", authManager.Signup)
			authRoutes.POST("/signin", authManager.Signin)
			authRoutes.POST("/logout", authManager.Logout)
		}

		// タスクとユーザーの参照系も含め、すべて認証必須
		protected := api.Group("")
		protected.Use(authManager.RequireLogin())
		{
			protected.GET("/users/:userId", users.GetHandler(deps.store, deps.logger))

			protected.POST("/tasks", tasks.CreateHandler(deps.store, deps.store, deps.logger))
			protected.GET("/tasks", tasks.ListHandler(deps.store, deps.logger))
			protected.GET("/tasks/:id", tasks.GetHandler(deps.store, deps.logger))
			protected.PUT("/tasks/:id", tasks.UpdateHandler(deps.store, deps.logger))
			protected.DELETE("/tasks/:id", tasks.DeleteHandler(deps.store, deps.logger))
		}
	}
}
