package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, log *zap.Logger) *gin.Engine {
	r := gin.New()

	// RequestID 放在最前面，后面的中间件日志都能带上
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log.Named("access")))
	r.Use(CORSMiddleware())

	accounts := r.Group("/accounts")
	{
		accounts.POST("", h.CreateAccount)
		accounts.GET("", h.ListAccounts)
		accounts.GET("/:number", h.GetAccount)
		accounts.POST("/:number/deactivate", h.DeactivateAccount)
	}

	transactions := r.Group("/transactions")
	{
		transactions.POST("", h.SubmitTransaction)
		transactions.GET("/:id", h.GetTransaction)
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
