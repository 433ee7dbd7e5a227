package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio/internal/api/middleware"
	"portfolio/internal/metrics"
)

const healthPath = "/health"

// NewRouter 构建 Gin 引擎并挂载通用中间件、健康检查与 /metrics。
// trustedProxies 为空时不信任任何转发头，ClientIP 取连接的对端地址。
func NewRouter(logger *slog.Logger, internalSecret string, trustedProxies []string) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger, healthPath),
		metrics.GinMiddleware(),
	)

	router.GET(healthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", middleware.InternalSecretMiddleware(internalSecret), gin.WrapH(metrics.Handler()))

	return router, nil
}
