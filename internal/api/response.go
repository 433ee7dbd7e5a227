package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio/internal/api/middleware"
	"portfolio/internal/apperr"
)

func Error(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// writeError 将 apperr 映射为 HTTP 响应。5xx 只返回通用消息，原因写入日志。
func writeError(c *gin.Context, err error) {
	status := apperr.Status(err)
	logger := middleware.LoggerFromContext(c)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		logger.Info("request rejected", slog.Int("status", status), slog.String("reason", err.Error()))
	}

	body := gin.H{"error": apperr.Public(err, http.StatusText(status))}
	if fields := apperr.FieldsOf(err); len(fields) > 0 {
		body["fields"] = fields
	}
	c.AbortWithStatusJSON(status, body)
}

// bindJSON 解码请求体，失败时直接写 400。
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.LoggerFromContext(c).Info("invalid json body", slog.Any("error", err))
		BadRequest(c, "Invalid JSON body")
		return false
	}
	return true
}
