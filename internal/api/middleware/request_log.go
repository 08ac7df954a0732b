package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// probePaths 是探测类端点，请求日志降到 Debug，
// 避免淹没上传与核验的业务日志。
var probePaths = map[string]bool{
	"/metrics": true,
	"/healthz": true,
}

// RequestLogger 记录每个请求的方法、路径、状态码、来源与耗时。
// 带请求体的调用（CSV 上传、核验）额外记录请求体大小。
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if logger == nil {
			return
		}

		path := c.Request.URL.Path
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.String("client_ip", c.ClientIP()),
			slog.String("latency", time.Since(start).String()),
		}
		if c.Request.ContentLength > 0 {
			attrs = append(attrs, slog.Int64("bytes_in", c.Request.ContentLength))
		}

		if probePaths[path] {
			logger.Debug("http request", attrs...)
			return
		}
		logger.Info("http request", attrs...)
	}
}
