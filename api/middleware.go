package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attributes := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attributes = append(attributes, "error", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.Warn("Request failed", attributes...)
		case c.FullPath() == "/hc":
			slog.Debug("Request handled", attributes...)
		default:
			slog.Info("Request handled", attributes...)
		}
	}
}
