package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"apexflow/pkg/log"
)

// Middleware HTTP 中间件集合
type Middleware struct {
	logger *log.Logger
}

// NewMiddleware 创建中间件集合
func NewMiddleware(logger *log.Logger) *Middleware {
	return &Middleware{logger: logger}
}

// CORS 跨域响应头
func (m *Middleware) CORS() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if string(c.Method()) == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next(ctx)
	}
}

// AccessLog 请求访问日志
func (m *Middleware) AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		m.logger.Info("http 请求",
			"method", string(c.Method()),
			"path", string(c.Path()),
			"status", c.Response.StatusCode(),
			"duration", time.Since(start).String())
	}
}
