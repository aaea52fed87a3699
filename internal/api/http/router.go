package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"

	"apexflow/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
}

// NewRouter 创建 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// Build 构建 Hertz server 并注册路由
func (r *Router) Build(addr string, opts ...hertzconfig.Option) *server.Hertz {
	opts = append(opts, server.WithHostPorts(addr))
	h := server.Default(opts...)

	h.Use(r.middleware.CORS())
	h.Use(r.middleware.AccessLog())

	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	runs := api.Group("/runs")
	{
		runs.POST("/", r.handler.StartRun)
		runs.GET("/:id", r.handler.GetRun)
		runs.POST("/:id/stop", r.handler.StopRun)
		runs.POST("/:id/answer", r.handler.AnswerRun)
		runs.GET("/:id/events", r.handler.RunEvents)
	}

	return h
}
