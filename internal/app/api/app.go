// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"apexflow/internal/api/http"
	"apexflow/internal/api/http/middleware"
	"apexflow/internal/app"
)

// otelProviderShutdown 优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用：装配 RunManager、HTTP Router 与可观测组件
type App struct {
	bootstrap    *app.Bootstrap
	runs         *app.RunManager
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	runs := app.NewRunManager(bootstrap.Engine, bootstrap.Store, bootstrap.Bus, bootstrap.Logger)
	handler := http.NewHandler(runs, bootstrap.Logger)
	mw := middleware.NewMiddleware(bootstrap.Logger)
	router := http.NewRouter(handler, mw)

	return &App{
		bootstrap: bootstrap,
		runs:      runs,
		router:    router,
	}, nil
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	a.bootstrap.Logger.Info("API 服务启动", "addr", addr)

	// Hertz 日志对齐 slog 配置
	output := os.Stdout
	cfg := a.bootstrap.Config
	if cfg != nil && cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}
	levelVar := &slog.LevelVar{}
	if cfg != nil {
		switch cfg.Log.Level {
		case "debug":
			levelVar.Set(slog.LevelDebug)
		case "warn":
			levelVar.Set(slog.LevelWarn)
		case "error":
			levelVar.Set(slog.LevelError)
		default:
			levelVar.Set(slog.LevelInfo)
		}
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	// 可选链路追踪
	if cfg != nil && cfg.Monitoring.Tracing.Enable {
		serviceName := cfg.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "apexflow-api"
		}
		endpoint := cfg.Monitoring.Tracing.ExportEndpoint
		if endpoint == "" {
			endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if endpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(endpoint),
			}
			if cfg.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
			tracerOpt, tracerCfg := hertztracing.NewServerTracer()
			a.hertz = a.router.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
			a.bootstrap.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", endpoint)
		} else {
			a.hertz = a.router.Build(addr)
		}
	} else {
		a.hertz = a.router.Build(addr)
	}

	return a.hertz.Run()
}

// Shutdown 优雅关闭
func (a *App) Shutdown(ctx context.Context) error {
	a.runs.Close()
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	a.bootstrap.Close()
	return nil
}
