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

package app

import (
	"context"
	"fmt"

	"apexflow/internal/engine"
	"apexflow/internal/eventbus"
	"apexflow/internal/fileprofile"
	"apexflow/internal/snapshot"
	"apexflow/internal/tool"
	"apexflow/internal/tool/builtin"
	"apexflow/internal/worker"
	"apexflow/pkg/config"
	"apexflow/pkg/log"
	"apexflow/pkg/secrets"
)

// Bootstrap 统一初始化：供 api 与 runner 复用，避免在 cmd 内写装配逻辑
type Bootstrap struct {
	Config   *config.Config
	Logger   *log.Logger
	Store    snapshot.Store
	Writer   *snapshot.Writer
	Bus      *eventbus.Bus
	Broker   *engine.InteractionBroker
	Router   *tool.Router
	Invoker  worker.Invoker
	Engine   *engine.Engine
	Profiler *fileprofile.Profiler
}

// NewBootstrap 根据配置创建全部运行时组件
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	if cfg == nil {
		cfg = &config.Config{}
	}

	// Secret Store：vault: 前缀的 API Key 在此解析
	secretStore, err := secrets.NewStore(cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("初始化 Secret Store 失败: %w", err)
	}
	if err := cfg.ResolveSecrets(secretStore); err != nil {
		return nil, err
	}

	store, err := snapshot.NewStore(context.Background(), cfg.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("初始化快照存储失败: %w", err)
	}
	writer := snapshot.NewWriter(store, cfg.Snapshot.QueueSize, logger)

	bus := eventbus.NewBus(0, logger)
	broker := engine.NewInteractionBroker()

	router := tool.NewRouter()
	builtin.RegisterAll(router)

	provider := cfg.Agent.ModelProvider
	if provider == "" {
		provider = "openai"
	}
	pc := cfg.Model.Providers[provider]
	invoker, err := worker.NewLLMInvokerFromConfig(cfg.Agent, pc, router, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化 worker 失败: %w", err)
	}

	profiler := fileprofile.NewProfiler(logger)
	eng := engine.New(applyAgentDefaults(cfg.Agent), invoker, router, bus, broker, writer, profiler, logger)

	return &Bootstrap{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Writer:   writer,
		Bus:      bus,
		Broker:   broker,
		Router:   router,
		Invoker:  invoker,
		Engine:   eng,
		Profiler: profiler,
	}, nil
}

// Close 按依赖反序关闭后台组件
func (b *Bootstrap) Close() {
	if b.Bus != nil {
		b.Bus.Close()
	}
	if b.Writer != nil {
		b.Writer.Close()
	}
	if b.Store != nil {
		_ = b.Store.Close()
	}
}

// applyAgentDefaults 填充引擎配置默认值
func applyAgentDefaults(a config.AgentConfig) config.AgentConfig {
	if a.MaxCostPerRun <= 0 {
		a.MaxCostPerRun = 0.50
	}
	if a.WarnAtCost <= 0 {
		a.WarnAtCost = 0.25
	}
	if a.MaxTurns <= 0 {
		a.MaxTurns = engine.DefaultMaxTurns
	}
	if a.RetryMax <= 0 {
		a.RetryMax = 3
	}
	if a.PlanningStrategy == "" {
		a.PlanningStrategy = "conservative"
	}
	return a
}
