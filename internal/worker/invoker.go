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

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"apexflow/internal/graph"
	"apexflow/internal/model/llm"
	"apexflow/internal/tool"
	"apexflow/pkg/config"
	"apexflow/pkg/log"
)

// Result 单次 worker 调用的产出与计费数据
type Result struct {
	Output       map[string]any
	InputTokens  int
	OutputTokens int
	Cost         float64
	Model        string
}

// Invoker 执行引擎对 worker 的唯一依赖面，测试时可替换为假实现
type Invoker interface {
	Invoke(ctx context.Context, role graph.Role, env *Envelope) (*Result, error)
}

// LLMInvoker 基于 LLM 客户端的 worker 实现。
// 按角色选择模型客户端，组装提示词，宽容解析 JSON 输出。
type LLMInvoker struct {
	defaultClient llm.Client
	overrides     map[graph.Role]llm.Client
	router        *tool.Router
	logger        *log.Logger
}

// NewLLMInvoker 创建 LLM worker。
// overrides 允许给个别角色配置不同的模型（如 Planner 用更强的模型）。
func NewLLMInvoker(defaultClient llm.Client, overrides map[graph.Role]llm.Client, router *tool.Router, logger *log.Logger) *LLMInvoker {
	if overrides == nil {
		overrides = make(map[graph.Role]llm.Client)
	}
	return &LLMInvoker{
		defaultClient: defaultClient,
		overrides:     overrides,
		router:        router,
		logger:        logger,
	}
}

// NewLLMInvokerFromConfig 按配置组装 worker：默认模型 + 各角色覆盖。
// Provider 配置了 rpm 时，全部客户端共享同一个本地限速器。
func NewLLMInvokerFromConfig(cfg config.AgentConfig, pc config.ProviderConfig, router *tool.Router, logger *log.Logger) (*LLMInvoker, error) {
	limiter := llm.NewProviderLimiter(pc.RPM)

	raw, err := llm.NewOpenAIClient(cfg.DefaultModel, pc.APIKey, pc.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("创建默认 LLM 客户端失败: %w", err)
	}
	defaultClient := limiter.Wrap(raw)

	overrides := make(map[graph.Role]llm.Client)
	for roleName, ov := range cfg.Overrides {
		c, err := llm.NewOpenAIClient(ov.Model, pc.APIKey, pc.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("创建角色 %s 的 LLM 客户端失败: %w", roleName, err)
		}
		overrides[graph.ParseRole(roleName)] = limiter.Wrap(c)
	}
	return NewLLMInvoker(defaultClient, overrides, router, logger), nil
}

// Invoke 实现 Invoker
func (w *LLMInvoker) Invoke(ctx context.Context, role graph.Role, env *Envelope) (*Result, error) {
	client := w.clientFor(role)

	payload, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化任务信封失败: %w", err)
	}

	prompt := fmt.Sprintf(
		"CURRENT_DATE: %s\n\n%s%s\n\n```json\n%s\n```",
		time.Now().Format("2006-01-02"),
		PromptFor(role),
		ToolCatalog(w.router),
		payload,
	)

	messages := []llm.Message{
		{Role: "user", Content: prompt},
	}

	reply, usage, err := client.ChatWithContext(ctx, messages, llm.GenerateOptions{Temperature: 0.2})
	if err != nil {
		return nil, err
	}

	output, err := ParseLLMJSON(reply)
	if err != nil {
		w.logger.Warn("worker 输出不是合法 JSON，按原文透传",
			"role", role.String(), "step_id", env.StepID)
		output = map[string]any{"output": reply}
	}

	cost := CalculateCost(usage.InputTokens, usage.OutputTokens, client.Model())
	return &Result{
		Output:       output,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Cost:         cost,
		Model:        client.Model(),
	}, nil
}

func (w *LLMInvoker) clientFor(role graph.Role) llm.Client {
	if c, ok := w.overrides[role]; ok {
		return c
	}
	return w.defaultClient
}
