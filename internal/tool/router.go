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

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"apexflow/pkg/metrics"
	"apexflow/pkg/tracing"
)

// 工具调用错误分类：两者在 ReAct loop 内都是可恢复的，
// 只会作为上下文反馈给 worker，不会导致任务失败。
var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrToolExecution = errors.New("tool execution error")
)

// Router 工具注册与路由：按名称分发调用
type Router struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRouter 创建工具路由器
func NewRouter() *Router {
	return &Router{tools: make(map[string]Tool)}
}

// Register 注册工具
func (r *Router) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get 按名称获取工具
func (r *Router) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Call 路由一次工具调用，返回原始结果字符串。
// 未注册返回 ErrToolNotFound，执行出错返回 ErrToolExecution。
func (r *Router) Call(ctx context.Context, name string, args map[string]any, cc CallContext) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = make(map[string]any)
	}
	normalizeInput(args)

	ctx, span := tracing.StartToolSpan(ctx, name, cc.StepID)
	defer span.End()

	start := time.Now()
	result, err := t.Execute(ctx, args)
	metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %s", ErrToolExecution, name, err.Error())
	}
	return result, nil
}

// List 返回当前注册的全部工具
func (r *Router) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	return list
}

// SchemasForLLM 返回所有工具的 Schema 列表（JSON 序列化供 Planner/worker 使用）
func (r *Router) SchemasForLLM() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	type entry struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Parameters  Schema `json:"parameters"`
	}
	list := make([]entry, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, entry{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return json.Marshal(list)
}

// normalizeInput 将 JSON 反序列化得到的 float64 整数转为 int，避免工具层类型断言失败
func normalizeInput(m map[string]any) {
	for k, v := range m {
		if f, ok := v.(float64); ok && f == float64(int(f)) {
			m[k] = int(f)
		}
		if nested, ok := v.(map[string]any); ok {
			normalizeInput(nested)
		}
	}
}
