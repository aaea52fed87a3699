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

// Package graph 实现执行图数据模型：以 string id 索引的 Task 记录池 +
// (source,target) 邻接表，所有遍历基于 id 而非对象引用，便于快照与序列化。
package graph

import (
	"sync"
	"time"
)

// RootID 合成根节点 id，代表初始请求，恒为 completed
const RootID = "ROOT"

// Graph 可变执行图。并发完成的任务会同时回写各自的记录与共享字典，
// 因此所有读写都经内部锁；任务间只读彼此状态，不互相改写。
type Graph struct {
	mu   sync.RWMutex
	meta Meta

	tasks map[string]*Task
	order []string // 插入序，保证 frontier 与 summary 遍历确定性
	edges []Edge

	// globals 共享键值字典：任务通过 reads/writes 声明交互；run 内只增改不删除
	globals map[string]any

	fileProfiles map[string]any
}

// Meta 图级元数据
type Meta struct {
	SessionID     string         `json:"session_id"`
	OriginalQuery string         `json:"original_query"`
	FileManifest  []string       `json:"file_manifest"`
	CreatedAt     time.Time      `json:"created_at"`
	Status        RunStatus      `json:"status"`
	Error         string         `json:"error,omitempty"`
	FinalCost     float64        `json:"final_cost,omitempty"`
	MemoryContext map[string]any `json:"memory_context,omitempty"`
}

// New 创建执行图并注入合成 ROOT 节点（pre-completed）
func New(sessionID, originalQuery string, fileManifest []string) *Graph {
	g := &Graph{
		meta: Meta{
			SessionID:     sessionID,
			OriginalQuery: originalQuery,
			FileManifest:  fileManifest,
			CreatedAt:     time.Now().UTC(),
			Status:        RunRunning,
		},
		tasks:        make(map[string]*Task),
		globals:      make(map[string]any),
		fileProfiles: make(map[string]any),
	}
	g.addTaskLocked(&Task{
		ID:          RootID,
		Role:        RoleSystem,
		RoleName:    RoleSystem.String(),
		Description: "Initial Query",
		Status:      StatusCompleted,
	})
	return g
}

func (g *Graph) addTaskLocked(t *Task) {
	if t.RoleName == "" {
		t.RoleName = t.Role.String()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if _, exists := g.tasks[t.ID]; !exists {
		g.order = append(g.order, t.ID)
	}
	g.tasks[t.ID] = t
}

// AddTask 加入或覆盖任务记录；已 completed 的同 id 任务由调用方（merge）决定是否跳过
func (g *Graph) AddTask(t *Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addTaskLocked(t)
}

// AddEdge 添加依赖边（Target 依赖 Source）；重复边去重
func (g *Graph) AddEdge(source, target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.edges {
		if e.Source == source && e.Target == target {
			return
		}
	}
	g.edges = append(g.edges, Edge{Source: source, Target: target})
}

// Has 判断任务是否存在
func (g *Graph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.tasks[id]
	return ok
}

// Meta 返回图级元数据副本
func (g *Graph) Meta() Meta {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.meta
}

// SetRunStatus 设置图级状态
func (g *Graph) SetRunStatus(s RunStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.meta.Status = s
}

// SetRunError 设置图级状态与错误
func (g *Graph) SetRunError(s RunStatus, errMsg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.meta.Status = s
	g.meta.Error = errMsg
}

// SetFinalCost 记录触发预算终止时的累计花费
func (g *Graph) SetFinalCost(cost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.meta.FinalCost = cost
}

// SetMemoryContext 挂载外部记忆上下文，随 envelope 下发给 worker
func (g *Graph) SetMemoryContext(mem map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.meta.MemoryContext = mem
}

// TaskIDs 按插入序返回所有任务 id（含 ROOT）
func (g *Graph) TaskIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Predecessors 返回直接前驱 id 列表
func (g *Graph) Predecessors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var preds []string
	for _, e := range g.edges {
		if e.Target == id {
			preds = append(preds, e.Source)
		}
	}
	return preds
}

// Successors 返回直接后继 id 列表
func (g *Graph) Successors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var succs []string
	for _, e := range g.edges {
		if e.Source == id {
			succs = append(succs, e.Target)
		}
	}
	return succs
}

// Edges 返回全部依赖边副本
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Status 返回任务状态；不存在时返回空串
func (g *Graph) Status(id string) Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if t, ok := g.tasks[id]; ok {
		return t.Status
	}
	return ""
}

// Snapshot 返回任务记录的浅拷贝（Output/Iterations 共享底层，只读使用）
func (g *Graph) Snapshot(id string) (Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// MarkRunning 任务进入 running 并记录开始时间
func (g *Graph) MarkRunning(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tasks[id]; ok {
		now := time.Now().UTC()
		t.Status = StatusRunning
		t.StartTime = &now
	}
}

// MarkCompleted 任务完成，回写产出与用量
func (g *Graph) MarkCompleted(id string, output map[string]any, cost float64, inputTokens, outputTokens int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.EndTime = &now
	t.Output = output
	t.Cost = cost
	t.InputTokens = inputTokens
	t.OutputTokens = outputTokens
	if t.StartTime != nil {
		t.ExecutionTime = now.Sub(*t.StartTime).Seconds()
	}
}

// MarkFailed 任务失败并记录错误
func (g *Graph) MarkFailed(id string, errMsg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.EndTime = &now
	t.Error = errMsg
	if t.StartTime != nil {
		t.ExecutionTime = now.Sub(*t.StartTime).Seconds()
	}
}

// MarkSkipped 前驱失败导致的跳过
func (g *Graph) MarkSkipped(id string, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tasks[id]; ok {
		t.Status = StatusSkipped
		t.Error = reason
	}
}

// SetStatus 直接设置任务状态（waiting_input/stopped 等无额外记录的迁移）
func (g *Graph) SetStatus(id string, s Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tasks[id]; ok {
		t.Status = s
	}
}

// SetOutput 回写任务当前产出（waiting_input 挂起时保留问题文本）
func (g *Graph) SetOutput(id string, output map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tasks[id]; ok {
		t.Output = output
	}
}

// SetIterations 回写 ReAct 迭代历史。
// 存入的是副本：调用方在回写后继续修改本地切片不会影响图内数据，
// 并发 Export 序列化时也不会读到写了一半的元素。
func (g *Graph) SetIterations(id string, iterations []Iteration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tasks[id]; ok {
		t.Iterations = append([]Iteration(nil), iterations...)
	}
}

// RetryCount 返回私有重试计数
func (g *Graph) RetryCount(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if t, ok := g.tasks[id]; ok {
		return t.retry
	}
	return 0
}

// Requeue 失败任务重新入队：计数 +1 并回到 pending
func (g *Graph) Requeue(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tasks[id]; ok {
		t.retry++
		t.Status = StatusPending
	}
}

// AppendReads 幂等地向任务 reads 追加键（clarification 安全网使用）
func (g *Graph) AppendReads(id string, keys []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return
	}
	for _, k := range keys {
		found := false
		for _, r := range t.Reads {
			if r == k {
				found = true
				break
			}
		}
		if !found {
			t.Reads = append(t.Reads, k)
		}
	}
}

// SetGlobal 写入共享字典；同键后写覆盖
func (g *Graph) SetGlobal(key string, value any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.globals[key] = value
}

// Global 读取共享字典单键
func (g *Graph) Global(key string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.globals[key]
	return v, ok
}

// Globals 返回共享字典副本
func (g *Graph) Globals() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]any, len(g.globals))
	for k, v := range g.globals {
		out[k] = v
	}
	return out
}

// SeedGlobals 批量写入初始种子值
func (g *Graph) SeedGlobals(seed map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, v := range seed {
		g.globals[k] = v
	}
}

// Inputs 按 reads 声明解析任务输入；缺失键跳过（由调用方记日志）
func (g *Graph) Inputs(reads []string) (map[string]any, []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	inputs := make(map[string]any, len(reads))
	var missing []string
	for _, key := range reads {
		if v, ok := g.globals[key]; ok {
			inputs[key] = v
		} else {
			missing = append(missing, key)
		}
	}
	return inputs, missing
}

// SetFileProfiles 记录上传文件画像（供 Planner envelope 使用）
func (g *Graph) SetFileProfiles(profiles map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fileProfiles = profiles
}

// FileProfiles 返回文件画像副本
func (g *Graph) FileProfiles() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]any, len(g.fileProfiles))
	for k, v := range g.fileProfiles {
		out[k] = v
	}
	return out
}
