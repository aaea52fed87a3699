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

package graph

import (
	"strings"
	"time"
)

// Status 任务状态
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusSkipped      Status = "skipped"
	StatusStopped      Status = "stopped"
	StatusWaitingInput Status = "waiting_input"
	StatusCostExceeded Status = "cost_exceeded"
)

// Terminal 判断状态是否为终态（run 内不再迁移）
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusStopped, StatusCostExceeded:
		return true
	default:
		return false
	}
}

// RunStatus 图级状态
type RunStatus string

const (
	RunRunning      RunStatus = "running"
	RunCompleted    RunStatus = "completed"
	RunFailed       RunStatus = "failed"
	RunStopped      RunStatus = "stopped"
	RunCostExceeded RunStatus = "cost_exceeded"
)

// Role 任务执行角色（封闭变体，避免调用点按字符串分支）
type Role int

const (
	RoleSystem Role = iota // 合成 ROOT 节点
	RolePlanner
	RoleCoder
	RoleDistiller
	RoleFormatter
	RoleRetriever
	RoleThinker
	RoleClarifier
	RoleQA
)

func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RolePlanner:
		return "planner"
	case RoleCoder:
		return "coder"
	case RoleDistiller:
		return "distiller"
	case RoleFormatter:
		return "formatter"
	case RoleRetriever:
		return "retriever"
	case RoleThinker:
		return "thinker"
	case RoleClarifier:
		return "clarifier"
	case RoleQA:
		return "qa"
	default:
		return "unknown"
	}
}

// ParseRole 解析 Planner 输出中的角色名；兼容 "CoderAgent"/"coder" 两种写法。
// 未知角色归入 RoleThinker，保证畸形计划也能执行而非直接失败。
func ParseRole(name string) Role {
	n := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "Agent"))
	n = strings.TrimSuffix(n, "agent")
	switch n {
	case "system", "root":
		return RoleSystem
	case "planner":
		return RolePlanner
	case "coder":
		return RoleCoder
	case "distiller":
		return RoleDistiller
	case "formatter":
		return RoleFormatter
	case "retriever":
		return RoleRetriever
	case "thinker":
		return RoleThinker
	case "clarification", "clarifier":
		return RoleClarifier
	case "qa":
		return RoleQA
	default:
		return RoleThinker
	}
}

// Iteration 单个 ReAct turn 的记录
type Iteration struct {
	Turn            int            `json:"turn"`
	Output          map[string]any `json:"output"`
	ToolResult      string         `json:"tool_result,omitempty"`
	ExecutionResult map[string]any `json:"execution_result,omitempty"`
	Note            string         `json:"note,omitempty"`
}

// Task 执行图节点；status 只由 Scheduler/Executor 通过 Graph 方法变更
type Task struct {
	ID          string   `json:"id"`
	Role        Role     `json:"-"`
	RoleName    string   `json:"role"`
	Description string   `json:"description,omitempty"`
	Prompt      string   `json:"prompt,omitempty"` // 执行指令，空则用 Description
	Reads       []string `json:"reads,omitempty"`
	Writes      []string `json:"writes,omitempty"`

	Status        Status         `json:"status"`
	StartTime     *time.Time     `json:"start_time,omitempty"`
	EndTime       *time.Time     `json:"end_time,omitempty"`
	ExecutionTime float64        `json:"execution_time"` // 秒
	Cost          float64        `json:"cost"`
	InputTokens   int            `json:"input_tokens"`
	OutputTokens  int            `json:"output_tokens"`
	Output        map[string]any `json:"output,omitempty"`
	Error         string         `json:"error,omitempty"`
	Iterations    []Iteration    `json:"iterations,omitempty"`

	// retry 私有重试计数，不对其他任务可见
	retry int
}

// Instruction 返回任务执行指令；Prompt 为空时回退 Description
func (t *Task) Instruction() string {
	if t.Prompt != "" {
		return t.Prompt
	}
	return t.Description
}

// Edge 依赖边：Target 依赖 Source
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}
