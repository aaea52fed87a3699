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
	"time"

	"apexflow/internal/graph"
)

// SessionContext 随任务信封下发的会话级上下文
type SessionContext struct {
	SessionID     string         `json:"session_id"`
	CreatedAt     time.Time      `json:"created_at"`
	FileManifest  []string       `json:"file_manifest"`
	MemoryContext map[string]any `json:"memory_context,omitempty"`
}

// Envelope 单次 worker 调用的输入信封。
// 字段布局对所有角色一致，个别角色通过钩子补充专属字段。
type Envelope struct {
	StepID           string         `json:"step_id"`
	AgentPrompt      string         `json:"agent_prompt"`
	Reads            []string       `json:"reads"`
	Writes           []string       `json:"writes"`
	Inputs           map[string]any `json:"inputs"`
	OriginalQuery    string         `json:"original_query"`
	SessionContext   SessionContext `json:"session_context"`
	PreviousOutput   map[string]any `json:"previous_output,omitempty"`
	IterationContext map[string]any `json:"iteration_context,omitempty"`
	// AllGlobals 仅 Formatter 使用：最终排版需要看到全部已产出数据
	AllGlobals map[string]any `json:"all_globals_schema,omitempty"`
}

// BuildEnvelope 组装任务信封；instruction 为空时回退到任务自带指令。
// inputs 由调用方传入而非现取，ReAct loop 中代码执行结果会合并进来。
func BuildEnvelope(g *graph.Graph, t *graph.Task, inputs map[string]any, instruction string, previousOutput, iterationContext map[string]any) *Envelope {
	if instruction == "" {
		instruction = t.Instruction()
	}
	meta := g.Meta()
	env := &Envelope{
		StepID:        t.ID,
		AgentPrompt:   instruction,
		Reads:         t.Reads,
		Writes:        t.Writes,
		Inputs:        inputs,
		OriginalQuery: meta.OriginalQuery,
		SessionContext: SessionContext{
			SessionID:     meta.SessionID,
			CreatedAt:     meta.CreatedAt,
			FileManifest:  meta.FileManifest,
			MemoryContext: meta.MemoryContext,
		},
		PreviousOutput:   previousOutput,
		IterationContext: iterationContext,
	}
	applyRoleHook(g, t.Role, env)
	return env
}

// applyRoleHook 按角色补充信封字段
func applyRoleHook(g *graph.Graph, role graph.Role, env *Envelope) {
	switch role {
	case graph.RoleFormatter:
		env.AllGlobals = g.Globals()
	default:
	}
}
