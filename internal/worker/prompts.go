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
	"fmt"
	"strings"

	"apexflow/internal/graph"
	"apexflow/internal/tool"
)

// reactContract 所有执行角色共享的输出协议
const reactContract = `You must reply with a single JSON object. Choose exactly one of:
1. {"call_tool": {"name": "<tool>", "arguments": {...}}, "thought": "<why>"} to invoke a tool.
2. {"clarificationMessage": "<question>", "writes_to": "<key>"} if you cannot proceed without user input.
3. {"output": {...final result keyed by your writes fields...}} when done.
Never mix forms. Never emit prose outside the JSON object.`

// rolePrompts 各角色的系统提示词
var rolePrompts = map[graph.Role]string{
	graph.RolePlanner: `You are the planning component of a task execution engine.
Given the user query and context, produce an execution plan as JSON:
{"plan_graph": {"nodes": [{"id": "T001", "description": "...", "agent": "RetrieverAgent|ThinkerAgent|CoderAgent|DistillerAgent|FormatterAgent|QAAgent|ClarificationAgent", "reads": [...], "writes": [...]}], "edges": [{"source": "T001", "target": "T002"}]}, "confidence": 0.0-1.0}
Node ids are short stable strings. reads/writes name keys in the shared data dictionary.
Also report "interpretation_confidence" (0.0-1.0), "ambiguity_notes" (list of unclear points, may be empty)
and "next_step_id" (the id of the first node to execute).
If the request is ambiguous, still produce a plan and lower the confidence; include a ClarificationAgent node when user input is required.`,

	graph.RoleRetriever: "You are a research and retrieval specialist. Gather the information the instruction asks for, using tools when a fact must come from the outside world.\n\n" + reactContract,

	graph.RoleThinker: "You are a reasoning specialist. Analyze the provided inputs step by step and produce the conclusion the instruction asks for.\n\n" + reactContract,

	graph.RoleCoder: "You are a coding specialist. Produce code or computed results per the instruction. Prefer tools for deterministic computation.\n\n" + reactContract,

	graph.RoleDistiller: "You are a distillation specialist. Condense the provided inputs into the essential content the instruction asks for.\n\n" + reactContract,

	graph.RoleFormatter: "You are a formatting specialist. Using all_globals_schema as source material, produce the final formatted deliverable.\n\n" + reactContract,

	graph.RoleClarifier: `You are a clarification specialist. Decide whether the user must be asked before work can continue.
Reply with {"clarificationMessage": "<question>", "writes_to": "<globals key>"} to ask,
or {"output": {...}} if the available context already answers the question.`,

	graph.RoleQA: "You are a quality reviewer. Verify the provided inputs against the instruction and report issues or approval.\n\n" + reactContract,
}

// PromptFor 返回角色的系统提示词；未知角色回退到 Thinker
func PromptFor(role graph.Role) string {
	if p, ok := rolePrompts[role]; ok {
		return p
	}
	return rolePrompts[graph.RoleThinker]
}

// ToolCatalog 渲染工具清单为提示词片段，格式与 Planner 约定一致
func ToolCatalog(r *tool.Router) string {
	tools := r.List()
	if len(tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n### Available Tools\n\n")
	for _, t := range tools {
		schema := t.Schema()
		args := make([]string, 0, len(schema.Properties))
		for name, prop := range schema.Properties {
			args = append(args, fmt.Sprintf("%s: %s", name, prop.Type))
		}
		b.WriteString(fmt.Sprintf("- `%s(%s)` # %s\n", t.Name(), strings.Join(args, ", "), t.Description()))
	}
	return b.String()
}
