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

package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"apexflow/internal/graph"
	"apexflow/pkg/log"
)

// BootstrapID Planner 引导节点 id；重规划时复用同一节点
const BootstrapID = "Query"

// AutoClarifyThreshold Planner 置信度低于该值且存在歧义说明时，自动注入澄清节点
const AutoClarifyThreshold = 0.7

// PlanNode Planner 输出中的单个任务节点
type PlanNode struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Agent       string   `json:"agent"`
	AgentPrompt string   `json:"agent_prompt,omitempty"`
	Reads       []string `json:"reads"`
	Writes      []string `json:"writes"`
}

// PlanEdge Planner 输出中的依赖边；兼容 source/target 与 from/to 两种写法
type PlanEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

// Plan 一次规划的完整产出
type Plan struct {
	Nodes []PlanNode `json:"nodes"`
	Edges []PlanEdge `json:"edges"`
}

// PlanResult 从 Planner 输出解出的计划与元信息
type PlanResult struct {
	Plan           *Plan
	Confidence     float64
	AmbiguityNotes []string
	NextStepID     string
}

// ParsePlan 从 Planner 的 JSON 输出中解出计划。
// 缺少 plan_graph 键视为规划失败，整个 run 失败。
func ParsePlan(output map[string]any) (*PlanResult, error) {
	rawPlan, ok := output["plan_graph"]
	if !ok {
		return nil, fmt.Errorf("Planner 输出缺少 plan_graph 键")
	}

	// 经 JSON round-trip 转成结构体，天然容忍多余字段
	data, err := json.Marshal(rawPlan)
	if err != nil {
		return nil, fmt.Errorf("序列化 plan_graph 失败: %w", err)
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("plan_graph 结构不合法: %w", err)
	}

	result := &PlanResult{Plan: &plan, Confidence: 1.0, NextStepID: "T001"}
	if c, ok := output["interpretation_confidence"].(float64); ok {
		result.Confidence = c
	}
	if notes, ok := output["ambiguity_notes"].([]any); ok {
		for _, n := range notes {
			if s, ok := n.(string); ok {
				result.AmbiguityNotes = append(result.AmbiguityNotes, s)
			}
		}
	}
	if next, ok := output["next_step_id"].(string); ok && next != "" {
		result.NextStepID = next
	}
	return result, nil
}

// resolve 归一化边的两种字段写法
func (e PlanEdge) resolve() (string, string) {
	source := e.Source
	if source == "" {
		source = e.From
	}
	target := e.Target
	if target == "" {
		target = e.To
	}
	return source, target
}

// hasClarifier 判断计划中是否已有澄清节点
func (p *Plan) hasClarifier() bool {
	for _, n := range p.Nodes {
		if graph.ParseRole(n.Agent) == graph.RoleClarifier {
			return true
		}
	}
	return false
}

// MaybeInjectClarification 低置信度时在计划头部注入澄清节点。
// Planner 已自带澄清节点时不重复注入。返回是否注入。
func MaybeInjectClarification(pr *PlanResult, logger *log.Logger) bool {
	if pr.Confidence >= AutoClarifyThreshold || len(pr.AmbiguityNotes) == 0 || pr.Plan.hasClarifier() {
		return false
	}

	logger.Info("规划置信度过低，自动注入澄清节点",
		"confidence", pr.Confidence, "first_step", pr.NextStepID)

	const clarifyID = "T000_AutoClarify"
	const writeKey = "user_clarification_T000"
	firstStep := pr.NextStepID

	node := PlanNode{
		ID:          clarifyID,
		Agent:       "ClarificationAgent",
		Description: "Clarify ambiguous requirements before proceeding",
		AgentPrompt: "The system has identified ambiguities in the user's request. " +
			"Please ask for clarification on: " + strings.Join(pr.AmbiguityNotes, "; "),
		Reads:  []string{},
		Writes: []string{writeKey},
	}

	pr.Plan.Nodes = append([]PlanNode{node}, pr.Plan.Nodes...)
	pr.Plan.Edges = append([]PlanEdge{{Source: clarifyID, Target: firstStep}}, pr.Plan.Edges...)

	for i := range pr.Plan.Nodes {
		if pr.Plan.Nodes[i].ID == firstStep {
			if !containsString(pr.Plan.Nodes[i].Reads, writeKey) {
				pr.Plan.Nodes[i].Reads = append(pr.Plan.Nodes[i].Reads, writeKey)
			}
			break
		}
	}

	pr.NextStepID = clarifyID
	return true
}

// MergePlan 把新计划并入执行图。
// 同 id 已 completed 的任务保持不变（幂等重并入）；ROOT 出边重定向到引导节点；
// 缺 source/target 的边丢弃并记日志；无入边的孤儿节点自动挂到引导节点下。
func MergePlan(g *graph.Graph, plan *Plan, logger *log.Logger) {
	incoming := make(map[string]bool)

	for _, n := range plan.Nodes {
		if g.Status(n.ID) == graph.StatusCompleted {
			continue
		}
		g.AddTask(&graph.Task{
			ID:          n.ID,
			Role:        graph.ParseRole(n.Agent),
			RoleName:    n.Agent,
			Description: n.Description,
			Prompt:      n.AgentPrompt,
			Reads:       n.Reads,
			Writes:      n.Writes,
			Status:      graph.StatusPending,
		})
	}

	for _, e := range plan.Edges {
		source, target := e.resolve()
		if source == "" || target == "" {
			logger.Warn("丢弃畸形边", "source", source, "target", target)
			continue
		}
		if source == graph.RootID {
			source = BootstrapID
		}
		g.AddEdge(source, target)
		incoming[target] = true
	}

	for _, n := range plan.Nodes {
		if !incoming[n.ID] {
			logger.Info("孤儿节点自动接入引导节点", "node_id", n.ID)
			g.AddEdge(BootstrapID, n.ID)
		}
	}

	// 安全网：澄清节点的 writes 自动接入后继的 reads，
	// 防止 Planner 忘记声明数据依赖导致澄清结果无人消费
	for _, n := range plan.Nodes {
		if graph.ParseRole(n.Agent) != graph.RoleClarifier || len(n.Writes) == 0 {
			continue
		}
		for _, e := range plan.Edges {
			source, target := e.resolve()
			if source != n.ID || target == "" {
				continue
			}
			g.AppendReads(target, n.Writes)
			logger.Info("澄清产出接入后继 reads", "clarifier", n.ID, "successor", target, "keys", strings.Join(n.Writes, ","))
		}
	}
}

// ShouldReplan 判断是否需要重新规划：全部任务终态后，
// 存在已完成且无后继的澄清节点，说明澄清结果尚未被计划消费。
func ShouldReplan(g *graph.Graph) bool {
	if !AllTerminal(g) {
		return false
	}
	for _, id := range g.TaskIDs() {
		t, ok := g.Snapshot(id)
		if !ok {
			continue
		}
		if t.Role == graph.RoleClarifier && t.Status == graph.StatusCompleted && len(g.Successors(id)) == 0 {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
