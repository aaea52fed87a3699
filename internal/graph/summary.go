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

// StepCost 单任务的花费与 token 明细
type StepCost struct {
	Role         string  `json:"role"`
	Cost         float64 `json:"cost"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
}

// Summary run 结束后的汇总：按任务的花费/token 明细、总量与最终产出
type Summary struct {
	SessionID         string              `json:"session_id"`
	OriginalQuery     string              `json:"original_query"`
	Status            RunStatus           `json:"status"`
	CompletedSteps    int                 `json:"completed_steps"`
	FailedSteps       int                 `json:"failed_steps"`
	TotalSteps        int                 `json:"total_steps"`
	TotalCost         float64             `json:"total_cost"`
	TotalInputTokens  int                 `json:"total_input_tokens"`
	TotalOutputTokens int                 `json:"total_output_tokens"`
	TotalTokens       int                 `json:"total_tokens"`
	CostBreakdown     map[string]StepCost `json:"cost_breakdown"`
	// FinalOutputs 共享字典中被某任务写入、但从未被其他任务读取的条目，
	// 即对外有意义的最终结果
	FinalOutputs map[string]any `json:"final_outputs"`
}

// Summarize 生成执行汇总
func (g *Graph) Summarize() Summary {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Summary{
		SessionID:     g.meta.SessionID,
		OriginalQuery: g.meta.OriginalQuery,
		Status:        g.meta.Status,
		CostBreakdown: make(map[string]StepCost),
		FinalOutputs:  make(map[string]any),
	}

	allReads := make(map[string]struct{})
	allWrites := make(map[string]struct{})

	for _, id := range g.order {
		t := g.tasks[id]
		for _, r := range t.Reads {
			allReads[r] = struct{}{}
		}
		for _, w := range t.Writes {
			allWrites[w] = struct{}{}
		}
		if id == RootID {
			continue
		}
		s.TotalSteps++
		switch t.Status {
		case StatusCompleted:
			s.CompletedSteps++
		case StatusFailed:
			s.FailedSteps++
		}
		if t.Cost > 0 {
			s.CostBreakdown[id] = StepCost{
				Role:         t.RoleName,
				Cost:         t.Cost,
				InputTokens:  t.InputTokens,
				OutputTokens: t.OutputTokens,
			}
		}
		s.TotalCost += t.Cost
		s.TotalInputTokens += t.InputTokens
		s.TotalOutputTokens += t.OutputTokens
	}
	s.TotalTokens = s.TotalInputTokens + s.TotalOutputTokens

	for key := range allWrites {
		if _, read := allReads[key]; read {
			continue
		}
		if v, ok := g.globals[key]; ok {
			s.FinalOutputs[key] = v
		}
	}

	return s
}

// CompletedCost 累计所有 completed 任务的花费（Cost Governor 使用）
func (g *Graph) CompletedCost() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var total float64
	for _, t := range g.tasks {
		if t.Status == StatusCompleted {
			total += t.Cost
		}
	}
	return total
}
