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
	"context"
	"errors"
	"fmt"
	"time"

	"apexflow/internal/eventbus"
	"apexflow/internal/graph"
	"apexflow/internal/snapshot"
	"apexflow/internal/tool"
	"apexflow/internal/worker"
	"apexflow/pkg/log"
	"apexflow/pkg/metrics"
	"apexflow/pkg/tracing"
)

// DefaultMaxTurns ReAct loop 单任务轮次上限
const DefaultMaxTurns = 15

// finalTurnWarning 倒数第二轮追加的收尾警告
const finalTurnWarning = " \n\nWARNING: This is your FINAL turn. You MUST provide " +
	"the final 'output' now. Do not call any more tools. " +
	"Summarize what you have."

// errStoppedDuringInput 等待用户输入期间被取消
var errStoppedDuringInput = errors.New("Execution stopped by user during input.")

// StepResult 单任务执行产出与用量（跨轮累计）
type StepResult struct {
	Output       map[string]any
	Cost         float64
	InputTokens  int
	OutputTokens int
}

// Executor 执行单个任务的 ReAct loop 与完成回写
type Executor struct {
	invoker  worker.Invoker
	router   *tool.Router
	bus      *eventbus.Bus
	broker   *InteractionBroker
	snap     *snapshot.Writer
	logger   *log.Logger
	maxTurns int

	retryMax     int
	retryBackoff time.Duration
}

// NewExecutor 创建执行器；maxTurns <= 0 时取默认值
func NewExecutor(invoker worker.Invoker, router *tool.Router, bus *eventbus.Bus, broker *InteractionBroker, snap *snapshot.Writer, logger *log.Logger, maxTurns, retryMax int, retryBackoff time.Duration) *Executor {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Executor{
		invoker:      invoker,
		router:       router,
		bus:          bus,
		broker:       broker,
		snap:         snap,
		logger:       logger,
		maxTurns:     maxTurns,
		retryMax:     retryMax,
		retryBackoff: retryBackoff,
	}
}

// ExecuteStep 运行任务的 ReAct loop。
// 工具调用失败不终止循环，错误作为上下文反馈给 worker 自行调整；
// 轮次耗尽视为成功返回最后一轮产出。worker 经重试仍失败才返回 error。
func (e *Executor) ExecuteStep(ctx context.Context, g *graph.Graph, stepID string) (*StepResult, error) {
	meta := g.Meta()
	task, ok := g.Snapshot(stepID)
	if !ok {
		return nil, fmt.Errorf("任务不存在: %s", stepID)
	}

	ctx, span := tracing.StartStepSpan(ctx, stepID, task.Role.String())
	defer span.End()

	e.bus.Publish("step_start", "engine", map[string]any{
		"step_id":    stepID,
		"session_id": meta.SessionID,
	})

	inputs, missing := g.Inputs(task.Reads)
	for _, key := range missing {
		e.logger.Warn("依赖缺失，reads 键不在共享字典中", "step_id", stepID, "key", key)
	}

	result := &StepResult{}
	var iterations []graph.Iteration

	instruction := ""
	var previousOutput, iterationContext map[string]any

	for turn := 1; turn <= e.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.logger.Info("ReAct 迭代", "step_id", stepID, "role", task.Role.String(),
			"turn", turn, "max_turns", e.maxTurns)

		env := worker.BuildEnvelope(g, &task, inputs, instruction, previousOutput, iterationContext)

		res, err := RetryWithBackoff(ctx, e.logger, e.retryMax, e.retryBackoff, func() (*worker.Result, error) {
			return e.invoker.Invoke(ctx, task.Role, env)
		})
		if err != nil {
			return nil, fmt.Errorf("Agent failed after retries: %w", err)
		}

		result.Cost += res.Cost
		result.InputTokens += res.InputTokens
		result.OutputTokens += res.OutputTokens

		output := res.Output

		// 澄清请求直接进入完成流程，由 CompleteStep 挂起等待用户
		if msg, _ := output["clarificationMessage"].(string); msg != "" {
			result.Output = output
			return result, nil
		}

		iterations = append(iterations, graph.Iteration{Turn: turn, Output: output})
		g.SetIterations(stepID, iterations)

		switch {
		case output["call_tool"] != nil:
			toolCall, _ := output["call_tool"].(map[string]any)
			toolName, _ := toolCall["name"].(string)
			toolArgs, _ := toolCall["arguments"].(map[string]any)

			e.bus.Publish("tool_call", "engine", map[string]any{
				"step_id":    stepID,
				"session_id": meta.SessionID,
				"tool_name":  toolName,
				"args":       fmt.Sprintf("%.200v", toolArgs),
			})

			toolResult, err := e.router.Call(ctx, toolName, toolArgs, tool.CallContext{
				SessionID: meta.SessionID,
				StepID:    stepID,
			})
			if err != nil {
				// 可恢复：错误喂回 worker，让它换工具或换思路
				e.logger.Warn("工具执行失败", "step_id", stepID, "tool", toolName, "error", err.Error())
				instruction = "The tool execution failed. Try a different approach or tool."
				previousOutput = output
				iterationContext = map[string]any{"tool_result": "Error: " + err.Error()}
				continue
			}

			iterations[len(iterations)-1].ToolResult = toolResult
			g.SetIterations(stepID, iterations)

			instruction, _ = output["thought"].(string)
			if instruction == "" {
				instruction = "Use the tool result to generate the final output."
			}
			if turn == e.maxTurns-1 {
				instruction += finalTurnWarning
			}
			previousOutput = output
			iterationContext = map[string]any{"tool_result": toolResult}

		case output["call_self"] != nil && output["call_self"] != false:
			// 自递归：代码执行尚未接入，结果恒为 skipped
			execResult := autoExecuteCode(output)
			iterations[len(iterations)-1].ExecutionResult = execResult
			g.SetIterations(stepID, iterations)

			if status, _ := execResult["status"].(string); status == "success" {
				if data, ok := execResult["result"].(map[string]any); ok {
					for k, v := range data {
						inputs[k] = v
					}
				}
			}

			instruction, _ = output["next_instruction"].(string)
			if instruction == "" {
				instruction = "Continue the task"
			}
			previousOutput = output
			iterationContext, _ = output["iteration_context"].(map[string]any)

		default:
			result.Output = output
			return result, nil
		}
	}

	// 轮次耗尽：返回最后产出而非失败，下游仍可消费部分结果
	e.logger.Error("ReAct 轮次耗尽，返回最后一轮产出", "step_id", stepID, "max_turns", e.maxTurns)
	if len(iterations) > 0 {
		iterations[len(iterations)-1].Note = "max turns reached, output may be incomplete"
		g.SetIterations(stepID, iterations)
		result.Output = iterations[len(iterations)-1].Output
	} else {
		result.Output = map[string]any{"error": "No output produced"}
	}
	return result, nil
}

// autoExecuteCode 代码执行占位：识别到可执行产物时统一返回 skipped
func autoExecuteCode(output map[string]any) map[string]any {
	if !hasExecutableCode(output) {
		return map[string]any{"status": "skipped"}
	}
	return map[string]any{"status": "skipped", "error": "code execution not wired"}
}

func hasExecutableCode(output map[string]any) bool {
	if output == nil {
		return false
	}
	if _, ok := output["code_variants"]; ok {
		return true
	}
	for _, key := range []string{"tool_calls", "schedule_tool", "browser_commands", "python_code"} {
		if _, ok := output[key]; ok {
			return true
		}
	}
	return false
}

// CompleteStep 任务完成回写：澄清请求先挂起等待用户输入，
// 然后按提取链把 writes 声明的键写入共享字典，最后标记 completed。
func (e *Executor) CompleteStep(ctx context.Context, g *graph.Graph, stepID string, res *StepResult) error {
	task, ok := g.Snapshot(stepID)
	if !ok {
		return fmt.Errorf("任务不存在: %s", stepID)
	}
	output := res.Output

	if task.Role == graph.RoleClarifier && output != nil {
		if msg, _ := output["clarificationMessage"].(string); msg != "" {
			answered, err := e.handleInteraction(ctx, g, stepID, output)
			if err != nil {
				return err
			}
			output = answered
		}
	}

	extractWrites(g, task.Writes, output, e.logger, stepID)

	g.MarkCompleted(stepID, output, res.Cost, res.InputTokens, res.OutputTokens)
	metrics.StepTotal.WithLabelValues(string(graph.StatusCompleted)).Inc()
	if t, ok := g.Snapshot(stepID); ok {
		metrics.StepDuration.WithLabelValues(t.Role.String()).Observe(t.ExecutionTime)
	}
	e.snap.Enqueue(g.Export())
	return nil
}

// handleInteraction 挂起任务等待外部回答，答案写入共享字典
func (e *Executor) handleInteraction(ctx context.Context, g *graph.Graph, stepID string, output map[string]any) (map[string]any, error) {
	meta := g.Meta()
	question, _ := output["clarificationMessage"].(string)

	// 先注册等待，再对外宣告 waiting_input：
	// 看到状态或事件的一方立即 Provide 也不会撞上未注册的空窗
	ch := e.broker.Register(stepID)

	g.SetStatus(stepID, graph.StatusWaitingInput)
	g.SetOutput(stepID, output)
	e.snap.Enqueue(g.Export())

	e.bus.Publish("waiting_input", "engine", map[string]any{
		"step_id":    stepID,
		"session_id": meta.SessionID,
		"question":   question,
	})
	e.logger.Info("等待用户输入", "step_id", stepID, "question", question)

	answer, err := e.broker.Await(ctx, stepID, ch)
	if err != nil {
		g.MarkFailed(stepID, errStoppedDuringInput.Error())
		e.snap.Enqueue(g.Export())
		return nil, errStoppedDuringInput
	}

	writesTo, _ := output["writes_to"].(string)
	if writesTo == "" {
		writesTo = "user_response"
	}
	richContext := fmt.Sprintf("Agent Question: %s\nUser Answer: %s", question, answer)
	g.SetGlobal(writesTo, richContext)

	answered := make(map[string]any, len(output)+3)
	for k, v := range output {
		answered[k] = v
	}
	answered["user_response"] = answer
	answered["rich_context_saved"] = richContext
	answered["interaction_completed"] = true

	g.SetStatus(stepID, graph.StatusRunning)
	e.bus.Publish("context_updated", "engine", map[string]any{
		"step_id":    stepID,
		"session_id": meta.SessionID,
		"key":        writesTo,
	})
	e.logger.Info("用户输入已写入共享字典", "step_id", stepID, "key", writesTo)
	return answered, nil
}

// extractWrites 按提取链回填 writes 键：
// 代码执行结果 → 产出同名键 → output.output 嵌套键 → final_answer 整体回退 → 空值兜底
func extractWrites(g *graph.Graph, writes []string, output map[string]any, logger *log.Logger, stepID string) {
	if len(writes) == 0 {
		return
	}

	var execData map[string]any
	if output != nil {
		if er, ok := output["execution_result"].(map[string]any); ok {
			if status, _ := er["status"].(string); status == "success" {
				execData, _ = er["result"].(map[string]any)
			}
		}
	}

	for _, writeKey := range writes {
		extracted := false

		if execData != nil {
			if v, ok := execData[writeKey]; ok {
				g.SetGlobal(writeKey, v)
				extracted = true
			} else if len(execData) == 1 && len(writes) == 1 {
				for _, v := range execData {
					g.SetGlobal(writeKey, v)
				}
				extracted = true
			}
		}

		if !extracted && output != nil {
			if v, ok := output[writeKey]; ok {
				g.SetGlobal(writeKey, v)
				extracted = true
			} else if nested, ok := output["output"].(map[string]any); ok {
				if v, ok := nested[writeKey]; ok {
					g.SetGlobal(writeKey, v)
					extracted = true
				}
			}
			if !extracted {
				if v, ok := output["final_answer"]; ok {
					g.SetGlobal(writeKey, v)
					extracted = true
				}
			}
		}

		if !extracted {
			logger.Warn("无法从任务产出中提取写键，写入空值", "step_id", stepID, "key", writeKey)
			g.SetGlobal(writeKey, []any{})
		}
	}
}
