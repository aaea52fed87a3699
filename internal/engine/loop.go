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

// Package engine 实现任务图执行引擎：引导规划、按依赖调度、
// ReAct 执行、成本护栏、挂起交互与自适应重规划。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"apexflow/internal/eventbus"
	"apexflow/internal/fileprofile"
	"apexflow/internal/graph"
	"apexflow/internal/snapshot"
	"apexflow/internal/tool"
	"apexflow/internal/worker"
	"apexflow/pkg/config"
	"apexflow/pkg/log"
	"apexflow/pkg/metrics"
	"apexflow/pkg/tracing"
)

// Engine 任务图执行引擎；依赖全部经构造注入，无全局状态
type Engine struct {
	cfg      config.AgentConfig
	invoker  worker.Invoker
	executor *Executor
	router   *tool.Router
	bus      *eventbus.Bus
	broker   *InteractionBroker
	snap     *snapshot.Writer
	profiler *fileprofile.Profiler
	logger   *log.Logger
}

// RunOptions 单次 run 的输入
type RunOptions struct {
	SessionID     string
	Query         string
	FileManifest  []string
	UploadedFiles []string
	Globals       map[string]any
	MemoryContext map[string]any
}

// New 创建引擎；profiler 可为 nil（不做文件画像）
func New(cfg config.AgentConfig, invoker worker.Invoker, router *tool.Router, bus *eventbus.Bus, broker *InteractionBroker, snap *snapshot.Writer, profiler *fileprofile.Profiler, logger *log.Logger) *Engine {
	executor := NewExecutor(invoker, router, bus, broker, snap, logger,
		cfg.MaxTurns, cfg.RetryMax, cfg.RetryBackoffDuration())
	return &Engine{
		cfg:      cfg,
		invoker:  invoker,
		executor: executor,
		router:   router,
		bus:      bus,
		broker:   broker,
		snap:     snap,
		profiler: profiler,
		logger:   logger,
	}
}

// Broker 返回交互协调器（API 层投递答案用）
func (e *Engine) Broker() *InteractionBroker { return e.broker }

// Prepare 初始化执行图与引导规划节点；SessionID 为空时生成新 id。
// 图先于执行创建，API 层得以在 run 进行中观察状态。
func (e *Engine) Prepare(opts *RunOptions) *graph.Graph {
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}

	g := graph.New(opts.SessionID, opts.Query, opts.FileManifest)
	g.SetGlobal("original_query", opts.Query)
	g.SeedGlobals(opts.Globals)
	if opts.MemoryContext != nil {
		g.SetMemoryContext(opts.MemoryContext)
	}

	// 引导节点：第一个 Planner 任务，重规划时复用
	g.AddTask(&graph.Task{
		ID:          BootstrapID,
		Role:        graph.RolePlanner,
		RoleName:    "PlannerAgent",
		Description: "Formulate execution plan",
		Reads:       []string{"original_query"},
		Writes:      []string{"plan_graph"},
		Status:      graph.StatusRunning,
	})
	g.AddEdge(graph.RootID, BootstrapID)
	e.snap.Enqueue(g.Export())
	return g
}

// Execute 在已初始化的图上执行 run，取消经 ctx 传递
func (e *Engine) Execute(ctx context.Context, g *graph.Graph, opts RunOptions) error {
	logger := e.logger.WithRun(opts.SessionID)

	ctx, span := tracing.StartRunSpan(ctx, opts.SessionID)
	defer span.End()

	logger.Info("会话初始化完成", "query", opts.Query)

	if e.profiler != nil && len(opts.UploadedFiles) > 0 {
		e.profileFiles(ctx, g, opts.UploadedFiles, logger)
	}

	err := e.planAndExecute(ctx, g, opts, logger)
	e.finishRun(ctx, g, err, logger)
	return err
}

// Run 一次性执行：Prepare + Execute（CLI 等同步场景使用）
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*graph.Graph, error) {
	g := e.Prepare(&opts)
	err := e.Execute(ctx, g, opts)
	return g, err
}

// profileFiles 文件画像阶段：本地抽取后交给 Distiller 生成结构化画像。
// 画像失败不阻断 run，Planner 只是拿不到文件信息。
func (e *Engine) profileFiles(ctx context.Context, g *graph.Graph, files []string, logger *log.Logger) {
	local := e.profiler.ProfileAll(files)

	meta := g.Meta()
	env := &worker.Envelope{
		StepID:      "file_profiling",
		AgentPrompt: "Profile and summarize each file's structure, columns, content type",
		Writes:      []string{"file_profiles"},
		Inputs: map[string]any{
			"task":  "profile_files",
			"files": local,
		},
		OriginalQuery: meta.OriginalQuery,
		SessionContext: worker.SessionContext{
			SessionID:    meta.SessionID,
			CreatedAt:    meta.CreatedAt,
			FileManifest: meta.FileManifest,
		},
	}

	res, err := RetryWithBackoff(ctx, logger, e.cfg.RetryMax, e.cfg.RetryBackoffDuration(), func() (*worker.Result, error) {
		return e.invoker.Invoke(ctx, graph.RoleDistiller, env)
	})
	if err != nil {
		logger.Warn("文件画像失败，继续执行", "error", err.Error())
		g.SetFileProfiles(local)
		return
	}
	g.SetFileProfiles(res.Output)
	e.snap.Enqueue(g.Export())
}

// planAndExecute 规划与执行主循环
func (e *Engine) planAndExecute(ctx context.Context, g *graph.Graph, opts RunOptions, logger *log.Logger) error {
	// 预算预警在整个 run 内只发一次，跨重规划轮次不重复
	costWarned := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		planOutput, res, err := e.runPlanner(ctx, g, opts)
		if err != nil {
			g.MarkFailed(BootstrapID, err.Error())
			return fmt.Errorf("Planning failed: %w", err)
		}

		pr, err := ParsePlan(planOutput)
		if err != nil {
			g.MarkFailed(BootstrapID, err.Error())
			return fmt.Errorf("Planning failed: %w", err)
		}

		MaybeInjectClarification(pr, logger)

		g.MarkCompleted(BootstrapID, planOutput, res.Cost, res.InputTokens, res.OutputTokens)
		MergePlan(g, pr.Plan, logger)
		e.snap.Enqueue(g.Export())
		logger.Info("计划已合并", "nodes", len(pr.Plan.Nodes), "edges", len(pr.Plan.Edges))

		if err := e.executeDAG(ctx, g, &costWarned, logger); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if g.Meta().Status == graph.RunCostExceeded {
			return nil
		}

		if ShouldReplan(g) {
			logger.Info("澄清已回答且无后继，触发自适应重规划")
			g.SetStatus(BootstrapID, graph.StatusRunning)
			e.snap.Enqueue(g.Export())
			continue
		}
		return nil
	}
}

// runPlanner 调用 Planner 生成计划
func (e *Engine) runPlanner(ctx context.Context, g *graph.Graph, opts RunOptions) (map[string]any, *worker.Result, error) {
	meta := g.Meta()
	env := &worker.Envelope{
		StepID:      BootstrapID,
		AgentPrompt: "Formulate execution plan",
		Reads:       []string{"original_query"},
		Writes:      []string{"plan_graph"},
		Inputs: map[string]any{
			"original_query":    opts.Query,
			"planning_strategy": e.cfg.PlanningStrategy,
			"globals_schema":    g.Globals(),
			"file_manifest":     opts.FileManifest,
			"file_profiles":     g.FileProfiles(),
			"memory_context":    opts.MemoryContext,
		},
		OriginalQuery: meta.OriginalQuery,
		SessionContext: worker.SessionContext{
			SessionID:     meta.SessionID,
			CreatedAt:     meta.CreatedAt,
			FileManifest:  meta.FileManifest,
			MemoryContext: meta.MemoryContext,
		},
	}

	res, err := RetryWithBackoff(ctx, e.logger, e.cfg.RetryMax, e.cfg.RetryBackoffDuration(), func() (*worker.Result, error) {
		return e.invoker.Invoke(ctx, graph.RolePlanner, env)
	})
	if err != nil {
		return nil, nil, err
	}
	return res.Output, res, nil
}

type stepOutcome struct {
	res *StepResult
	err error
}

// executeDAG 按依赖序执行就绪任务，直到全部终态或触发护栏。
// 同一批就绪任务并发执行，批内全部返回后统一结算。
// costWarned 由调用方持有，run 级别只预警一次。
func (e *Engine) executeDAG(ctx context.Context, g *graph.Graph, costWarned *bool, logger *log.Logger) error {
	meta := g.Meta()

	for !AllTerminal(g) {
		if ctx.Err() != nil {
			e.markInterrupted(g, graph.StatusStopped, "")
			e.snap.Enqueue(g.Export())
			return nil
		}

		ready := ReadyFrontier(g)
		if len(ready) == 0 {
			if AnyRunningOrWaiting(g) {
				// 批内同步执行下不应出现；防御性等待
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if SkipCascade(g) {
				e.snap.Enqueue(g.Export())
				continue
			}
			if AllTerminal(g) {
				break
			}
			// 剩余 pending 的前驱永远无法完成（环或悬空依赖）
			for _, id := range g.TaskIDs() {
				if g.Status(id) == graph.StatusPending {
					g.MarkFailed(id, "Unreachable: dependency never completes")
					logger.Error("任务不可达", "step_id", id)
				}
			}
			e.snap.Enqueue(g.Export())
			continue
		}

		for _, id := range ready {
			g.MarkRunning(id)
		}
		e.snap.Enqueue(g.Export())

		outcomes := make(map[string]stepOutcome, len(ready))
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, id := range ready {
			wg.Add(1)
			go func(stepID string) {
				defer wg.Done()
				res, err := e.executor.ExecuteStep(ctx, g, stepID)
				if err == nil {
					err = e.executor.CompleteStep(ctx, g, stepID, res)
				}
				mu.Lock()
				outcomes[stepID] = stepOutcome{res: res, err: err}
				mu.Unlock()
			}(id)
		}
		wg.Wait()

		for _, id := range ready {
			e.settleStep(g, id, outcomes[id], meta.SessionID, logger)
		}

		cost := g.CompletedCost()
		metrics.RunCost.WithLabelValues(meta.SessionID).Set(cost)
		if !*costWarned && cost >= e.cfg.WarnAtCost {
			logger.Warn("成本接近上限", "cost", cost, "warn_at", e.cfg.WarnAtCost)
			e.bus.Publish("cost_warning", "engine", map[string]any{
				"session_id": meta.SessionID,
				"cost":       cost,
				"warn_at":    e.cfg.WarnAtCost,
			})
			*costWarned = true
		}
		if cost >= e.cfg.MaxCostPerRun {
			logger.Error("成本超限，终止执行", "cost", cost, "max", e.cfg.MaxCostPerRun)
			g.SetRunStatus(graph.RunCostExceeded)
			g.SetFinalCost(cost)
			e.markInterrupted(g, graph.StatusCostExceeded, "Cost limit exceeded")
			break
		}
	}

	e.resolveRunStatus(ctx, g)
	e.snap.Enqueue(g.Export())
	return nil
}

// settleStep 结算单任务结果：成功发事件，失败按预算重试或置为失败
func (e *Engine) settleStep(g *graph.Graph, stepID string, oc stepOutcome, sessionID string, logger *log.Logger) {
	t, ok := g.Snapshot(stepID)
	if !ok {
		return
	}

	if oc.err == nil {
		logger.Info("任务完成", "step_id", stepID, "role", t.Role.String(),
			"cost", t.Cost, "execution_time", t.ExecutionTime)
		e.bus.Publish("step_complete", "engine", map[string]any{
			"step_id":        stepID,
			"session_id":     sessionID,
			"agent_type":     t.RoleName,
			"execution_time": t.ExecutionTime,
			"cost":           t.Cost,
		})
		return
	}

	if errors.Is(oc.err, errStoppedDuringInput) {
		// CompleteStep 已标记 failed
		return
	}
	if errors.Is(oc.err, context.Canceled) || errors.Is(oc.err, context.DeadlineExceeded) {
		g.SetStatus(stepID, graph.StatusStopped)
		return
	}

	maxRetries := e.cfg.StepRetries()
	retryCount := g.RetryCount(stepID)
	if retryCount < maxRetries {
		g.Requeue(stepID)
		metrics.StepRetryTotal.Inc()
		logger.Warn("任务失败，重新入队",
			"step_id", stepID, "attempt", retryCount+1,
			"max_retries", maxRetries, "error", oc.err.Error())
		return
	}

	g.MarkFailed(stepID, oc.err.Error())
	metrics.StepTotal.WithLabelValues(string(graph.StatusFailed)).Inc()
	logger.Error("任务重试耗尽，标记失败",
		"step_id", stepID, "max_retries", maxRetries, "error", oc.err.Error())
	e.bus.Publish("step_failed", "engine", map[string]any{
		"step_id":    stepID,
		"session_id": sessionID,
		"agent_type": t.RoleName,
		"error":      oc.err.Error(),
	})
}

// markInterrupted 把所有 running/pending 任务置为给定终态
func (e *Engine) markInterrupted(g *graph.Graph, status graph.Status, errMsg string) {
	for _, id := range g.TaskIDs() {
		s := g.Status(id)
		if s == graph.StatusRunning || s == graph.StatusPending || s == graph.StatusWaitingInput {
			if status == graph.StatusFailed && errMsg != "" {
				g.MarkFailed(id, errMsg)
			} else {
				g.SetStatus(id, status)
			}
		}
	}
}

// resolveRunStatus 汇总图级状态；cost_exceeded 已设置时保持不变
func (e *Engine) resolveRunStatus(ctx context.Context, g *graph.Graph) {
	if g.Meta().Status == graph.RunCostExceeded {
		return
	}
	switch {
	case ctx.Err() != nil:
		g.SetRunStatus(graph.RunStopped)
	case AnyFailed(g):
		g.SetRunStatus(graph.RunFailed)
	case AllTerminal(g):
		g.SetRunStatus(graph.RunCompleted)
	default:
		g.SetRunStatus(graph.RunFailed)
	}
}

// finishRun 收尾：取消与失败的统一标记、指标与最终快照
func (e *Engine) finishRun(ctx context.Context, g *graph.Graph, runErr error, logger *log.Logger) {
	switch {
	case ctx.Err() != nil:
		e.markInterrupted(g, graph.StatusStopped, "")
		g.SetRunStatus(graph.RunStopped)
		logger.Info("run 已停止")
	case runErr != nil:
		e.markInterrupted(g, graph.StatusFailed, runErr.Error())
		g.SetRunError(graph.RunFailed, runErr.Error())
		logger.Error("run 失败", "error", runErr.Error())
	}

	meta := g.Meta()
	metrics.RunTotal.WithLabelValues(string(meta.Status)).Inc()
	metrics.RunCost.WithLabelValues(meta.SessionID).Set(g.CompletedCost())
	e.snap.Enqueue(g.Export())
	logger.Info("run 结束", "status", string(meta.Status), "cost", g.CompletedCost())
}
