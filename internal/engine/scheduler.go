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
	"apexflow/internal/graph"
)

// ReadyFrontier 返回可执行任务：pending 且所有前驱 completed。
// ROOT 不参与调度；无前驱的任务视为就绪。遍历按插入序，结果确定。
func ReadyFrontier(g *graph.Graph) []string {
	var ready []string
	for _, id := range g.TaskIDs() {
		if id == graph.RootID {
			continue
		}
		if g.Status(id) != graph.StatusPending {
			continue
		}
		allDone := true
		for _, pred := range g.Predecessors(id) {
			if g.Status(pred) != graph.StatusCompleted {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}
	return ready
}

// SkipCascade 单轮跳过传播：前驱已失败/跳过/超预算的 pending 任务标记为 skipped。
// 返回是否有任务被标记；调度循环重复调用直至不再变化，使跳过逐层传递。
func SkipCascade(g *graph.Graph) bool {
	changed := false
	for _, id := range g.TaskIDs() {
		if g.Status(id) != graph.StatusPending {
			continue
		}
		for _, pred := range g.Predecessors(id) {
			s := g.Status(pred)
			if s == graph.StatusFailed || s == graph.StatusSkipped || s == graph.StatusCostExceeded {
				g.MarkSkipped(id, "Skipped: dependency failed")
				changed = true
				break
			}
		}
	}
	return changed
}

// AllTerminal 判断除 ROOT 外所有任务是否都处于终态
func AllTerminal(g *graph.Graph) bool {
	for _, id := range g.TaskIDs() {
		if id == graph.RootID {
			continue
		}
		if !g.Status(id).Terminal() {
			return false
		}
	}
	return true
}

// AnyRunningOrWaiting 判断是否有任务在执行或等待输入
func AnyRunningOrWaiting(g *graph.Graph) bool {
	for _, id := range g.TaskIDs() {
		s := g.Status(id)
		if s == graph.StatusRunning || s == graph.StatusWaitingInput {
			return true
		}
	}
	return false
}

// AnyFailed 判断是否有任务失败
func AnyFailed(g *graph.Graph) bool {
	for _, id := range g.TaskIDs() {
		if g.Status(id) == graph.StatusFailed {
			return true
		}
	}
	return false
}
