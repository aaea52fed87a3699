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

import "encoding/json"

// Export 可序列化的图快照（供 snapshot store 保存）
type Export struct {
	Meta    Meta           `json:"meta"`
	Nodes   []Task         `json:"nodes"`
	Edges   []Edge         `json:"edges"`
	Globals map[string]any `json:"globals"`
}

// Export 导出当前图的完整快照；节点按插入序
func (g *Graph) Export() Export {
	g.mu.RLock()
	defer g.mu.RUnlock()
	exp := Export{
		Meta:    g.meta,
		Nodes:   make([]Task, 0, len(g.order)),
		Edges:   make([]Edge, len(g.edges)),
		Globals: make(map[string]any, len(g.globals)),
	}
	for _, id := range g.order {
		exp.Nodes = append(exp.Nodes, *g.tasks[id])
	}
	copy(exp.Edges, g.edges)
	for k, v := range g.globals {
		exp.Globals[k] = v
	}
	return exp
}

// Marshal 序列化快照为 JSON
func (e Export) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Restore 从快照重建图（恢复会话）；retry 计数不持久化，恢复后从 0 开始
func Restore(e Export) *Graph {
	g := &Graph{
		meta:         e.Meta,
		tasks:        make(map[string]*Task, len(e.Nodes)),
		globals:      make(map[string]any, len(e.Globals)),
		fileProfiles: make(map[string]any),
	}
	for i := range e.Nodes {
		t := e.Nodes[i]
		t.Role = ParseRole(t.RoleName)
		g.addTaskLocked(&t)
	}
	g.edges = append(g.edges, e.Edges...)
	for k, v := range e.Globals {
		g.globals[k] = v
	}
	return g
}
