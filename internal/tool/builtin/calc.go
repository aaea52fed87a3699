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

package builtin

import (
	"context"
	"errors"
	"fmt"

	"apexflow/internal/tool"
)

// CalcTool 实现 math.calc：两操作数的基础算术，供模型把确定性计算外置
type CalcTool struct{}

// NewCalcTool 创建 math.calc 工具
func NewCalcTool() *CalcTool { return &CalcTool{} }

// Name 实现 tool.Tool
func (t *CalcTool) Name() string { return "math.calc" }

// Description 实现 tool.Tool
func (t *CalcTool) Description() string {
	return "基础算术。传入 op（add/sub/mul/div）与 a、b 两个数。"
}

// Schema 实现 tool.Tool
func (t *CalcTool) Schema() tool.Schema {
	return tool.Schema{
		Type:        "object",
		Description: "算术参数",
		Properties: map[string]tool.SchemaProperty{
			"op": {Type: "string", Description: "add, sub, mul, div"},
			"a":  {Type: "number", Description: "左操作数"},
			"b":  {Type: "number", Description: "右操作数"},
		},
		Required: []string{"op", "a", "b"},
	}
}

// Execute 实现 tool.Tool
func (t *CalcTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	op, _ := input["op"].(string)
	a, okA := toFloat(input["a"])
	b, okB := toFloat(input["b"])
	if !okA || !okB {
		return "", errors.New("a 与 b 必须为数字")
	}
	var result float64
	switch op {
	case "add":
		result = a + b
	case "sub":
		result = a - b
	case "mul":
		result = a * b
	case "div":
		if b == 0 {
			return "", errors.New("除数不能为 0")
		}
		result = a / b
	default:
		return "", fmt.Errorf("不支持的 op: %s", op)
	}
	return fmt.Sprintf("%g", result), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
