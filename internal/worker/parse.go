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
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrJSONParse 所有提取方式都失败时返回
var ErrJSONParse = errors.New("无法从模型输出中解析 JSON")

var fencedJSONRe = regexp.MustCompile("(?is)```json\\s*(\\{.*?\\})\\s*```")

// trailingCommaRe 匹配 } 或 ] 前的多余逗号，常见的模型输出瑕疵
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// ParseLLMJSON 从模型输出中宽容地解析出一个 JSON 对象。
// 依次尝试：```json 围栏块 → 首 { 到末 } 的平衡块 → 去尾逗号修复。
// 模型偶尔会把对象包在数组里，此时取第一个元素。
func ParseLLMJSON(text string) (map[string]any, error) {
	candidates := make([]string, 0, 2)
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	if raw := balancedBlock(text); raw != "" {
		candidates = append(candidates, raw)
	}

	for _, raw := range candidates {
		if obj, ok := tryParse(raw); ok {
			return obj, nil
		}
	}

	// 修复尝试：去掉尾随逗号再解析
	if raw := balancedBlock(text); raw != "" {
		repaired := trailingCommaRe.ReplaceAllString(raw, "$1")
		if obj, ok := tryParse(repaired); ok {
			return obj, nil
		}
	}

	return nil, ErrJSONParse
}

// balancedBlock 截取首个 { 到最后一个 } 之间的最大块；
// 若数组括号把对象整个包住（模型把对象包进数组），改取数组块
func balancedBlock(text string) string {
	objStart := strings.Index(text, "{")
	objEnd := strings.LastIndex(text, "}")
	arrStart := strings.Index(text, "[")
	arrEnd := strings.LastIndex(text, "]")

	if arrStart != -1 && arrEnd > arrStart &&
		(objStart == -1 || (arrStart < objStart && arrEnd > objEnd)) {
		return text[arrStart : arrEnd+1]
	}
	if objStart == -1 || objEnd <= objStart {
		return ""
	}
	return text[objStart : objEnd+1]
}

func tryParse(raw string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj, true
	}
	// 数组包装：取第一个 dict 元素
	var list []any
	if err := json.Unmarshal([]byte(raw), &list); err == nil && len(list) > 0 {
		if first, ok := list[0].(map[string]any); ok {
			return first, true
		}
	}
	return nil, false
}
