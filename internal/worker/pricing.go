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

// pricing 每百万 token 的单价（输入、输出）
type pricing struct {
	InputRate  float64
	OutputRate float64
}

// modelPricing 各模型计费表；未收录的模型按 defaultPricing 保守计费
var modelPricing = map[string]pricing{
	"gemini-2.5-pro":        {1.25, 10.00},
	"gemini-2.5-flash-lite": {0.075, 0.30},
	"gemini-2.5-flash":      {0.15, 0.60},
	"gemini-2.0-flash-lite": {0.075, 0.30},
	"gemini-2.0-flash":      {0.10, 0.40},
	"gemini-1.5-pro":        {1.25, 5.00},
	"gemini-1.5-flash":      {0.075, 0.30},
	"gpt-4o":                {2.50, 10.00},
	"gpt-4o-mini":           {0.15, 0.60},
}

var defaultPricing = pricing{0.075, 0.30}

// CalculateCost 按真实 token 用量计算单次调用成本（美元）
func CalculateCost(inputTokens, outputTokens int, model string) float64 {
	p, ok := modelPricing[model]
	if !ok {
		p = defaultPricing
	}
	inputCost := float64(inputTokens) / 1_000_000 * p.InputRate
	outputCost := float64(outputTokens) / 1_000_000 * p.OutputRate
	return inputCost + outputCost
}
