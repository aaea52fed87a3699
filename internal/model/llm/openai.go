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

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	pkgerrors "apexflow/pkg/errors"
	"apexflow/pkg/metrics"
)

// rateLimitDelays 收到 429 时的固定梯度等待；区别于 engine 的指数退避，
// Provider 限流窗口通常按分钟计，阶梯等待更贴近真实恢复时间
var rateLimitDelays = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}

// OpenAIClient OpenAI 兼容客户端
type OpenAIClient struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	client   *resty.Client
}

// NewOpenAIClient 创建 OpenAI 兼容客户端；baseURL 为空时用默认或 OPENAI_BASE_URL
func NewOpenAIClient(model, apiKey, baseURL string) (*OpenAIClient, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
		if envURL := os.Getenv("OPENAI_BASE_URL"); envURL != "" {
			baseURL = envURL
		}
	}

	client := resty.New()
	client.SetTimeout(60 * time.Second)

	return &OpenAIClient{
		provider: "openai",
		model:    model,
		apiKey:   apiKey,
		baseURL:  baseURL,
		client:   client,
	}, nil
}

// Model 实现 Client
func (c *OpenAIClient) Model() string { return c.model }

// Provider 实现 Client
func (c *OpenAIClient) Provider() string { return c.provider }

// ChatWithContext 实现 Client；429 在客户端内按固定梯度重试
func (c *OpenAIClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, Usage, error) {
	request := map[string]interface{}{
		"model":       c.model,
		"messages":    messages,
		"temperature": options.Temperature,
	}
	if options.MaxTokens > 0 {
		request["max_tokens"] = options.MaxTokens
	}
	if options.TopP > 0 {
		request["top_p"] = options.TopP
	}
	if len(options.Stop) > 0 {
		request["stop"] = options.Stop
	}

	for attempt := 0; ; attempt++ {
		reply, usage, err := c.doChat(ctx, request)
		if err == nil {
			return reply, usage, nil
		}
		if !isRateLimited(err) || attempt >= len(rateLimitDelays) {
			return "", Usage{}, err
		}
		select {
		case <-time.After(rateLimitDelays[attempt]):
		case <-ctx.Done():
			return "", Usage{}, ctx.Err()
		}
	}
}

func (c *OpenAIClient) doChat(ctx context.Context, request map[string]interface{}) (string, Usage, error) {
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(request).
		Post(c.baseURL + "/chat/completions")

	if err != nil {
		return "", Usage{}, classifyTransportError(err)
	}

	if response.StatusCode() == http.StatusTooManyRequests {
		return "", Usage{}, fmt.Errorf("%w: %s", pkgerrors.ErrRateLimited, response.String())
	}
	if response.StatusCode() != http.StatusOK {
		return "", Usage{}, fmt.Errorf("OpenAI API 返回错误: %s", response.String())
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return "", Usage{}, fmt.Errorf("解析 OpenAI 响应失败: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("OpenAI 响应无 choices")
	}

	usage := Usage{
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}
	metrics.LLMTokensTotal.WithLabelValues("input").Add(float64(usage.InputTokens))
	metrics.LLMTokensTotal.WithLabelValues("output").Add(float64(usage.OutputTokens))

	return result.Choices[0].Message.Content, usage, nil
}

// classifyTransportError 将网络错误归入瞬时失败哨兵，供 engine retry wrapper 判定
func classifyTransportError(err error) error {
	var netErr net.Error
	if ok := asNetError(err, &netErr); ok && netErr.Timeout() {
		return fmt.Errorf("%w: %s", pkgerrors.ErrTimeout, err.Error())
	}
	return fmt.Errorf("%w: %s", pkgerrors.ErrConnection, err.Error())
}
