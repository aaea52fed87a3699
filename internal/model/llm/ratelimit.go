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

	"golang.org/x/time/rate"
)

// RateLimitedClient 在调用前做本地限速，减少触发 Provider 限流的概率
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// ProviderLimiter 同一 Provider 下所有模型客户端共享的限速器，
// rpm 预算按 Provider 计，不随客户端数量放大
type ProviderLimiter struct {
	limiter *rate.Limiter
}

// NewProviderLimiter 创建共享限速器；rpm <=0 返回 nil 表示不限速
func NewProviderLimiter(rpm int) *ProviderLimiter {
	if rpm <= 0 {
		return nil
	}
	return &ProviderLimiter{limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)}
}

// Wrap 用共享限速器包装客户端；nil 限速器原样返回
func (p *ProviderLimiter) Wrap(inner Client) Client {
	if p == nil {
		return inner
	}
	return &RateLimitedClient{inner: inner, limiter: p.limiter}
}

// NewRateLimitedClient 包装客户端；rpm 为每分钟请求上限，<=0 表示不限速
func NewRateLimitedClient(inner Client, rpm int) Client {
	return NewProviderLimiter(rpm).Wrap(inner)
}

// ChatWithContext 实现 Client；先等待令牌再透传
func (c *RateLimitedClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, Usage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", Usage{}, err
	}
	return c.inner.ChatWithContext(ctx, messages, options)
}

// Model 实现 Client
func (c *RateLimitedClient) Model() string { return c.inner.Model() }

// Provider 实现 Client
func (c *RateLimitedClient) Provider() string { return c.inner.Provider() }
