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
	"fmt"
	"sync"

	pkgerrors "apexflow/pkg/errors"
)

// InteractionBroker 协调挂起任务与外部回答：执行侧在 channel 上阻塞等待，
// API 侧投递答案后立即唤醒，无需轮询。
type InteractionBroker struct {
	mu      sync.Mutex
	waiters map[string]chan string
}

// NewInteractionBroker 创建 broker
func NewInteractionBroker() *InteractionBroker {
	return &InteractionBroker{waiters: make(map[string]chan string)}
}

// Register 预注册等待通道，返回后 Provide 即可命中。
// 执行侧先 Register 再对外宣告 waiting_input，答案投递没有空窗。
// 同一任务重复 Register 会覆盖旧的等待通道。
func (b *InteractionBroker) Register(stepID string) chan string {
	ch := make(chan string, 1)
	b.mu.Lock()
	b.waiters[stepID] = ch
	b.mu.Unlock()
	return ch
}

// Await 在已注册的通道上阻塞，直到收到答案或 ctx 取消，返回时注销等待
func (b *InteractionBroker) Await(ctx context.Context, stepID string, ch chan string) (string, error) {
	defer func() {
		b.mu.Lock()
		delete(b.waiters, stepID)
		b.mu.Unlock()
	}()

	select {
	case answer := <-ch:
		return answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Wait 注册等待并阻塞，直到收到答案或 ctx 取消
func (b *InteractionBroker) Wait(ctx context.Context, stepID string) (string, error) {
	return b.Await(ctx, stepID, b.Register(stepID))
}

// Provide 向挂起任务投递答案；无等待方时返回 ErrNotFound
func (b *InteractionBroker) Provide(stepID, answer string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.waiters[stepID]
	if !ok {
		return fmt.Errorf("%w: 任务 %s 不在等待输入", pkgerrors.ErrNotFound, stepID)
	}
	select {
	case ch <- answer:
	default:
	}
	delete(b.waiters, stepID)
	return nil
}

// Pending 返回当前等待输入的任务 id 列表
func (b *InteractionBroker) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.waiters))
	for id := range b.waiters {
		ids = append(ids, id)
	}
	return ids
}
