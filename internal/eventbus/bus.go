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

// Package eventbus 进程内事件总线：Publish 即发即忘，经单消费者有界队列
// 派发给订阅者，突发写入不会放大为无界并发 I/O。
package eventbus

import (
	"sync"
	"time"

	"apexflow/pkg/log"
)

const (
	historyLimit = 100
	replayCount  = 5 // 新订阅者回放最近 N 条
)

// Event 单条事件
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
}

// Bus 事件总线；零值不可用，必须 NewBus 创建
type Bus struct {
	mu      sync.Mutex
	subs    []chan Event
	history []Event

	queue  chan Event
	closed chan struct{}
	wg     sync.WaitGroup
	logger *log.Logger
}

// NewBus 创建事件总线并启动单个派发 goroutine；queueSize<=0 时默认 64
func NewBus(queueSize int, logger *log.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = 64
	}
	b := &Bus{
		queue:  make(chan Event, queueSize),
		closed: make(chan struct{}),
		logger: logger,
	}
	b.wg.Add(1)
	go b.dispatch()
	return b
}

// Publish 发布事件；不阻塞、不重试，队列满时丢弃并记日志
func (b *Bus) Publish(eventType, source string, data map[string]any) {
	ev := Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Source:    source,
		Data:      data,
	}
	select {
	case b.queue <- ev:
	case <-b.closed:
	default:
		if b.logger != nil {
			b.logger.Warn("事件队列已满，丢弃事件", "type", eventType, "source", source)
		}
	}
}

// Subscribe 订阅事件流，先回放最近 replayCount 条历史
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	start := len(b.history) - replayCount
	if start < 0 {
		start = 0
	}
	for _, ev := range b.history[start:] {
		select {
		case ch <- ev:
		default:
		}
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe 取消订阅并关闭 channel
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close 停止派发并关闭所有订阅
func (b *Bus) Close() {
	close(b.closed)
	b.wg.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}

func (b *Bus) dispatch() {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-b.closed:
			// 清空残留队列后退出
			for {
				select {
				case ev := <-b.queue:
					b.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, ev)
	if len(b.history) > historyLimit {
		b.history = b.history[len(b.history)-historyLimit:]
	}
	for _, sub := range b.subs {
		select {
		case sub <- ev:
		default:
			// 订阅者消费慢时丢弃，不阻塞派发循环
		}
	}
}
