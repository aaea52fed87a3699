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

package app

import (
	"context"
	"fmt"
	"sync"

	"apexflow/internal/engine"
	"apexflow/internal/eventbus"
	"apexflow/internal/graph"
	"apexflow/internal/snapshot"
	"apexflow/pkg/errors"
	"apexflow/pkg/log"
)

// runEventLimit 每个 run 保留的事件条数上限
const runEventLimit = 200

// RunHandle 进行中（或刚结束）的 run 句柄
type RunHandle struct {
	SessionID string
	Graph     *graph.Graph
	Cancel    context.CancelFunc
	Done      chan struct{}

	mu  sync.Mutex
	err error
}

// Err 返回 run 的最终错误（Done 关闭后有效）
func (h *RunHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *RunHandle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// RunManager 管理并发 run 的生命周期：启动、查询、停止、交互应答。
// 已结束的 run 保留在内存表中，历史会话经快照存储兜底查询。
type RunManager struct {
	engine *engine.Engine
	store  snapshot.Store
	bus    *eventbus.Bus
	logger *log.Logger

	mu     sync.RWMutex
	runs   map[string]*RunHandle
	events map[string][]eventbus.Event

	closed chan struct{}
}

// NewRunManager 创建 run 管理器并开始消费事件流
func NewRunManager(eng *engine.Engine, store snapshot.Store, bus *eventbus.Bus, logger *log.Logger) *RunManager {
	m := &RunManager{
		engine: eng,
		store:  store,
		bus:    bus,
		logger: logger,
		runs:   make(map[string]*RunHandle),
		events: make(map[string][]eventbus.Event),
		closed: make(chan struct{}),
	}
	go m.consumeEvents()
	return m
}

// Start 异步启动一个 run，立即返回 session id
func (m *RunManager) Start(opts engine.RunOptions) string {
	g := m.engine.Prepare(&opts)
	ctx, cancel := context.WithCancel(context.Background())

	handle := &RunHandle{
		SessionID: opts.SessionID,
		Graph:     g,
		Cancel:    cancel,
		Done:      make(chan struct{}),
	}
	m.mu.Lock()
	m.runs[opts.SessionID] = handle
	m.mu.Unlock()

	go func() {
		defer close(handle.Done)
		defer cancel()
		if err := m.engine.Execute(ctx, g, opts); err != nil {
			handle.setErr(err)
		}
	}()

	return opts.SessionID
}

// Get 返回 run 句柄
func (m *RunManager) Get(sessionID string) (*RunHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.runs[sessionID]
	return h, ok
}

// Graph 返回会话的执行图：优先取内存中的活跃 run，
// 否则从快照存储恢复历史会话。
func (m *RunManager) Graph(ctx context.Context, sessionID string) (*graph.Graph, error) {
	if h, ok := m.Get(sessionID); ok {
		return h.Graph, nil
	}
	exp, err := m.store.Load(ctx, sessionID)
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: 会话 %s", errors.ErrNotFound, sessionID)
	}
	return graph.Restore(*exp), nil
}

// Stop 取消 run；不存在时返回 ErrNotFound
func (m *RunManager) Stop(sessionID string) error {
	h, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: 会话 %s", errors.ErrNotFound, sessionID)
	}
	h.Cancel()
	m.logger.Info("run 收到停止请求", "session_id", sessionID)
	return nil
}

// Answer 向等待输入的任务投递用户回答
func (m *RunManager) Answer(sessionID, stepID, answer string) error {
	if _, ok := m.Get(sessionID); !ok {
		return fmt.Errorf("%w: 会话 %s", errors.ErrNotFound, sessionID)
	}
	return m.engine.Broker().Provide(stepID, answer)
}

// Events 返回会话近期事件
func (m *RunManager) Events(sessionID string) []eventbus.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := m.events[sessionID]
	out := make([]eventbus.Event, len(evs))
	copy(out, evs)
	return out
}

// Close 停止事件消费
func (m *RunManager) Close() {
	close(m.closed)
}

// consumeEvents 订阅总线并按 session 分桶缓存
func (m *RunManager) consumeEvents() {
	ch := m.bus.Subscribe()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			sessionID, _ := ev.Data["session_id"].(string)
			if sessionID == "" {
				continue
			}
			m.mu.Lock()
			evs := append(m.events[sessionID], ev)
			if len(evs) > runEventLimit {
				evs = evs[len(evs)-runEventLimit:]
			}
			m.events[sessionID] = evs
			m.mu.Unlock()
		case <-m.closed:
			m.bus.Unsubscribe(ch)
			return
		}
	}
}
